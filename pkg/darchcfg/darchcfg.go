// Package darchcfg is the public API a darch config program imports. A
// config program is a small Go main package that builds a *Config with
// this fluent builder and hands it to Main, which validates it and prints
// its Manifest-shaped JSON projection to stdout for the engine to capture.
//
// Grounded on gprovision's cmd/* entrypoints, which are themselves thin
// mains delegating immediately into a library package - the same shape
// here, generalized from "one appliance binary" to "one user config
// program per darch host".
package darchcfg

import (
	"fmt"
	"os"

	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/manifest"
)

// Config is the fluent builder a config program uses to declare its
// desired system state.
type Config struct {
	c *config.Configuration
}

// New returns an empty Config named name (the generation's Manifest.Name,
// and the default hostname unless SetHostname overrides it).
func New(name string) *Config {
	c := config.New()
	c.Name = name
	c.Hostname = name
	return &Config{c: c}
}

func (cfg *Config) AddPackages(names ...string) *Config {
	for _, n := range names {
		cfg.c.Packages[n] = struct{}{}
	}
	return cfg
}

func (cfg *Config) AddFile(path, content string, mode int) *Config {
	cfg.c.Files[path] = config.FileEntry{Content: content, Mode: mode}
	return cfg
}

func (cfg *Config) AddSymlink(path, target string) *Config {
	cfg.c.Symlinks[path] = target
	return cfg
}

func (cfg *Config) EnableService(name string) *Config {
	cfg.c.Services[name] = struct{}{}
	return cfg
}

// MaskService removes a previously-enabled service from the declared set,
// for use when composing config fragments from multiple functions.
func (cfg *Config) MaskService(name string) *Config {
	delete(cfg.c.Services, name)
	return cfg
}

func (cfg *Config) SetHostname(h string) *Config {
	cfg.c.Hostname = h
	return cfg
}

func (cfg *Config) SetTimezone(tz string) *Config {
	cfg.c.Timezone = tz
	return cfg
}

func (cfg *Config) SetLocale(l string) *Config {
	cfg.c.Locale = l
	return cfg
}

// SetUser declares the single persisted user account. passwordHash is a
// crypt(3) hash, e.g. produced by `openssl passwd -6`; an empty hash
// leaves the account locked.
func (cfg *Config) SetUser(name, shell string, groups []string, passwordHash string) *Config {
	cfg.c.User = &config.User{
		Name:         name,
		Shell:        shell,
		Groups:       append([]string(nil), groups...),
		PasswordHash: passwordHash,
	}
	return cfg
}

func (cfg *Config) SetUserUID(uid int) *Config {
	if cfg.c.User != nil {
		u := *cfg.c.User
		u.UID = &uid
		cfg.c.User = &u
	}
	return cfg
}

func (cfg *Config) AddInitramfsModules(names ...string) *Config {
	cfg.c.InitramfsModules = append(cfg.c.InitramfsModules, names...)
	return cfg
}

func (cfg *Config) AddInitramfsHooks(names ...string) *Config {
	cfg.c.InitramfsHooks = append(cfg.c.InitramfsHooks, names...)
	return cfg
}

// SetExtraKernelArgs sets additional kernel command-line arguments,
// tokenized with shlex by the boot-menu generator at apply time.
func (cfg *Config) SetExtraKernelArgs(args string) *Config {
	cfg.c.ExtraKernelArgs = args
	return cfg
}

// Configuration returns the built internal Configuration value. The
// engine does not call it: internal/configload rebuilds the Configuration
// from the config program's JSON output instead.
func (cfg *Config) Configuration() *config.Configuration { return cfg.c }

// Main runs configure, validates the result by round-tripping it through
// the Manifest Codec's schema, and writes its JSON projection to stdout.
// A config program's main() should simply call:
//
//	func main() { darchcfg.Main(configure) }
//
// Any error aborts with a non-zero exit so the engine's Process Runner
// treats this as a failed invocation, never a malformed-but-successful
// one.
func Main(configure func() *Config) {
	cfg := configure()
	if cfg == nil || cfg.c == nil {
		fmt.Fprintln(os.Stderr, "darchcfg: configure function returned nil")
		os.Exit(1)
	}
	man := manifest.FromConfiguration(cfg.c)
	data, err := manifest.Serialize(man)
	if err != nil {
		fmt.Fprintf(os.Stderr, "darchcfg: serializing configuration: %s\n", err)
		os.Exit(1)
	}
	// round-trip through Parse to catch schema drift before the engine does
	if _, err := manifest.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "darchcfg: configuration failed validation: %s\n", err)
		os.Exit(1)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "darchcfg: writing output: %s\n", err)
		os.Exit(1)
	}
}
