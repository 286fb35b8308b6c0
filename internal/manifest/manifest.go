// Package manifest implements the Manifest Codec: the JSON projection of a
// Configuration persisted as config.json, whose mere presence at a
// generation's root is the sole authoritative completion marker (see
// SPEC_FULL.md §4.5).
//
// Grounded on gprovision's general pattern of embedding and validating
// schemas on input (pkg/common/platform.go's use of mapstructure-style
// strict decoding) generalized here to JSON Schema validation via
// santhosh-tekuri/jsonschema, which is also one of the teacher's own
// dependencies.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/dierr"
)

// FileEntry is the sorted-key JSON shape of config.FileEntry.
type FileEntry struct {
	Content string `json:"content"`
	Mode    int    `json:"mode,omitempty"`
}

// SymlinkEntry pairs a path with its target for deterministic array
// ordering (maps in Go encode with sorted keys already via encoding/json,
// but we use slices throughout the manifest so ordering is explicit and
// independent of that implementation detail).
type SymlinkEntry struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

type NamedFileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    int    `json:"mode,omitempty"`
}

type UserManifest struct {
	Name         string   `json:"name"`
	Shell        string   `json:"shell,omitempty"`
	Groups       []string `json:"groups,omitempty"`
	UID          *int     `json:"uid,omitempty"`
	PasswordHash string   `json:"password_hash,omitempty"`
}

// Manifest is the stable, sorted JSON projection of a Configuration.
type Manifest struct {
	Name     string           `json:"name,omitempty"`
	Packages []string         `json:"packages"`
	Files    []NamedFileEntry `json:"files"`
	Symlinks []SymlinkEntry   `json:"symlinks"`
	Services []string         `json:"services"`

	Hostname string `json:"hostname,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Locale   string `json:"locale,omitempty"`

	User *UserManifest `json:"user,omitempty"`

	InitramfsModules []string `json:"initramfs_modules,omitempty"`
	InitramfsHooks   []string `json:"initramfs_hooks,omitempty"`

	ExtraKernelArgs string `json:"extra_kernel_args,omitempty"`
}

// FromConfiguration projects a Configuration into its sorted Manifest
// form. This is the only path that should produce a Manifest for
// serialization, guaranteeing the determinism SPEC_FULL.md requires.
func FromConfiguration(c *config.Configuration) *Manifest {
	m := &Manifest{
		Name:             c.Name,
		Hostname:         c.Hostname,
		Timezone:         c.Timezone,
		Locale:           c.Locale,
		InitramfsModules: sortedCopy(c.InitramfsModules),
		InitramfsHooks:   append([]string(nil), c.InitramfsHooks...), // order-significant, not sorted
		ExtraKernelArgs:  c.ExtraKernelArgs,
	}
	m.Packages = sortedKeys(c.Packages)
	m.Services = sortedKeys(c.Services)
	m.Files = make([]NamedFileEntry, 0, len(c.Files))
	for _, p := range sortedFileKeys(c.Files) {
		e := c.Files[p]
		m.Files = append(m.Files, NamedFileEntry{Path: p, Content: e.Content, Mode: e.Mode})
	}
	m.Symlinks = make([]SymlinkEntry, 0, len(c.Symlinks))
	for _, p := range sortedSymlinkKeys(c.Symlinks) {
		m.Symlinks = append(m.Symlinks, SymlinkEntry{Path: p, Target: c.Symlinks[p]})
	}
	if c.User != nil {
		m.User = &UserManifest{
			Name:         c.User.Name,
			Shell:        c.User.Shell,
			Groups:       sortedCopy(c.User.Groups),
			UID:          c.User.UID,
			PasswordHash: c.User.PasswordHash,
		}
	}
	return m
}

// ToConfiguration reverses FromConfiguration, for use by the Diff Engine
// when comparing against a previously-built generation's manifest.
func (m *Manifest) ToConfiguration() *config.Configuration {
	c := config.New()
	c.Name = m.Name
	c.Hostname = m.Hostname
	c.Timezone = m.Timezone
	c.Locale = m.Locale
	c.InitramfsModules = append([]string(nil), m.InitramfsModules...)
	c.InitramfsHooks = append([]string(nil), m.InitramfsHooks...)
	c.ExtraKernelArgs = m.ExtraKernelArgs
	for _, p := range m.Packages {
		c.Packages[p] = struct{}{}
	}
	for _, s := range m.Services {
		c.Services[s] = struct{}{}
	}
	for _, f := range m.Files {
		c.Files[f.Path] = config.FileEntry{Content: f.Content, Mode: f.Mode}
	}
	for _, s := range m.Symlinks {
		c.Symlinks[s.Path] = s.Target
	}
	if m.User != nil {
		c.User = &config.User{
			Name:         m.User.Name,
			Shell:        m.User.Shell,
			Groups:       append([]string(nil), m.User.Groups...),
			UID:          m.User.UID,
			PasswordHash: m.User.PasswordHash,
		}
	}
	return c
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedFileKeys(m map[string]config.FileEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSymlinkKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// Serialize renders m as stable, indented JSON with a fixed 2-space
// indent. Sets and path lists are sorted by FromConfiguration; object keys
// appear in the fixed declaration order of the struct fields, which is
// deterministic but not alphabetical.
func Serialize(m *Manifest) ([]byte, error) {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: serialize: %w", err)
	}
	return append(buf, '\n'), nil
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(schemaJSON)))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource("manifest.json", doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile("manifest.json")
	if err != nil {
		return nil, err
	}
	compiledSchema = sch
	return sch, nil
}

// Parse strictly validates bytes against the manifest schema (unknown
// keys rejected) and decodes it. Returns *dierr.ManifestInvalid on any
// failure, never a bare decode error, so callers can treat the generation
// producing this manifest as incomplete/corrupt uniformly.
func Parse(data []byte) (*Manifest, error) {
	sch, err := schema()
	if err != nil {
		return nil, fmt.Errorf("manifest: loading schema: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &dierr.ManifestInvalid{Err: err}
	}
	if err := sch.Validate(v); err != nil {
		return nil, &dierr.ManifestInvalid{Err: err}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &dierr.ManifestInvalid{Err: err}
	}
	return &m, nil
}

// WriteAtomic writes m to path via the standard tmp-file + fsync + rename
// dance, so a reader can never observe a partially-written completion
// marker. This must be the last filesystem mutation of a build.
func WriteAtomic(path string, m *Manifest) error {
	data, err := Serialize(m)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("manifest: create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("manifest: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("manifest: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("manifest: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("manifest: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadPath reads and parses path, returning (nil, nil) if it does not
// exist - used to distinguish "incomplete generation" from "corrupt
// generation".
func ReadPath(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return Parse(data)
}
