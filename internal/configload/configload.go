// Package configload invokes a user's config program and captures its
// declared Configuration.
//
// A config program is a normal `package main` importing pkg/darchcfg and
// calling darchcfg.Main(configure). configload runs it with `go run`
// through the Process Runner and parses its captured stdout as a
// Manifest, then projects that back to a Configuration - reusing the
// Manifest Codec's schema validation rather than trusting the child
// process's output blindly.
package configload

import (
	"context"
	"fmt"

	"github.com/google/shlex"

	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/manifest"
	"github.com/robinei/darch/internal/runner"
)

// Load runs the config program at path (a .go file or a package
// directory) and returns the Configuration it declared. extraArgs, if
// non-empty, is shell-lexed and appended to the invocation so a config
// program can branch on flags of its own (e.g. selecting a variant).
func Load(ctx context.Context, path, extraArgs string) (*config.Configuration, error) {
	argv := []string{"go", "run", path}
	if extraArgs != "" {
		args, err := shlex.Split(extraArgs)
		if err != nil {
			return nil, fmt.Errorf("configload: parsing --config-args: %w", err)
		}
		argv = append(argv, args...)
	}
	out, err := runner.Run(ctx, argv, runner.Options{Check: true, Capture: true})
	if err != nil {
		return nil, fmt.Errorf("configload: running %s: %w", path, err)
	}
	man, err := manifest.Parse([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("configload: parsing output of %s: %w", path, err)
	}
	return man.ToConfiguration(), nil
}
