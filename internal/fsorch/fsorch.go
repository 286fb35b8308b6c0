// Package fsorch is the Filesystem Orchestrator: scoped acquisition of
// mounts, bind-mounts, and chroot-preparation directories with guaranteed,
// LIFO teardown on every exit path.
//
// Grounded on gprovision's pkg/recovery/disk/fs.go, which tries
// u-root/pkg/mount's Mount/Unmount first and falls back to invoking the
// mount/umount binaries directly on error - this package keeps that exact
// two-tier strategy.
package fsorch

import (
	"context"
	"fmt"
	"os"

	uroot "github.com/u-root/u-root/pkg/mount"
	"golang.org/x/sys/unix"

	"github.com/robinei/darch/internal/dierr"
	"github.com/robinei/darch/internal/runner"
)

// resource is one acquired mount, released in LIFO order by Scope.Close.
type resource struct {
	target string
	bind   bool
	device string
}

// Scope tracks resources acquired during a build step and releases them
// in reverse order on Close, regardless of whether the caller is unwinding
// from success, an error, or a recovered panic.
type Scope struct {
	ctx       context.Context
	resources []resource
	warnings  []*dierr.PartialReleaseWarning
}

// NewScope creates an empty scope bound to ctx, used for any external
// commands the scope itself needs to run (e.g. mount/umount fallback).
func NewScope(ctx context.Context) *Scope {
	return &Scope{ctx: ctx}
}

// Mount mounts source onto target with the given filesystem type and
// options, registering it for release. target is created if missing.
func (s *Scope) Mount(source, target, fstype, options string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("fsorch: mkdir %s: %w", target, err)
	}
	// best-effort cleanup of a stale mount left by a crashed prior run
	_, _ = runner.Run(s.ctx, []string{"umount", target}, runner.Options{Check: false})

	if _, err := uroot.Mount(source, target, fstype, options, 0); err == nil {
		s.resources = append(s.resources, resource{target: target, device: source})
		return nil
	}
	argv := []string{"mount", source, target}
	if fstype != "" {
		argv = append(argv, "-t", fstype)
	}
	if options != "" {
		argv = append(argv, "-o", options)
	}
	if _, err := runner.Run(s.ctx, argv, runner.Options{Check: true, Capture: true}); err != nil {
		return fmt.Errorf("fsorch: mount %s on %s: %w", source, target, err)
	}
	s.resources = append(s.resources, resource{target: target, device: source})
	return nil
}

// BindMount bind-mounts source onto target.
func (s *Scope) BindMount(source, target string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("fsorch: mkdir %s: %w", target, err)
	}
	if _, err := uroot.Mount(source, target, "", "", unix.MS_BIND); err == nil {
		s.resources = append(s.resources, resource{target: target, bind: true, device: source})
		return nil
	}
	argv := []string{"mount", "--bind", source, target}
	if _, err := runner.Run(s.ctx, argv, runner.Options{Check: true, Capture: true}); err != nil {
		return fmt.Errorf("fsorch: bind-mount %s on %s: %w", source, target, err)
	}
	s.resources = append(s.resources, resource{target: target, bind: true, device: source})
	return nil
}

// ChrootPrepare binds /dev, /proc, /sys, /run and the host package-cache
// directory into root, for use before a chroot_run. Returns nil on
// success; all successful binds are registered for release regardless of
// whether a later one fails, so a partial failure still tears down
// cleanly.
func (s *Scope) ChrootPrepare(root string) error {
	binds := []struct{ src, dst string }{
		{"/dev", root + "/dev"},
		{"/proc", root + "/proc"},
		{"/sys", root + "/sys"},
		{"/run", root + "/run"},
		{"/var/cache/pacman/pkg", root + "/var/cache/pacman/pkg"},
	}
	for _, b := range binds {
		if err := s.BindMount(b.src, b.dst); err != nil {
			return fmt.Errorf("fsorch: chroot_prepare: %w", err)
		}
	}
	return nil
}

// Warnings returns any PartialReleaseWarnings accumulated by Close.
func (s *Scope) Warnings() []*dierr.PartialReleaseWarning { return s.warnings }

// Close releases every resource acquired through this scope, in LIFO
// order. A release failure is recorded as a PartialReleaseWarning and
// does not stop subsequent releases, nor does it mask whatever error (if
// any) the caller is already unwinding from - callers should check
// Warnings() after Close for diagnostics, not treat them as fatal.
func (s *Scope) Close() {
	for i := len(s.resources) - 1; i >= 0; i-- {
		r := s.resources[i]
		if err := uroot.Unmount(r.target, false, true); err != nil {
			// fall back to umount binary before giving up
			if _, bErr := runner.Run(s.ctx, []string{"umount", "-l", r.target}, runner.Options{Check: true, Capture: true}); bErr != nil {
				s.warnings = append(s.warnings, &dierr.PartialReleaseWarning{Resource: r.target, Err: bErr})
			}
		}
	}
	s.resources = nil
}
