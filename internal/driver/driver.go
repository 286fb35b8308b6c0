// Package driver is the Top-Level Driver: sequences lock acquisition,
// prerequisite validation, garbage collection, build, and boot-menu
// regeneration for one invocation of the apply operation.
//
// Grounded on original_source/darch.py's top-level main()/apply() flow,
// which performs exactly this sequence around one held lock file.
package driver

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/robinei/darch/internal/bootmenu"
	"github.com/robinei/darch/internal/builder"
	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/dierr"
	"github.com/robinei/darch/internal/gc"
	"github.com/robinei/darch/internal/lock"
	"github.com/robinei/darch/internal/logging"
	"github.com/robinei/darch/internal/subvol"
)

// Options configures one apply run end to end.
type Options struct {
	LockPath        string
	Images          string
	BtrfsDevice     string
	VarSubvolName   string
	PackageCacheDir string
	BootConfigPath  string
	RootUUID        string
	GCPolicy        gc.Policy
	// Upgrade, when set, runs a full package-manager upgrade during an
	// incremental build. With an otherwise empty diff the build proceeds
	// only if checkupdates reports pending upgrades against the
	// predecessor (SPEC_FULL.md §9's --upgrade supplement).
	Upgrade bool
	// Rebuild, when set, forces a Fresh build even when a complete
	// predecessor generation exists, per SPEC_FULL.md §6's
	// "apply ... [--rebuild]" (--rebuild forces fresh).
	Rebuild bool
	// RequiredTools are checked for presence on PATH before anything else
	// runs, e.g. "btrfs", "pacstrap", "arch-chroot", "mkinitcpio".
	RequiredTools []string
}

// Run performs one full apply: lock, validate, GC, build, regenerate boot
// menu, release lock. Per SPEC_FULL.md §4.10, a failure regenerating the
// boot menu after a successful build does not roll the build back - the
// new generation is complete and usable via rollback; the previous menu
// still points at the prior default.
func Run(ctx context.Context, opts Options, cfg *config.Configuration) (*builder.Result, error) {
	l, err := lock.Acquire(opts.LockPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			logging.Logf("driver: releasing lock: %s", rerr)
		}
	}()

	if err := validatePrerequisites(opts); err != nil {
		return nil, err
	}

	subv := subvol.New(opts.Images)
	policy := opts.GCPolicy
	if policy == (gc.Policy{}) {
		policy = gc.DefaultPolicy()
	}
	if _, err := gc.Run(ctx, subv, policy, time.Now(), 0); err != nil {
		return nil, fmt.Errorf("driver: gc: %w", err)
	}

	b := builder.New(builder.Options{
		Images:          opts.Images,
		BtrfsDevice:     opts.BtrfsDevice,
		VarSubvolName:   opts.VarSubvolName,
		PackageCacheDir: opts.PackageCacheDir,
	})
	result, err := b.Build(ctx, cfg, opts.Upgrade, opts.Rebuild)
	if err != nil {
		return nil, fmt.Errorf("driver: build: %w", err)
	}
	if result == nil {
		// already up to date: no new generation, menu unchanged
		return nil, nil
	}

	gens, err := subv.List()
	if err != nil {
		return result, fmt.Errorf("driver: listing generations after build: %w", err)
	}
	if err := bootmenu.Generate(opts.BootConfigPath, opts.RootUUID, gens, cfg.ExtraKernelArgs); err != nil {
		return result, fmt.Errorf("driver: regenerating boot menu: %w", err)
	}

	logging.Msgf("apply complete: gen-%d is now default", result.Number)
	return result, nil
}

// Rollback regenerates the boot menu to point at the second-newest
// complete generation, without touching any subvolume.
func Rollback(ctx context.Context, opts Options) error {
	l, err := lock.Acquire(opts.LockPath)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			logging.Logf("driver: releasing lock: %s", rerr)
		}
	}()

	subv := subvol.New(opts.Images)
	gens, err := subv.List()
	if err != nil {
		return err
	}
	current, ok := subvol.Current(gens)
	extraArgs := ""
	if ok && current.Manifest != nil {
		extraArgs = current.Manifest.ExtraKernelArgs
	}
	if err := bootmenu.Rollback(opts.BootConfigPath, opts.RootUUID, gens, extraArgs); err != nil {
		return err
	}
	logging.Msg("rollback complete")
	return nil
}

// CollectGarbage runs a standalone GC pass, used by the gc subcommand
// outside of an apply.
func CollectGarbage(ctx context.Context, opts Options) (*gc.Result, error) {
	l, err := lock.Acquire(opts.LockPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			logging.Logf("driver: releasing lock: %s", rerr)
		}
	}()

	subv := subvol.New(opts.Images)
	policy := opts.GCPolicy
	if policy == (gc.Policy{}) {
		policy = gc.DefaultPolicy()
	}
	return gc.Run(ctx, subv, policy, time.Now(), 0)
}

func validatePrerequisites(opts Options) error {
	subv := subvol.New(opts.Images)
	if err := subv.EnsureImagesDir(); err != nil {
		return err
	}
	tools := opts.RequiredTools
	if len(tools) == 0 {
		tools = []string{"btrfs", "pacstrap", "pacman", "arch-chroot", "mkinitcpio", "systemctl"}
	}
	for _, t := range tools {
		if _, err := exec.LookPath(t); err != nil {
			return &dierr.MissingPrerequisite{What: fmt.Sprintf("required tool %q not found on PATH", t)}
		}
	}
	return nil
}
