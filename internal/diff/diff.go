// Package diff is the Diff Engine: computes the add/remove sets between an
// old and new manifest that drive an incremental build.
package diff

import (
	"reflect"
	"sort"

	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/manifest"
)

// Diff is the structural delta between two configurations.
type Diff struct {
	PackagesToAdd    []string
	PackagesToRemove []string

	// FilesToWrite is the union of new/changed files, full for a fresh
	// build. FilesToDelete holds paths present in old but absent in new.
	FilesToWrite  map[string]config.FileEntry
	FilesToDelete []string

	SymlinksToCreate map[string]string
	SymlinksToDelete []string

	ServicesToEnable  []string
	ServicesToDisable []string

	NeedsInitramfs  bool
	IdentityChanged bool
}

// darchOwnedInitramfsPaths are the only file paths that flip
// NeedsInitramfs (changes to the initramfs module or hook lists flip it
// too); kernel-package updates are handled by pacman's own post-install hooks
// (SPEC_FULL.md §9 / spec.md §9 Note).
var darchOwnedInitramfsPaths = map[string]struct{}{
	"/etc/mkinitcpio.conf":              {},
	"/usr/lib/initcpio/hooks/darch":     {},
	"/usr/lib/initcpio/install/darch":   {},
}

// Compute produces the Diff between old (nil for a fresh build) and new.
func Compute(old *manifest.Manifest, new *config.Configuration) *Diff {
	d := &Diff{
		FilesToWrite:     map[string]config.FileEntry{},
		SymlinksToCreate: map[string]string{},
	}

	var oldCfg *config.Configuration
	if old != nil {
		oldCfg = old.ToConfiguration()
	}

	if oldCfg == nil {
		d.PackagesToAdd = sortedKeys(new.Packages)
		for p, e := range new.Files {
			d.FilesToWrite[p] = e
		}
		for p, t := range new.Symlinks {
			d.SymlinksToCreate[p] = t
		}
		d.ServicesToEnable = sortedKeys(new.Services)
		d.NeedsInitramfs = true
		d.IdentityChanged = true
		return d
	}

	d.PackagesToAdd = setDiff(new.Packages, oldCfg.Packages)
	d.PackagesToRemove = setDiff(oldCfg.Packages, new.Packages)

	for p, e := range new.Files {
		if old, ok := oldCfg.Files[p]; !ok || old != e {
			d.FilesToWrite[p] = e
		}
	}
	for p := range oldCfg.Files {
		if _, ok := new.Files[p]; !ok {
			d.FilesToDelete = append(d.FilesToDelete, p)
		}
	}
	sort.Strings(d.FilesToDelete)

	for p, t := range new.Symlinks {
		if oldT, ok := oldCfg.Symlinks[p]; !ok || oldT != t {
			d.SymlinksToCreate[p] = t
		}
	}
	for p := range oldCfg.Symlinks {
		if _, ok := new.Symlinks[p]; !ok {
			d.SymlinksToDelete = append(d.SymlinksToDelete, p)
		}
	}
	sort.Strings(d.SymlinksToDelete)

	d.ServicesToEnable = setDiff(new.Services, oldCfg.Services)
	d.ServicesToDisable = setDiff(oldCfg.Services, new.Services)

	d.NeedsInitramfs = initramfsChanged(oldCfg, new, d)
	d.IdentityChanged = !reflect.DeepEqual(oldCfg.Identity(), new.Identity())

	return d
}

func initramfsChanged(old, new *config.Configuration, d *Diff) bool {
	if !reflect.DeepEqual(old.InitramfsModules, new.InitramfsModules) {
		return true
	}
	if !reflect.DeepEqual(old.InitramfsHooks, new.InitramfsHooks) {
		return true
	}
	for p := range d.FilesToWrite {
		if _, ok := darchOwnedInitramfsPaths[p]; ok {
			return true
		}
	}
	for _, p := range d.FilesToDelete {
		if _, ok := darchOwnedInitramfsPaths[p]; ok {
			return true
		}
	}
	return false
}

// HasChanges reports whether applying this diff would mutate anything at
// all - used by the Builder to short-circuit a no-op incremental apply.
func (d *Diff) HasChanges() bool {
	return len(d.PackagesToAdd) > 0 || len(d.PackagesToRemove) > 0 ||
		len(d.FilesToWrite) > 0 || len(d.FilesToDelete) > 0 ||
		len(d.SymlinksToCreate) > 0 || len(d.SymlinksToDelete) > 0 ||
		len(d.ServicesToEnable) > 0 || len(d.ServicesToDisable) > 0 ||
		d.IdentityChanged || d.NeedsInitramfs
}

func setDiff(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
