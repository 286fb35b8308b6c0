package diff

import (
	"reflect"
	"testing"

	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/manifest"
)

func TestComputeFreshHasEverything(t *testing.T) {
	c := config.New()
	c.Packages["base"] = struct{}{}
	c.Files["/etc/motd"] = config.FileEntry{Content: "hi\n"}
	c.Symlinks["/etc/localtime"] = "/usr/share/zoneinfo/UTC"
	c.Services["sshd"] = struct{}{}

	d := Compute(nil, c)

	if !d.NeedsInitramfs || !d.IdentityChanged {
		t.Error("a fresh build must need an initramfs rebuild and report identity changed")
	}
	if !reflect.DeepEqual(d.PackagesToAdd, []string{"base"}) {
		t.Errorf("PackagesToAdd = %v, want [base]", d.PackagesToAdd)
	}
	if len(d.PackagesToRemove) != 0 {
		t.Errorf("PackagesToRemove = %v, want empty", d.PackagesToRemove)
	}
	if _, ok := d.FilesToWrite["/etc/motd"]; !ok {
		t.Error("expected /etc/motd in FilesToWrite")
	}
	if !d.HasChanges() {
		t.Error("a fresh build diff must report HasChanges")
	}
}

func TestComputeIncrementalNoChanges(t *testing.T) {
	c := config.New()
	c.Packages["base"] = struct{}{}
	c.Hostname = "box"
	m := manifest.FromConfiguration(c)

	d := Compute(m, c)

	if d.HasChanges() {
		t.Errorf("identical configuration must produce an empty diff, got %+v", d)
	}
	if d.IdentityChanged {
		t.Error("identity did not change, IdentityChanged should be false")
	}
}

func TestComputePackageAddAndRemove(t *testing.T) {
	old := config.New()
	old.Packages["base"] = struct{}{}
	old.Packages["vim"] = struct{}{}
	m := manifest.FromConfiguration(old)

	new := config.New()
	new.Packages["base"] = struct{}{}
	new.Packages["git"] = struct{}{}

	d := Compute(m, new)

	if !reflect.DeepEqual(d.PackagesToAdd, []string{"git"}) {
		t.Errorf("PackagesToAdd = %v, want [git]", d.PackagesToAdd)
	}
	if !reflect.DeepEqual(d.PackagesToRemove, []string{"vim"}) {
		t.Errorf("PackagesToRemove = %v, want [vim]", d.PackagesToRemove)
	}
}

func TestComputeFileDeleteAndInitramfsOwnedPath(t *testing.T) {
	old := config.New()
	old.Files["/etc/mkinitcpio.conf"] = config.FileEntry{Content: "MODULES=()\n"}
	m := manifest.FromConfiguration(old)

	new := config.New()

	d := Compute(m, new)

	if !reflect.DeepEqual(d.FilesToDelete, []string{"/etc/mkinitcpio.conf"}) {
		t.Errorf("FilesToDelete = %v, want [/etc/mkinitcpio.conf]", d.FilesToDelete)
	}
	if !d.NeedsInitramfs {
		t.Error("removing a darch-owned initramfs path must set NeedsInitramfs")
	}
}

func TestComputeIdentityChange(t *testing.T) {
	old := config.New()
	old.Hostname = "box"
	m := manifest.FromConfiguration(old)

	new := config.New()
	new.Hostname = "otherbox"

	d := Compute(m, new)

	if !d.IdentityChanged {
		t.Error("a hostname change must set IdentityChanged")
	}
	if d.NeedsInitramfs {
		t.Error("a hostname change alone should not need an initramfs rebuild")
	}
}

func TestComputeServiceEnableDisable(t *testing.T) {
	old := config.New()
	old.Services["sshd"] = struct{}{}
	m := manifest.FromConfiguration(old)

	new := config.New()
	new.Services["cronie"] = struct{}{}

	d := Compute(m, new)

	if !reflect.DeepEqual(d.ServicesToEnable, []string{"cronie"}) {
		t.Errorf("ServicesToEnable = %v, want [cronie]", d.ServicesToEnable)
	}
	if !reflect.DeepEqual(d.ServicesToDisable, []string{"sshd"}) {
		t.Errorf("ServicesToDisable = %v, want [sshd]", d.ServicesToDisable)
	}
}
