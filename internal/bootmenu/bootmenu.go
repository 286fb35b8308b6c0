// Package bootmenu is the Boot-Menu Generator: emits a GRUB configuration
// referencing only complete generations, written atomically.
//
// Grounded on gprovision's pkg/recovery/disk/bootable.go, which builds
// boot-loader entries with text/template and a fixed struct of template
// data (uefi.BootEntry); extra kernel arguments are tokenized with
// google/shlex, the same argv-safe splitting library the teacher pulls in
// (see go.mod dependency inventory).
package bootmenu

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/shlex"

	"github.com/robinei/darch/internal/subvol"
)

const tmplText = `# darch boot menu - generated, do not edit by hand
set timeout=5
set default=0

serial --unit=0 --speed=115200
terminal_input serial console
terminal_output serial console

insmod btrfs
search --set=root --fs-uuid {{.RootUUID}}
{{range .Entries}}
menuentry "Arch Linux (gen-{{.Number}}{{if .Default}}, default{{end}})" {
    linux /@images/gen-{{.Number}}/boot/vmlinuz-linux \
        root=UUID={{$.RootUUID}} \
        darch.gen={{.Number}} \
        console=tty0 console=ttyS0,115200 \
        systemd.gpt_auto=0{{range .Args}} {{.}}{{end}} rw
    initrd /@images/gen-{{.Number}}/boot/initramfs-linux.img
}
{{if .Default}}
menuentry "Arch Linux (gen-{{.Number}}) - Rescue" {
    linux /@images/gen-{{.Number}}/boot/vmlinuz-linux \
        root=UUID={{$.RootUUID}} \
        darch.gen={{.Number}} \
        console=tty0 console=ttyS0,115200 \
        systemd.gpt_auto=0{{range .Args}} {{.}}{{end}} systemd.unit=rescue.target rw
    initrd /@images/gen-{{.Number}}/boot/initramfs-linux.img
}
{{end}}{{end}}`

var tmpl = template.Must(template.New("grub.cfg").Parse(tmplText))

type entry struct {
	Number  int
	Default bool
	Args    []string
}

type tmplData struct {
	RootUUID string
	Entries  []entry
}

// Generate renders a GRUB config covering only complete generations, and
// writes it atomically to cfgPath. Entries are emitted in reverse order of
// gens and the last complete element of gens becomes the default; for
// gens in ascending order (as subvol.Manager.List returns them) that is
// descending by number with the highest-numbered as default. extraKernelArgs (the Configuration's
// ExtraKernelArgs, usually taken from the newest complete generation's
// manifest) is tokenized with shlex so it composes safely with the fixed
// arguments regardless of internal quoting.
func Generate(cfgPath, rootUUID string, gens []subvol.Generation, extraKernelArgs string) error {
	args, err := shlex.Split(extraKernelArgs)
	if err != nil {
		return fmt.Errorf("bootmenu: parsing extra kernel args %q: %w", extraKernelArgs, err)
	}

	complete := subvol.Complete(gens)
	data := tmplData{RootUUID: rootUUID}
	// newest first
	for i := len(complete) - 1; i >= 0; i-- {
		g := complete[i]
		data.Entries = append(data.Entries, entry{
			Number:  g.Number,
			Default: i == len(complete)-1,
			Args:    args,
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("bootmenu: rendering template: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("bootmenu: mkdir: %w", err)
	}
	tmp := cfgPath + ".new"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("bootmenu: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, cfgPath); err != nil {
		return fmt.Errorf("bootmenu: renaming %s -> %s: %w", tmp, cfgPath, err)
	}
	return nil
}

// Rollback regenerates the boot menu so the second-highest-numbered
// complete generation becomes default, by reordering gens before calling
// Generate: promoting the prior generation and demoting the current one.
func Rollback(cfgPath, rootUUID string, gens []subvol.Generation, extraKernelArgs string) error {
	complete := subvol.Complete(gens)
	if len(complete) < 2 {
		return fmt.Errorf("bootmenu: rollback requires at least two complete generations, have %d", len(complete))
	}
	reordered := append([]subvol.Generation(nil), complete[:len(complete)-2]...)
	reordered = append(reordered, complete[len(complete)-1], complete[len(complete)-2])
	return Generate(cfgPath, rootUUID, reordered, extraKernelArgs)
}

// FstabESPLine renders a minimal ESP fstab line (kept here alongside
// bootmenu since both describe the boot-time filesystem contract). Nothing
// in this repository calls it.
func FstabESPLine(espUUID string) string {
	return strings.Join([]string{
		fmt.Sprintf("UUID=%s", espUUID),
		"/efi",
		"vfat",
		"rw,relatime,fmask=0022,dmask=0022,codepage=437,iocharset=ascii,shortname=mixed,utf8,errors=remount-ro",
		"0",
		"2",
	}, " ") + "\n"
}
