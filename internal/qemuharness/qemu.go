// Package qemuharness boots a built disk image under QEMU for the `test`
// subcommand, using u-root's pkg/qemu VM wrapper rather than hand-rolling
// argv construction and process supervision.
//
// Grounded on original_source/darch.py's find_ovmf/test_image: OVMF
// firmware discovery across the same three well-known install locations,
// a scratch copy of OVMF_VARS (it must be writable), and the same two
// presentation modes (serial console logged to file, or a graphical
// virtio-vga display). u-root/pkg/qemu is one of the teacher's own
// dependencies, used there to drive integration-test VMs (testing/vm);
// this package generalizes that usage from "boot a provisioning image" to
// "boot a built darch disk image".
package qemuharness

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/u-root/u-root/pkg/qemu"

	"github.com/robinei/darch/internal/dierr"
)

var ovmfCandidates = [][2]string{
	{"/usr/share/edk2-ovmf/x64/OVMF_CODE.4m.fd", "/usr/share/edk2-ovmf/x64/OVMF_VARS.4m.fd"},
	{"/usr/share/edk2-ovmf/x64/OVMF_CODE.fd", "/usr/share/edk2-ovmf/x64/OVMF_VARS.fd"},
	{"/usr/share/OVMF/OVMF_CODE.fd", "/usr/share/OVMF/OVMF_VARS.fd"},
}

// FindOVMF locates UEFI firmware, trying the same well-known paths as a
// stock Arch installation of edk2-ovmf.
func FindOVMF() (code, vars string, err error) {
	for _, pair := range ovmfCandidates {
		if fileExists(pair[0]) && fileExists(pair[1]) {
			return pair[0], pair[1], nil
		}
	}
	return "", "", &dierr.MissingPrerequisite{What: "OVMF UEFI firmware (install edk2-ovmf)"}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Options configures one test boot.
type Options struct {
	Image      string
	Memory     string // QEMU -m value, e.g. "2G"
	CPUs       int
	Graphics   bool
	ConsoleLog string // serial console log path, used when !Graphics
}

// Run boots Options.Image under QEMU and waits for it to exit, mirroring
// test_image's two presentation modes.
func Run(ctx context.Context, opts Options) error {
	code, vars, err := FindOVMF()
	if err != nil {
		return err
	}
	if !fileExists(opts.Image) {
		return &dierr.MissingPrerequisite{What: fmt.Sprintf("image file %s", opts.Image)}
	}

	varsCopy, err := copyToScratch(vars)
	if err != nil {
		return fmt.Errorf("qemuharness: copying OVMF_VARS: %w", err)
	}
	defer os.Remove(varsCopy)

	memory := opts.Memory
	if memory == "" {
		memory = "2G"
	}
	cpus := opts.CPUs
	if cpus == 0 {
		cpus = 2
	}

	vm := &qemu.Options{
		QEMUPath: "qemu-system-x86_64",
		Devices: []qemu.Device{
			qemu.ArbitraryArgs{"-enable-kvm"},
			qemu.ArbitraryArgs{"-cpu", "host"},
			qemu.ArbitraryArgs{"-m", memory},
			qemu.ArbitraryArgs{"-smp", fmt.Sprint(cpus)},
			qemu.ArbitraryArgs{"-drive", fmt.Sprintf("if=pflash,format=raw,readonly=on,file=%s", code)},
			qemu.ArbitraryArgs{"-drive", fmt.Sprintf("if=pflash,format=raw,file=%s", varsCopy)},
			qemu.ArbitraryArgs{"-drive", fmt.Sprintf("file=%s,format=raw", opts.Image)},
			qemu.ArbitraryArgs{"-net", "none"},
			qemu.ArbitraryArgs{"-usb"},
			qemu.ArbitraryArgs{"-device", "usb-tablet"},
		},
	}
	if opts.Graphics {
		vm.Devices = append(vm.Devices,
			qemu.ArbitraryArgs{"-device", "virtio-vga"},
			qemu.ArbitraryArgs{"-display", "gtk"},
		)
	} else {
		logfile := opts.ConsoleLog
		if logfile == "" {
			logfile = "qemu-console.log"
		}
		vm.Devices = append(vm.Devices,
			qemu.ArbitraryArgs{"-nographic"},
			qemu.ArbitraryArgs{"-chardev", fmt.Sprintf("stdio,mux=on,id=char0,logfile=%s,signal=off", logfile)},
			qemu.ArbitraryArgs{"-serial", "chardev:char0"},
			qemu.ArbitraryArgs{"-mon", "chardev=char0"},
		)
	}

	proc, err := vm.Start(ctx)
	if err != nil {
		return fmt.Errorf("qemuharness: starting qemu: %w", err)
	}
	if err := proc.Wait(); err != nil {
		return fmt.Errorf("qemuharness: qemu exited with an error: %w", err)
	}
	return nil
}

func copyToScratch(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.CreateTemp("", "darch-ovmf-vars-*")
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
