// Package main is the darch CLI, built with spf13/cobra the way
// papapumpkin-quasar structures its own multi-command CLI (one file per
// subcommand under this package, a shared rootCmd, an Execute entrypoint).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/dierr"
)

var rootCmd = &cobra.Command{
	Use:   "darch",
	Short: "Declarative, generation-based Arch Linux image builder",
	Long:  "darch builds and maintains numbered, immutable btrfs generations of a declaratively-configured Arch Linux system.",
}

var (
	flagImages        string
	flagBtrfsDevice   string
	flagVarSubvolName string
	flagPkgCache      string
	flagBootConfig    string
	flagRootUUID      string
	flagLockPath      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagImages, "images", "/.images", "path to the <images> directory holding gen-N subvolumes")
	rootCmd.PersistentFlags().StringVar(&flagBtrfsDevice, "btrfs-device", "", "underlying block device holding @images/@var/@home")
	rootCmd.PersistentFlags().StringVar(&flagVarSubvolName, "var-subvol", "@var", "btrfs subvolume name holding persistent state")
	rootCmd.PersistentFlags().StringVar(&flagPkgCache, "pkg-cache", "/var/cache/pacman/pkg", "host package cache directory to share into builds")
	rootCmd.PersistentFlags().StringVar(&flagBootConfig, "boot-config", "/boot/grub/grub.cfg", "path to the generated boot-loader configuration")
	rootCmd.PersistentFlags().StringVar(&flagRootUUID, "root-uuid", "", "filesystem UUID the boot menu should search for")
	rootCmd.PersistentFlags().StringVar(&flagLockPath, "lock", "", "override the build lock path")
}

// Execute runs the CLI, mapping any returned error to darch's exit-code
// taxonomy via dierr.Code rather than cobra's default always-exit-1
// behavior.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "darch:", err)
		os.Exit(int(dierr.Code(err)))
	}
}

func main() {
	Execute()
}
