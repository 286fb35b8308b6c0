package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/builder"
	"github.com/robinei/darch/internal/configload"
	"github.com/robinei/darch/internal/driver"
	"github.com/robinei/darch/internal/gc"
	"github.com/robinei/darch/internal/logging"
)

var (
	flagUpgrade    bool
	flagRebuild    bool
	flagImagePath  string
	flagImageSize  string
	flagConfigArgs string
)

var applyCmd = &cobra.Command{
	Use:   "apply <config-program>",
	Short: "Run a config program and build the next generation from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&flagUpgrade, "upgrade", false, "also run a full package upgrade; with an unchanged configuration, build only if upgrades are available")
	applyCmd.Flags().BoolVar(&flagRebuild, "rebuild", false, "force a fresh build, even if a complete predecessor generation exists")
	applyCmd.Flags().StringVar(&flagImagePath, "image", "", "disk image path; created with --image-size if it does not yet exist")
	applyCmd.Flags().StringVar(&flagImageSize, "image-size", "10G", "size for a newly-created --image")
	applyCmd.Flags().StringVar(&flagConfigArgs, "config-args", "", "extra arguments passed through to the config program")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	logging.AddSink(newConsoleSink())
	ctx := context.Background()

	cfg, err := configload.Load(ctx, args[0], flagConfigArgs)
	if err != nil {
		return err
	}

	btrfsDevice := flagBtrfsDevice
	rootUUID := flagRootUUID
	if flagImagePath != "" {
		layout, err := builder.CreateImage(ctx, flagImagePath, flagImageSize)
		if err != nil {
			return err
		}
		defer builder.DetachImage(ctx, layout)
		btrfsDevice = layout.RootPartition
		if layout.RootUUID != "" {
			rootUUID = layout.RootUUID
		}
	}

	opts := driver.Options{
		LockPath:        flagLockPath,
		Images:          flagImages,
		BtrfsDevice:     btrfsDevice,
		VarSubvolName:   flagVarSubvolName,
		PackageCacheDir: flagPkgCache,
		BootConfigPath:  flagBootConfig,
		RootUUID:        rootUUID,
		GCPolicy:        gc.DefaultPolicy(),
		Upgrade:         flagUpgrade,
		Rebuild:         flagRebuild,
	}
	result, err := driver.Run(ctx, opts, cfg)
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("already up to date")
		return nil
	}
	fmt.Printf("built gen-%d (%s)\n", result.Number, result.Mode)
	return nil
}
