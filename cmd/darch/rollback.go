package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/driver"
	"github.com/robinei/darch/internal/logging"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Point the boot menu back at the previous generation",
	Args:  cobra.NoArgs,
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	logging.AddSink(newConsoleSink())
	opts := driver.Options{
		LockPath:       flagLockPath,
		Images:         flagImages,
		BootConfigPath: flagBootConfig,
		RootUUID:       flagRootUUID,
	}
	return driver.Rollback(context.Background(), opts)
}
