package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/driver"
	"github.com/robinei/darch/internal/gc"
	"github.com/robinei/darch/internal/logging"
)

var (
	flagGCKeepMin    int
	flagGCKeepMax    int
	flagGCMinAgeDays int
	flagGCMaxAgeDays int
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reap incomplete generations and prune old complete ones",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().IntVar(&flagGCKeepMin, "keep-min", gc.DefaultKeepMin, "never prune below this many complete generations")
	gcCmd.Flags().IntVar(&flagGCKeepMax, "keep-max", gc.DefaultKeepMax, "prune the oldest complete generations while more than this many exist")
	gcCmd.Flags().IntVar(&flagGCMinAgeDays, "min-age-days", gc.DefaultMinAgeDays, "never prune a generation younger than this")
	gcCmd.Flags().IntVar(&flagGCMaxAgeDays, "max-age-days", gc.DefaultMaxAgeDays, "prune generations older than this, down to keep-min")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	logging.AddSink(newConsoleSink())
	opts := driver.Options{
		LockPath: flagLockPath,
		Images:   flagImages,
		GCPolicy: gc.Policy{
			KeepMin:    flagGCKeepMin,
			KeepMax:    flagGCKeepMax,
			MinAgeDays: flagGCMinAgeDays,
			MaxAgeDays: flagGCMaxAgeDays,
		},
	}
	res, err := driver.CollectGarbage(context.Background(), opts)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d incomplete, %d complete generation(s)\n", len(res.DeletedIncomplete), len(res.DeletedComplete))
	return nil
}
