package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/qemuharness"
)

var (
	flagTestMemory   string
	flagTestCPUs     int
	flagTestGraphics bool
)

var testCmd = &cobra.Command{
	Use:   "test <image-file>",
	Short: "Boot a built disk image under QEMU",
	Args:  cobra.ExactArgs(1),
	RunE:  runTest,
}

func init() {
	testCmd.Flags().StringVar(&flagTestMemory, "memory", "2G", "QEMU memory size")
	testCmd.Flags().IntVar(&flagTestCPUs, "cpus", 2, "QEMU vCPU count")
	testCmd.Flags().BoolVar(&flagTestGraphics, "graphics", false, "use a graphical display instead of a serial console")
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	opts := qemuharness.Options{
		Image:    args[0],
		Memory:   flagTestMemory,
		CPUs:     flagTestCPUs,
		Graphics: flagTestGraphics,
	}
	return qemuharness.Run(context.Background(), opts)
}
