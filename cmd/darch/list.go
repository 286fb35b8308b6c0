package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/subvol"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List complete generations under the images directory, by number and creation time",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	mgr := subvol.New(flagImages)
	gens, err := mgr.List()
	if err != nil {
		return err
	}
	complete := subvol.Complete(gens)
	current, hasCurrent := subvol.Current(gens)
	for _, g := range complete {
		marker := ""
		if hasCurrent && g.Number == current.Number {
			marker = " (default)"
		}
		fmt.Printf("gen-%-4d %s%s\n", g.Number, g.CreatedAt.Format(time.RFC3339), marker)
	}
	return nil
}
