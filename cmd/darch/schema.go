package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robinei/darch/internal/manifest"
)

// schemaCmd dumps the JSON schema a config program's stdout is validated
// against, for external tooling (editors, CI config linting) to consume.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema a config program's output must satisfy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(manifest.SchemaJSON())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
