package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/node/builtin"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the node catalog as JSON",
	Long: `Prints every registered node type with its category, config schema,
and output handles. The visual chain editor consumes this document.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	services, _, _, _, _ := builtin.MemoryServices()
	registry := node.NewRegistry()
	if err := builtin.Register(registry, services); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(registry.Definitions())
}
