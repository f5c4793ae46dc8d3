package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/node/builtin"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate chain definition files",
	Long: `Parses each JSON or YAML chain definition and checks it against the
node catalog: node types and configs, edge handles, acyclicity, and
reachability. Warnings do not fail validation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	services, _, _, _, _ := builtin.MemoryServices()
	registry := node.NewRegistry()
	if err := builtin.Register(registry, services); err != nil {
		return err
	}
	validator := chain.NewValidator(registry)

	failed := 0
	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		c, _, err := chain.Parse(raw)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: PARSE ERROR: %v\n", path, err)
			failed++
			continue
		}

		res := validator.Validate(c)
		for _, warn := range res.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: warning: %s\n", path, warn.Message)
		}
		if !res.Valid() {
			for _, issue := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: error: %s\n", path, issue.Message)
			}
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d nodes, %d edges)\n", path, len(c.Nodes), len(c.Edges))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
	}
	return nil
}
