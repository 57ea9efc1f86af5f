// Package cmd - validate command
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"costrules/adapters/rules"
	"costrules/core/postproc"
)

var validateCmd = &cobra.Command{
	Use:   "validate <rule-file>...",
	Short: "Check rule files without processing data",
	Long: `Parse and compile every rule of the given files. Tag values are resolved
against an auto-creating catalog, so only the rule structure, patterns and
formulas are checked.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringSliceVar(&userTagKeys, "user-tags", nil, "user tag keys in slot order")
}

func runValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	svc := newCatalog().Services()

	failed := 0
	for _, path := range args {
		configs, err := rules.LoadFile(path)
		if err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", path, err)
			failed++
			continue
		}
		for _, cfg := range configs {
			if _, err := postproc.NewRule(cfg, svc); err != nil {
				fmt.Fprintf(w, "✗ %s: %s: %v\n", path, cfg.Name, err)
				failed++
				continue
			}
			fmt.Fprintf(w, "✓ %s: %s\n", path, cfg.Name)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d invalid rule(s) or file(s)", failed)
	}
	return nil
}
