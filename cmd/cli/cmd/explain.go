// Package cmd - explain command
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"costrules/core/types"
)

var (
	explainRule    string
	explainProduct string
	explainHour    int
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show how a rule groups one hour of a dataset",
	Long: `List the input buckets a rule forms for one hour of one product context,
the tag groups merged into each bucket and the tag groups its results would
write. The dataset is not modified.

Omit --product for the non-resource context.`,
	Args: cobra.NoArgs,
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringSliceVarP(&rulePaths, "rules", "r", nil, "rule files")
	explainCmd.Flags().StringVarP(&dataPath, "data", "d", "", "input dataset document")
	explainCmd.Flags().StringSliceVar(&userTagKeys, "user-tags", nil, "user tag keys in slot order")
	explainCmd.Flags().StringVar(&explainRule, "rule", "", "rule name")
	explainCmd.Flags().StringVar(&explainProduct, "product", "", "product context (service code or name)")
	explainCmd.Flags().IntVar(&explainHour, "hour", 0, "interval index")
	_ = explainCmd.MarkFlagRequired("rule")
}

func runExplain(cmd *cobra.Command, args []string) error {
	configs, err := loadRules()
	if err != nil {
		return err
	}

	cat := newCatalog()
	data, err := loadDataset(cmd.Context(), cat, "")
	if err != nil {
		return err
	}

	product := types.NonResource
	if explainProduct != "" {
		p, ok := cat.Product(explainProduct)
		if !ok {
			return fmt.Errorf("unknown product %q", explainProduct)
		}
		product = p
	}

	proc, err := newProcessor(configs, cat)
	if err != nil {
		return err
	}
	defer proc.Close()

	buckets, err := proc.Explain(data, explainRule, product, explainHour)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(buckets) == 0 {
		fmt.Fprintln(w, "No input values match the rule.")
		return nil
	}
	for _, b := range buckets {
		fmt.Fprintf(w, "%s = %s\n", b.Bucket, formatNumber(b.Value))
		for _, tg := range b.Members {
			fmt.Fprintf(w, "  <- %s\n", tg)
		}
		for _, tg := range b.Outputs {
			fmt.Fprintf(w, "  -> %s\n", tg)
		}
	}
	return nil
}
