// Package cmd - run command
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"costrules/adapters/storage"
	"costrules/core/postproc"
	"costrules/internal/config"
	"costrules/internal/logging"
)

var (
	outPath   string
	saveName  string
	loadName  string
	runFormat string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply rules to a dataset",
	Long: `Load a dataset, apply every rule in order and write the result.

Rules that fail to compile or execute are reported and skipped; the command
exits non-zero when any rule failed.

Examples:
  costrules run --rules rules.hcl --data 2020-01.json --out 2020-01-processed.json
  costrules run --rules rules.hcl --data 2020-01.json --store .costrules --save 2020-01
  costrules run --rules rules.hcl --store .costrules --load 2020-01 --out reprocessed.json`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&rulePaths, "rules", "r", nil, "rule files (.hcl, .yaml, .yml, .json), applied in order")
	runCmd.Flags().StringVarP(&dataPath, "data", "d", "", "input dataset document")
	runCmd.Flags().StringSliceVar(&userTagKeys, "user-tags", nil, "user tag keys in slot order")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the processed dataset to this file")
	runCmd.Flags().StringVar(&storePath, "store", ".costrules", "dataset store directory")
	runCmd.Flags().StringVar(&saveName, "save", "", "save the processed dataset in the store under this name")
	runCmd.Flags().StringVar(&loadName, "load", "", "read the newest stored dataset with this name instead of --data")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "cli", "report format (cli, json)")
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	configs, err := loadRules()
	if err != nil {
		return err
	}

	cat := newCatalog()
	data, err := loadDataset(ctx, cat, loadName)
	if err != nil {
		return err
	}

	proc, err := newProcessor(configs, cat)
	if err != nil {
		return err
	}
	defer proc.Close()

	logging.Info("processing dataset",
		zap.Time("start", data.Start),
		zap.Int("intervals", data.Size()),
		zap.Int("rules", len(configs)))

	report, err := proc.Process(ctx, data)
	if err != nil {
		return fmt.Errorf("processing interrupted: %w", err)
	}

	if outPath != "" {
		if err := storage.WriteFile(outPath, data, cat.UserTagKeys(), config.Get().Output.Indent); err != nil {
			return err
		}
	}

	doc := storage.Encode(data, cat.UserTagKeys())
	if saveName != "" {
		if err := saveDataset(ctx, doc, report, configs); err != nil {
			return err
		}
	}

	if config.Get().Output.ShowReport {
		if err := printReport(cmd.OutOrStdout(), report, storage.DocumentTotals(doc)); err != nil {
			return err
		}
	}

	if !report.OK() {
		return fmt.Errorf("%d of %d rules failed", len(report.Failed), len(configs))
	}
	return nil
}

func saveDataset(ctx context.Context, doc *storage.Document, report *postproc.Report, configs []*postproc.RuleConfig) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	names := make([]string, len(configs))
	for i, c := range configs {
		names[i] = c.Name
	}
	stored := &storage.StoredDataset{
		Name:     saveName,
		RunID:    report.RunID,
		Document: doc,
		Metadata: map[string]string{"rules": strings.Join(names, ",")},
	}
	if err := store.Save(ctx, stored); err != nil {
		return err
	}
	logging.Info("dataset saved", zap.String("id", stored.ID), zap.String("name", stored.Name))
	return nil
}

func printReport(w io.Writer, report *postproc.Report, totals storage.Totals) error {
	if runFormat == "json" {
		return writeJSON(w, struct {
			*postproc.Report
			Totals storage.Totals `json:"totals"`
		}{report, totals})
	}

	fmt.Fprintf(w, "Run %s completed in %s\n\n", report.RunID, report.Duration)
	for _, r := range report.Applied {
		fmt.Fprintf(w, "  applied  %-40s %10s values\n", truncate(r.Name, 40), humanize.Comma(int64(r.ValuesWritten)))
	}
	for _, r := range report.Skipped {
		fmt.Fprintf(w, "  skipped  %-40s %s\n", truncate(r.Name, 40), r.Reason)
	}
	for _, r := range report.Failed {
		fmt.Fprintf(w, "  FAILED   %-40s %s\n", truncate(r.Name, 40), r.Message)
	}

	fmt.Fprintf(w, "\nValues written: %s\n", humanize.Comma(int64(report.ValuesWritten)))
	fmt.Fprintf(w, "Total cost:     %s\n", totals.Cost.StringFixed(4))
	fmt.Fprintf(w, "Total usage:    %s\n", totals.Usage.StringFixed(4))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
