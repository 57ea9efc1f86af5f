// Package cmd - datasets commands
package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"costrules/adapters/storage"
)

var (
	listName  string
	listLimit int
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect stored datasets",
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored datasets, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.List(cmd.Context(), &storage.ListFilter{Name: listName, Limit: listLimit})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(w, "No stored datasets.")
			return nil
		}
		for _, ds := range results {
			totals := storage.DocumentTotals(ds.Document)
			fmt.Fprintf(w, "%-36s  %-20s  %-16s  cost %s  usage %s\n",
				ds.ID, truncate(ds.Name, 20), humanize.Time(ds.CreatedAt),
				totals.Cost.StringFixed(4), totals.Usage.StringFixed(4))
		}
		return nil
	},
}

var datasetsCompareCmd = &cobra.Command{
	Use:   "compare <old-id> <new-id>",
	Short: "Compare the totals of two stored datasets",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.Compare(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

var datasetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Delete(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsListCmd, datasetsCompareCmd, datasetsDeleteCmd)

	datasetsCmd.PersistentFlags().StringVar(&storePath, "store", ".costrules", "dataset store directory")
	datasetsListCmd.Flags().StringVar(&listName, "name", "", "only list datasets with this name")
	datasetsListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of datasets (0 for all)")
}
