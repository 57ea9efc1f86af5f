// Package cmd - eval command
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"costrules/core/expression"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate an arithmetic expression",
	Long: `Evaluate an expression with the rule formula grammar: numbers, + - * /,
unary minus, parentheses, MIN(a, b) and MAX(a, b).

Example:
  costrules eval "(10 - 4 * 8 / 2) * 0.01 / 1000"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := expression.Evaluate(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatNumber(v))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
}
