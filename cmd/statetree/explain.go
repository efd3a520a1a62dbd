package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vango-dev/statetree/internal/errors"
)

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [code]",
		Short: "Describe error codes",
		Long: `Describe an error code, or list all of them.

Examples:
  statetree explain
  statetree explain S011`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				code := strings.ToUpper(args[0])
				if _, ok := errors.GetTemplate(code); !ok {
					return errors.Newf(errors.CategoryCLI, "unknown error code %q", args[0])
				}
				fmt.Fprint(out, errors.New(code).Format())
				return nil
			}
			for _, code := range errors.GetAllCodes() {
				t, _ := errors.GetTemplate(code)
				fmt.Fprintf(out, "%s  %-9s %s\n", code, t.Category, t.Message)
			}
			return nil
		},
	}
}
