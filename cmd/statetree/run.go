package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vango-dev/statetree/internal/errors"
	"github.com/vango-dev/statetree/pkg/script"
)

func runCmd() *cobra.Command {
	var (
		diff    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its notifications",
		Long: `Run a YAML scenario against a fresh tree.

Every notification received by the scenario's watches and computed
values is printed under the step that caused it. The command fails
on the first step that errors or whose expectation does not hold.

Examples:
  statetree run counter.yaml
  statetree run --diff todos.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, args[0], diff, verbose)
		},
	}

	cmd.Flags().BoolVarP(&diff, "diff", "d", false, "Print a state diff after each step")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each step")

	return cmd
}

func runScenario(cmd *cobra.Command, path string, diff, verbose bool) error {
	s, err := script.LoadFile(path)
	if err != nil {
		return errors.Classify(err).WithYAMLLocation(path, err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	res, err := script.Run(s,
		script.WithOutput(cmd.OutOrStdout()),
		script.WithDiff(diff),
		script.WithColor(!color.NoColor),
		script.WithLogger(logger),
	)
	if err != nil {
		se := errors.Classify(err)
		var stepErr *script.StepError
		if stderrors.As(err, &stepErr) && stepErr.Index > 0 {
			se.WithDetail(strings.TrimSpace(fmt.Sprintf("Step %d (%s) of %s failed. %s",
				stepErr.Index, stepErr.Op, path, se.Detail)))
		}
		return se
	}

	fmt.Fprintln(cmd.OutOrStdout())
	success("%d steps, %d notifications", len(s.Steps), len(res.Events))
	for _, name := range res.Pending {
		warn("when %q never resolved", name)
	}
	return nil
}
