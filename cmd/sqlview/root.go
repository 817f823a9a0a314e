package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sqlview/internal/config"
	"github.com/JonMunkholm/sqlview/internal/core"
	"github.com/JonMunkholm/sqlview/internal/logging"
	"github.com/JonMunkholm/sqlview/internal/sqlitedb"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "sqlview",
		Short:         "Inspect SQLite databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			// stdout carries the JSON payload, so logs always go to stderr.
			slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, os.Stderr, level, "tint")))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	root.AddCommand(newInspectCmd())
	return root
}

func newInspectCmd() *cobra.Command {
	var (
		tables []string
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print every table of a database as JSON",
		Long: `Reads every table of a SQLite database and prints
{"tables_metadata": [{"name", "columns", "types", "data"}]}.
The file is opened read-only and never modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			result, err := core.NewService(cfg, nil).InspectFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
			}
			for _, name := range result.Skipped {
				slog.Warn("table skipped", "table", name)
			}

			if len(tables) > 0 {
				result.Tables = filterTables(result.Tables, tables)
				if len(result.Tables) == 0 {
					return fmt.Errorf("no table named %v", tables)
				}
			}
			return writeResult(cmd, result, pretty)
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "only print these tables (repeatable)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}

// filterTables keeps the tables named in want, in catalog order.
func filterTables(all []sqlitedb.Table, want []string) []sqlitedb.Table {
	out := make([]sqlitedb.Table, 0, len(want))
	for _, t := range all {
		if slices.Contains(want, t.Name) {
			out = append(out, t)
		}
	}
	return out
}

func writeResult(cmd *cobra.Command, result *core.Result, pretty bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}
