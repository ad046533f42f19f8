package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ferrex/internal/model"
)

func newLibraryCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage libraries",
	}
	cmd.AddCommand(newLibraryAddCommand(ctx))
	cmd.AddCommand(newLibraryListCommand(ctx))
	return cmd
}

func newLibraryAddCommand(ctx *cliContext) *cobra.Command {
	var (
		libType         string
		roots           []string
		scanIntervalMin int
		autoScan        bool
		watchForChanges bool
		analyzeOnScan   bool
		maxRetry        int
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensure()
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				return fmt.Errorf("at least one --root path is required")
			}

			lt := model.LibraryType(strings.ToLower(libType))
			id, err := services.Libraries.Upsert(cmd.Context(), model.Library{
				Name:             args[0],
				Type:             lt,
				RootPaths:        roots,
				ScanIntervalMins: scanIntervalMin,
				Enabled:          true,
				AutoScan:         autoScan,
				WatchForChanges:  watchForChanges,
				AnalyzeOnScan:    analyzeOnScan,
				MaxRetryAttempts: maxRetry,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "library %s created\n", id.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&libType, "type", "movies", "Library type: movies or series")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "Root path (repeatable)")
	cmd.Flags().IntVar(&scanIntervalMin, "interval-minutes", 60, "Scheduled scan interval in minutes")
	cmd.Flags().BoolVar(&autoScan, "auto-scan", true, "Admit scheduled scans for this library")
	cmd.Flags().BoolVar(&watchForChanges, "watch", true, "Watch this library's roots for filesystem changes")
	cmd.Flags().BoolVar(&analyzeOnScan, "analyze", true, "Run the Analyze actor during scans")
	cmd.Flags().IntVar(&maxRetry, "max-retry-attempts", 5, "Per-subject retry ceiling before dead-lettering")

	return cmd
}

func newLibraryListCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensure()
			if err != nil {
				return err
			}
			libs, err := services.Libraries.ListEnabled(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(libs))
			for _, l := range libs {
				rows = append(rows, []string{
					l.ID.String(), l.Name, string(l.Type),
					strings.Join(l.RootPaths, ", "),
					fmt.Sprintf("%v", l.AutoScan),
					fmt.Sprintf("%v", l.WatchForChanges),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Type", "Roots", "Auto-Scan", "Watch"}, rows))
			return nil
		},
	}
}
