package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/orchestrator"
)

func newScanCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run scans in the foreground",
	}
	cmd.AddCommand(newScanStartCommand(ctx))
	return cmd
}

// newScanStartCommand admits one scan against the library identified
// by id and blocks until it reaches a terminal status, printing each
// ScanProgress snapshot as it arrives. A SIGINT requests cancellation
// instead of killing the process outright, so in-flight work gets the
// chance to observe it at its next suspension point.
func newScanStartCommand(ctx *cliContext) *cobra.Command {
	var (
		mode           string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "start <library-id>",
		Short: "Admit and run a scan to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensure()
			if err != nil {
				return err
			}

			libID, err := ids.ParseLibraryId(args[0])
			if err != nil {
				return fmt.Errorf("invalid library id: %w", err)
			}
			lib, err := services.Libraries.GetByID(cmd.Context(), libID)
			if err != nil {
				return err
			}
			if lib == nil {
				return fmt.Errorf("library %s not found", libID)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services.Orchestrator.Start(runCtx)

			scanMode := model.ScanMode(mode)
			if scanMode == "" {
				scanMode = model.ScanModeCursor
			}
			key := idempotencyKey
			if key == "" {
				key = "ferrexctl:" + time.Now().UTC().Format(time.RFC3339Nano)
			}

			scanID, err := services.Orchestrator.StartScan(runCtx, orchestrator.Request{
				LibraryID:      libID,
				RootPaths:      lib.RootPaths,
				Mode:           scanMode,
				CorrelationID:  "ferrexctl",
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}

			return watchScan(runCtx, services.Orchestrator, scanID, cmd)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "cursor", "Scan mode: full_rescan, cursor, or incremental")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key; defaults to a timestamp-derived key")

	return cmd
}

func watchScan(ctx context.Context, orch *orchestrator.Orchestrator, scanID ids.ScanId, cmd *cobra.Command) error {
	go func() {
		<-ctx.Done()
		_ = orch.Cancel(scanID)
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	out := cmd.OutOrStdout()
	inPlace := isTerminal(out)

	var lastSeq uint64
	for range ticker.C {
		snap, ok := orch.Snapshot(scanID)
		if !ok {
			return fmt.Errorf("scan %s vanished", scanID)
		}
		if snap.Sequence != lastSeq {
			lastSeq = snap.Sequence
			line := fmt.Sprintf("[%s] %s %d/%d retrying=%d dead_lettered=%d",
				scanID, snap.Status, snap.CompletedItems, snap.TotalItems,
				snap.RetryingItems, snap.DeadLetteredItems)
			if inPlace {
				fmt.Fprintf(out, "\r\033[K%s", line)
			} else {
				fmt.Fprintln(out, line)
			}
		}
		if snap.Status.Terminal() {
			if inPlace {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "scan %s finished: %s\n", scanID, snap.Status)
			return nil
		}
	}
	return nil
}
