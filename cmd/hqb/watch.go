package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheColorRed/hasura-query-builder/internal/client"
	"github.com/TheColorRed/hasura-query-builder/internal/cursor"
	"github.com/TheColorRed/hasura-query-builder/internal/queryfile"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
)

type watchFlags struct {
	resume      string
	metricsAddr string
	maxBatches  int
}

func newWatchCmd() *cobra.Command {
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Subscribe to a single-table query file and print every update",
		Long: "Subscribe to a query file and print each update as one JSON row per line.\n" +
			"Files with a cursor stream new rows; on exit a resume token is printed to stderr.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.resume, "resume", "", "Resume token printed by a previous run")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics on this address (default observability.metrics_addr)")
	cmd.Flags().IntVar(&flags.maxBatches, "max-batches", 0, "Stop after this many updates (0 runs until interrupted)")
	return cmd
}

func runWatch(cmd *cobra.Command, path string, flags watchFlags) error {
	f, err := queryfile.Load(path)
	if err != nil {
		return err
	}
	if len(f.Tables) != 1 {
		return errors.New("watch needs a file with a single table")
	}
	if flags.resume != "" {
		tok, err := cursor.DecodeStream(flags.resume)
		if err != nil {
			return err
		}
		if err := f.Resume(tok); err != nil {
			return err
		}
	}
	queries, err := f.Queries()
	if err != nil {
		return err
	}

	a, cfg, err := start(cmd)
	if err != nil {
		return err
	}
	defer stop(a)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := flags.metricsAddr
	if addr == "" {
		addr = cfg.Observability.MetricsAddr
	}
	if addr != "" && cfg.Observability.MetricsEnabled {
		errs, err := a.ServeMetrics(addr)
		if err != nil {
			return err
		}
		go func() {
			if err := <-errs; err != nil {
				a.Logger().Error("metrics server failed", slog.String("error", err.Error()))
				cancel()
			}
		}()
	}

	def := f.Tables[0]
	enc := json.NewEncoder(cmd.OutOrStdout())
	var last result.Row
	batches := 0
	err = a.Client().Watch(ctx, queries[0], func(rows []result.Row) error {
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		if len(rows) > 0 {
			last = rows[len(rows)-1]
		}
		batches++
		if flags.maxBatches > 0 && batches >= flags.maxBatches {
			return client.ErrStop
		}
		return nil
	})
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}

	if def.Cursor != nil && last != nil {
		if value, ok := last[def.Cursor.Field]; ok {
			token := cursor.EncodeStream(cursor.StreamToken{
				Table:    def.Name,
				Field:    def.Cursor.Field,
				Ordering: def.Cursor.Ordering,
				Value:    value,
			})
			color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "resume token: %s\n", token)
		}
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", def.Name, err)
	}
	return nil
}
