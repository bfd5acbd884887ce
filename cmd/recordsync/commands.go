package main

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/sync/progresslog"
)

func syncCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load every page, wait for detail hydration and print the records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.loadAndHydrate(); err != nil {
				return err
			}
			rt.logMetricSummary()
			return writeJSONLines(cmd.OutOrStdout(), rt.engine.list())
		},
	}
	return cmd
}

func searchCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Load every page and print the records matching query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.loadAndHydrate(); err != nil {
				return err
			}
			return writeJSONLines(cmd.OutOrStdout(), rt.engine.search(args[0]))
		},
	}
	return cmd
}

func detailCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detail <id>",
		Short: "Fetch one record, falling back to a query when the detail endpoint fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rt.engine.detail(rt.ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSONLines(cmd.OutOrStdout(), []any{e})
		},
	}
	return cmd
}

func (rt *runtime) loadAndHydrate() error {
	ctx := rt.ctx
	progress := progresslog.New(ctx, rt.engine.entityType())

	progressCtx, stopProgress := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportProgress(progressCtx, rt.engine.hydrated(), progress)
	}()
	defer func() {
		stopProgress()
		wg.Wait()
	}()

	for rt.engine.pageState().HasMore {
		before := len(rt.engine.list())
		if err := rt.engine.loadNextPage(ctx); err != nil {
			return err
		}
		progress.AddRecords(len(rt.engine.list()) - before)
		progress.LogPageProgress(rt.engine.pageState().PageIndex)
	}

	return rt.engine.waitForHydration(ctx)
}

func reportProgress(ctx context.Context, events <-chan outcome, progress *progresslog.ProgressLog) {
	l := ctxzap.Extract(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			progress.AddHydration(ev.outcome)
			if ev.err != nil {
				l.Debug("record not hydrated", zap.String("id", ev.id), zap.String("outcome", string(ev.outcome)), zap.Error(ev.err))
			}
		}
	}
}

func writeJSONLines(w io.Writer, items []any) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
