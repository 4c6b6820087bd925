package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/localsearch/indexer-core/internal/output"
	"github.com/localsearch/indexer-core/internal/startup"
	"github.com/localsearch/indexer-core/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Index and continuously watch one or more directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runWatch(c.Context(), args)
		},
	}
}

func runWatch(ctx context.Context, dirs []string) error {
	drv, guard, err := buildDriver(dataDir, dirs, modelSpec)
	if err != nil {
		return err
	}
	defer closeGuard(guard)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := output.New(os.Stdout)
	cb := startup.Callbacks{
		ShowWindow: func() {},
		NotifyStageProgress: func(p startup.Progress) {
			out.Status("", fmt.Sprintf("[%s] %s", p.Stage, p.Message))
		},
		NotifyError: func(e startup.ErrorEvent) {
			out.Errorf("error during %s: %s", e.Stage, e.Type)
		},
		NotifyFilesLoaded: func() { out.Success("initial reindex complete") },
		NotifyReady:       func() { out.Success("ready, watching for changes") },
	}
	if err := drv.Bootstrap(ctx, cb); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			w, err := watcher.NewHybridWatcher(watcher.Options{DataDir: dataDir}.WithDefaults())
			if err != nil {
				return fmt.Errorf("create watcher for %s: %w", dir, err)
			}
			return drv.Watch(gctx, w, dir)
		})
	}

	watchErr := g.Wait()
	if shutdownErr := drv.Shutdown(10_000); shutdownErr != nil {
		fmt.Printf("shutdown: %v\n", shutdownErr)
	}
	if watchErr != nil && gctx.Err() == nil {
		return watchErr
	}
	return nil
}
