package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/engagement-bench/internal/httpserver"
	"github.com/blackmichael/engagement-bench/internal/notifier"
	"github.com/blackmichael/engagement-bench/internal/stream"
)

const streamBuffer = 64

func newServeCmd(a *app) *cobra.Command {
	var (
		platformFlag string
		crawl        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notifiers, the HTTP API and the live stream",
		Long: `Run one notifier per platform. Each notifier resets its event log on
start, then rescores accounts as their crawls complete and refolds the
composites of the entities they belong to.

The HTTP API serves the latest scores and a websocket stream of updates.`,
		Example: `  # Score every platform, crawling in the same process
  engagement serve --platform all --crawl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			platforms, err := parsePlatforms(platformFlag)
			if err != nil {
				return err
			}
			c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			hub := stream.NewHub(streamBuffer, a.logger, c.metrics)
			defer hub.Close()

			engine := c.engine()
			agg := c.aggregator()
			g, ctx := errgroup.WithContext(ctx)

			for _, p := range platforms {
				events, err := c.eventLog(ctx, p)
				if err != nil {
					return err
				}
				n := notifier.New(p, notifier.Deps{
					Events:   events,
					Scorer:   engine,
					Folder:   agg,
					Stream:   hub,
					Accounts: c.repo,
				}, notifier.Options{
					PostTypeEvery: c.cfg.Notifier.PostTypeEvery,
					IdleSleep:     c.cfg.Notifier.IdleSleep,
				}, a.logger, c.metrics)

				g.Go(func() error {
					return n.Run(ctx)
				})
				if every := c.cfg.Notifier.ReconcileInterval; every > 0 {
					g.Go(func() error {
						return n.RunReconcile(ctx, every)
					})
				}
			}

			if crawl {
				schedulers, closePublisher, err := c.schedulers(ctx, platforms)
				if err != nil {
					return err
				}
				defer closePublisher()
				for _, s := range schedulers {
					g.Go(func() error {
						return s.Run(ctx)
					})
				}
			}

			server := httpserver.NewServer(c.cfg, c.repo, hub, c.metrics, a.logger)
			g.Go(func() error {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("error shutting down http server", "error", err)
				}
				return nil
			})

			a.logger.Info("server started", "port", c.cfg.Port, "platforms", platforms, "crawl", crawl)

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("shut down cleanly")
			return nil
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "Comma separated platforms, or all")
	cmd.Flags().BoolVar(&crawl, "crawl", false, "Also run the crawl schedulers in this process")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}
