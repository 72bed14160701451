package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/engagement-bench/internal/crawler"
	"github.com/blackmichael/engagement-bench/internal/domain"
)

func newCrawlCmd(a *app) *cobra.Command {
	var (
		platformFlag string
		once         bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured accounts of one or more platforms",
		Long: `Crawl every configured account of the given platforms, store posts and
comments, and append a completion event per account for the notifier.

Accounts seen for the first time are crawled exhaustively; known accounts
stop after the configured post limit.`,
		Example: `  # Crawl Facebook forever, once per CRAWL_INTERVAL
  engagement crawl --platform facebook

  # One pass over Twitter and YouTube
  engagement crawl --platform twitter,youtube --once`,
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

			if c.cfg.EventLog.Backend == "memory" {
				a.logger.Warn("memory event log is not shared with other processes; run serve --crawl to score as you crawl")
			}

			schedulers, closePublisher, err := c.schedulers(cmd.Context(), platforms)
			if err != nil {
				return err
			}
			defer closePublisher()

			if once {
				for _, s := range schedulers {
					s.RunOnce(cmd.Context())
				}
				return nil
			}
			return runSchedulers(cmd.Context(), schedulers)
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "Comma separated platforms, or all")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

// schedulers builds one crawl scheduler per platform. They share the Kafka
// publisher, which the returned func closes.
func (c *components) schedulers(ctx context.Context, platforms []domain.Platform) ([]*crawler.Scheduler, func(), error) {
	publisher, err := c.publisher()
	if err != nil {
		return nil, nil, err
	}
	closePublisher := func() {
		if err := publisher.Close(); err != nil {
			c.logger.Error("error closing publisher", "error", err)
		}
	}

	registry := c.adapters()
	var out []*crawler.Scheduler
	for _, p := range platforms {
		adapter, err := registry.Get(p)
		if err != nil {
			closePublisher()
			return nil, nil, err
		}
		events, err := c.eventLog(ctx, p)
		if err != nil {
			closePublisher()
			return nil, nil, err
		}

		targets := crawler.TargetsFor(c.cfg.Entities, p)
		if len(targets) == 0 {
			c.logger.Warn("no accounts configured", "platform", p)
		}
		// The crawler and scheduler tag their own lines with the platform.
		cr := crawler.New(c.repo, events, publisher, c.cfg.Crawler.Limit, c.logger, c.metrics)
		out = append(out, crawler.NewScheduler(cr, adapter, targets, c.cfg.Crawler.Interval, c.logger))
	}
	return out, closePublisher, nil
}

func runSchedulers(ctx context.Context, schedulers []*crawler.Scheduler) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range schedulers {
		g.Go(func() error {
			return s.Run(ctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}
