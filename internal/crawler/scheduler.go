package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// Scheduler repeats full crawl passes over a platform's targets.
type Scheduler struct {
	crawler  *Crawler
	adapter  domain.Adapter
	targets  []Target
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(c *Crawler, adapter domain.Adapter, targets []Target, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		crawler:  c,
		adapter:  adapter,
		targets:  targets,
		interval: interval,
		logger:   logger,
	}
}

// RunOnce performs a single pass.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	start := time.Now()
	sum := s.crawler.CrawlAll(ctx, s.adapter, s.targets)
	s.logger.Info("crawl pass complete",
		"platform", s.adapter.Platform(),
		"accounts", sum.Accounts,
		"posts", sum.Posts,
		"not_found", sum.NotFound,
		"failed", sum.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return sum
}

// Run crawls immediately and then once per interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
