package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/engagement-bench/internal/aggregator"
	"github.com/blackmichael/engagement-bench/internal/broker"
	"github.com/blackmichael/engagement-bench/internal/config"
	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/eventlog"
	"github.com/blackmichael/engagement-bench/internal/fetch"
	"github.com/blackmichael/engagement-bench/internal/metrics"
	"github.com/blackmichael/engagement-bench/internal/platform"
	"github.com/blackmichael/engagement-bench/internal/platform/facebook"
	"github.com/blackmichael/engagement-bench/internal/platform/twitter"
	"github.com/blackmichael/engagement-bench/internal/platform/youtube"
	"github.com/blackmichael/engagement-bench/internal/scoring"
	"github.com/blackmichael/engagement-bench/internal/sqlstore"
)

// components holds the process-wide resources shared by subcommands.
type components struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	repo    *sqlstore.Repository

	redis *redis.Client
	rings map[domain.Platform]*eventlog.Ring
}

func (a *app) open() (*components, error) {
	repo, err := sqlstore.NewRepository(a.cfg.Database.Driver, a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	a.logger.Info("connected to database", "driver", a.cfg.Database.Driver)

	return &components{
		cfg:     a.cfg,
		logger:  a.logger,
		metrics: metrics.New(),
		repo:    repo,
		rings:   make(map[domain.Platform]*eventlog.Ring),
	}, nil
}

func (c *components) Close() {
	if c.redis != nil {
		c.redis.Close()
	}
	c.repo.Close()
}

// eventLog returns the platform's completion log. The memory backend only
// connects a crawler and a notifier running in the same process.
func (c *components) eventLog(ctx context.Context, p domain.Platform) (domain.EventLog, error) {
	cfg := c.cfg.EventLog
	if cfg.Backend == "memory" {
		ring, ok := c.rings[p]
		if !ok {
			ring = eventlog.NewRing(cfg.Capacity, cfg.Block)
			c.rings[p] = ring
		}
		return ring, nil
	}

	if c.redis == nil {
		client, err := eventlog.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.redis = client
		c.logger.Info("connected to redis")
	}
	return eventlog.NewRedisLog(c.redis, cfg.Prefix, p, cfg.Capacity, cfg.Block, c.logger), nil
}

func (c *components) adapters() *platform.Registry {
	opts := fetch.Options{
		Courtesy:   c.cfg.Crawler.Courtesy,
		RetryDelay: c.cfg.Crawler.RetryDelay,
		MaxRetries: c.cfg.Crawler.MaxRetries,
		Timeout:    c.cfg.Crawler.HTTPTimeout,
	}
	client := func(p domain.Platform) *fetch.Client {
		return fetch.New(p, opts, c.logger, c.metrics)
	}

	fb := c.cfg.Provider(domain.PlatformFacebook)
	tw := c.cfg.Provider(domain.PlatformTwitter)
	yt := c.cfg.Provider(domain.PlatformYouTube)
	return platform.NewRegistry(
		facebook.New(client(domain.PlatformFacebook), fb.BaseURL, fb.Token),
		twitter.New(client(domain.PlatformTwitter), tw.BaseURL, tw.Token),
		youtube.New(client(domain.PlatformYouTube), yt.BaseURL, yt.Token),
	)
}

func (c *components) publisher() (broker.Publisher, error) {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return broker.Nop{}, nil
	}
	p, err := broker.NewKafkaPublisher(c.cfg.Kafka.Brokers, c.cfg.Kafka.ClientID)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	c.logger.Info("publishing crawled records to kafka", "brokers", c.cfg.Kafka.Brokers)
	return p, nil
}

func (c *components) engine() *scoring.Engine {
	return scoring.NewEngine(c.repo, scoring.DefaultProfiles(c.cfg.Scoring), c.logger, c.metrics)
}

func (c *components) aggregator() *aggregator.Aggregator {
	return aggregator.New(c.repo, aggregator.NewDirectory(c.cfg.Entities), c.logger)
}
