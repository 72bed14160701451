package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackmichael/engagement-bench/internal/config"
	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/logging"
)

// app carries what every subcommand needs after configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "engagement",
		Short:         "Crawl social accounts and score their engagement",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.LogLevel, cfg.LogFormat).With("command", cmd.Name())
			return nil
		},
	}

	rootCmd.AddCommand(newMigrateCmd(a))
	rootCmd.AddCommand(newCrawlCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newScoreCmd(a))
	rootCmd.AddCommand(newScorePostTypesCmd(a))
	rootCmd.AddCommand(newFoldCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))

	return rootCmd
}

// parsePlatforms accepts a comma separated list. "all" selects every
// platform.
func parsePlatforms(value string) ([]domain.Platform, error) {
	if strings.EqualFold(strings.TrimSpace(value), "all") {
		return domain.Platforms, nil
	}

	var out []domain.Platform
	seen := make(map[domain.Platform]bool)
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := domain.ParsePlatform(part)
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("--platform is required")
	}
	return out, nil
}
