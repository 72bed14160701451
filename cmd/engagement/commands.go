package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.repo.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.logger.Info("schema up to date")
			return nil
		},
	}
}

func newScoreCmd(a *app) *cobra.Command {
	var platformFlag, account string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one account now",
		Example: `  # Rescore an official Twitter account
  engagement score --platform twitter --account humasbdg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := domain.ParsePlatform(platformFlag)
			if err != nil {
				return err
			}
			c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()

			snapshot, err := c.engine().ScoreAccount(cmd.Context(), p, account)
			if err != nil {
				return err
			}
			return printJSON(snapshot)
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "Platform of the account (facebook, twitter, youtube)")
	cmd.Flags().StringVar(&account, "account", "", "Account handle or id")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newScorePostTypesCmd(a *app) *cobra.Command {
	var platformFlag string

	cmd := &cobra.Command{
		Use:   "score-post-types",
		Short: "Recompute post-type scores over a platform's population",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := domain.ParsePlatform(platformFlag)
			if err != nil {
				return err
			}
			c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()

			snapshots, err := c.engine().ScorePostTypes(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(snapshots)
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "Platform to score (facebook, twitter, youtube)")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func newFoldCmd(a *app) *cobra.Command {
	var (
		entity string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "fold",
		Short: "Recompute cross-platform composites",
		Example: `  # One entity
  engagement fold --entity 3273

  # The whole configured population
  engagement fold --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()

			if all {
				scores, err := c.aggregator().FoldAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(scores)
			}

			score, err := c.aggregator().Fold(cmd.Context(), entity)
			if err != nil {
				return err
			}
			return printJSON(score)
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Entity id from the configured population")
	cmd.Flags().BoolVar(&all, "all", false, "Fold every configured entity")
	cmd.MarkFlagsOneRequired("entity", "all")
	cmd.MarkFlagsMutuallyExclusive("entity", "all")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
