package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/stream"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		streamURL    string
		platformFlag string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live score updates from a running server",
		Example: `  # Follow YouTube updates from a local server
  engagement watch --url ws://localhost:3000/v1/stream --platform youtube`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p domain.Platform
			if platformFlag != "" {
				parsed, err := domain.ParsePlatform(platformFlag)
				if err != nil {
					return err
				}
				p = parsed
			}
			if streamURL == "" {
				streamURL = fmt.Sprintf("ws://localhost:%d/v1/stream", a.cfg.Port)
			}

			enc := json.NewEncoder(os.Stdout)
			sub := stream.NewSubscriber(streamURL, p, func(m stream.Message) error {
				return enc.Encode(m)
			}, a.logger)

			if err := sub.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&streamURL, "url", "", "Stream endpoint (default ws://localhost:$PORT/v1/stream)")
	cmd.Flags().StringVar(&platformFlag, "platform", "", "Only show updates for this platform")
	return cmd
}
