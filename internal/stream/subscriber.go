package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

const (
	defaultBackoff   = 5 * time.Second
	statsLogInterval = 30 * time.Second
)

// Handler receives each decoded update.
type Handler func(Message) error

// Subscriber follows a remote /v1/stream endpoint and reconnects when the
// connection drops.
type Subscriber struct {
	url      string
	platform domain.Platform
	handle   Handler
	logger   *slog.Logger
	backoff  time.Duration
}

// NewSubscriber creates a subscriber for the given ws:// or wss:// URL. An
// empty platform receives updates for every platform.
func NewSubscriber(streamURL string, platform domain.Platform, handle Handler, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:      streamURL,
		platform: platform,
		handle:   handle,
		logger:   logger,
		backoff:  defaultBackoff,
	}
}

// Start receives updates until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("stream connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.backoff):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if s.platform != "" {
		q := u.Query()
		q.Set("platform", string(s.platform))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL, err := s.buildURL()
	if err != nil {
		return err
	}
	s.logger.Info("connecting to stream", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to stream")

	received := make(map[string]int64)
	lastStatsLog := time.Now()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Error("failed to parse stream message", "error", err)
			continue
		}
		received[msg.Type]++

		if err := s.handle(msg); err != nil {
			s.logger.Error("failed to handle stream message", "type", msg.Type, "error", err)
		}

		if time.Since(lastStatsLog) >= statsLogInterval {
			s.logger.Info("stream stats",
				"scores", received[TypeScore],
				"composites", received[TypeComposite],
				"post_type_passes", received[TypePostTypes],
			)
			lastStatsLog = time.Now()
		}
	}
}
