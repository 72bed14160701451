package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// DialRedis parses a redis:// URL, applies client timeouts and verifies the
// connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisLog is a bounded event log backed by one Redis stream per platform.
// Trimming on append keeps at most capacity entries.
type RedisLog struct {
	client   redis.UniversalClient
	key      string
	capacity int64
	block    time.Duration
	logger   *slog.Logger
}

var _ domain.EventLog = (*RedisLog)(nil)

// NewRedisLog creates the log stored under "<prefix>:<platform>".
func NewRedisLog(client redis.UniversalClient, prefix string, platform domain.Platform, capacity int, block time.Duration, logger *slog.Logger) *RedisLog {
	return &RedisLog{
		client:   client,
		key:      prefix + ":" + string(platform),
		capacity: int64(capacity),
		block:    block,
		logger:   logger,
	}
}

// Key returns the stream name.
func (l *RedisLog) Key() string {
	return l.key
}

// Reset deletes the stream.
func (l *RedisLog) Reset(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("delete stream %s: %w", l.key, err)
	}
	return nil
}

// Append adds the event and trims the oldest entries beyond capacity in the
// same transaction.
func (l *RedisLog) Append(ctx context.Context, event domain.Event) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: l.key,
			ID:     "*",
			Values: map[string]any{
				"platform":     string(event.Platform),
				"account_id":   event.AccountID,
				"account_type": string(event.AccountType),
				"emitted_at":   strconv.FormatInt(event.EmittedAt.UnixMilli(), 10),
			},
		})
		pipe.XTrimMaxLen(ctx, l.key, l.capacity)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to stream %s: %w", l.key, err)
	}
	return nil
}

// Tail resolves the id of the newest entry so the reader starts after it.
func (l *RedisLog) Tail(ctx context.Context) (domain.Tailer, error) {
	last := "0-0"
	msgs, err := l.client.XRevRangeN(ctx, l.key, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("resolve stream end %s: %w", l.key, err)
	}
	if len(msgs) > 0 {
		last = msgs[0].ID
	}
	return &redisTailer{log: l, lastID: last}, nil
}

type redisTailer struct {
	log    *RedisLog
	lastID string
	closed bool
}

// Next returns the entry after the last one read. Entries that cannot be
// decoded are logged and passed over so one bad write cannot stall the reader.
func (t *redisTailer) Next(ctx context.Context) (domain.Event, error) {
	for {
		if t.closed {
			return domain.Event{}, ErrClosed
		}

		streams, err := t.log.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{t.log.key, t.lastID},
			Count:   1,
			Block:   t.log.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return domain.Event{}, domain.ErrTailExhausted
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.Event{}, ctx.Err()
			}
			return domain.Event{}, fmt.Errorf("read stream %s: %w", t.log.key, err)
		}

		msg, ok := first(streams)
		if !ok {
			return domain.Event{}, domain.ErrTailExhausted
		}
		t.lastID = msg.ID

		ev, err := decodeEvent(msg.Values)
		if err != nil {
			t.log.logger.Warn("skipping undecodable stream entry", "stream", t.log.key, "id", msg.ID, "error", err)
			continue
		}
		return ev, nil
	}
}

func first(streams []redis.XStream) (redis.XMessage, bool) {
	for _, s := range streams {
		if len(s.Messages) > 0 {
			return s.Messages[0], true
		}
	}
	return redis.XMessage{}, false
}

func (t *redisTailer) Close() error {
	t.closed = true
	return nil
}

func decodeEvent(values map[string]any) (domain.Event, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}

	ev := domain.Event{
		Platform:    domain.Platform(str("platform")),
		AccountID:   str("account_id"),
		AccountType: domain.AccountType(str("account_type")),
	}
	if ms := str("emitted_at"); ms != "" {
		n, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return domain.Event{}, fmt.Errorf("decode emitted_at: %w", err)
		}
		ev.EmittedAt = time.UnixMilli(n).UTC()
	}
	if ev.AccountID == "" {
		return domain.Event{}, fmt.Errorf("decode event: missing account_id")
	}
	return ev, nil
}
