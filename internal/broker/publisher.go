package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

const produceTimeout = 5 * time.Second

// Publisher fans crawled records out to downstream consumers.
type Publisher interface {
	PublishPost(ctx context.Context, post *domain.Post) error
	PublishComment(ctx context.Context, comment *domain.Comment) error
	Close() error
}

// PostTopic is the topic a platform's posts are published to.
func PostTopic(p domain.Platform) string { return string(p) + "-post" }

// CommentTopic is the topic a platform's comments are published to.
func CommentTopic(p domain.Platform) string { return string(p) + "-comment" }

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces JSON records synchronously.
type KafkaPublisher struct {
	client producer
}

// NewKafkaPublisher connects a producer to the given seed brokers.
func NewKafkaPublisher(brokers []string, clientID string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client}, nil
}

type postMessage struct {
	Platform     domain.Platform  `json:"platform"`
	PostID       string           `json:"post_id"`
	AccountID    string           `json:"account_id"`
	PostType     string           `json:"post_type"`
	CreatedAt    time.Time        `json:"created_at"`
	Message      string           `json:"message"`
	LikeCount    int64            `json:"like_count"`
	CommentCount int64            `json:"comment_count"`
	ReshareCount int64            `json:"reshare_count"`
	Breakdown    map[string]int64 `json:"breakdown,omitempty"`
}

type commentMessage struct {
	Platform  domain.Platform `json:"platform"`
	CommentID string          `json:"comment_id"`
	PostID    string          `json:"post_id"`
	AccountID string          `json:"account_id"`
	Author    string          `json:"author,omitempty"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	LikeCount int64           `json:"like_count"`
}

func (k *KafkaPublisher) PublishPost(ctx context.Context, p *domain.Post) error {
	return k.produce(ctx, PostTopic(p.Platform), p.PostID, postMessage{
		Platform:     p.Platform,
		PostID:       p.PostID,
		AccountID:    p.AccountID,
		PostType:     p.PostType,
		CreatedAt:    p.CreatedAt,
		Message:      p.Message,
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		ReshareCount: p.ReshareCount,
		Breakdown:    p.Breakdown,
	})
}

func (k *KafkaPublisher) PublishComment(ctx context.Context, c *domain.Comment) error {
	return k.produce(ctx, CommentTopic(c.Platform), c.CommentID, commentMessage{
		Platform:  c.Platform,
		CommentID: c.CommentID,
		PostID:    c.PostID,
		AccountID: c.AccountID,
		Author:    c.Author,
		Message:   c.Message,
		CreatedAt: c.CreatedAt,
		LikeCount: c.LikeCount,
	})
}

func (k *KafkaPublisher) produce(ctx context.Context, topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()

	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	k.client.Close()
	return nil
}

// Nop discards every record. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishPost(context.Context, *domain.Post) error       { return nil }
func (Nop) PublishComment(context.Context, *domain.Comment) error { return nil }
func (Nop) Close() error                                          { return nil }
