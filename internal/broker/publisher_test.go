package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func TestPublishPostUsesPlatformTopic(t *testing.T) {
	fp := &fakeProducer{}
	pub := &KafkaPublisher{client: fp}

	post := &domain.Post{
		Platform:  domain.PlatformFacebook,
		PostID:    "123_1",
		AccountID: "bandungkota",
		PostType:  "photo",
		CreatedAt: time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC),
		LikeCount: 5,
		Breakdown: map[string]int64{"love": 2},
	}
	require.NoError(t, pub.PublishPost(context.Background(), post))

	require.Len(t, fp.records, 1)
	rec := fp.records[0]
	assert.Equal(t, "facebook-post", rec.Topic)
	assert.Equal(t, "123_1", string(rec.Key))

	var msg postMessage
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, "bandungkota", msg.AccountID)
	assert.Equal(t, int64(2), msg.Breakdown["love"])
}

func TestPublishCommentPropagatesErrors(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	pub := &KafkaPublisher{client: fp}

	err := pub.PublishComment(context.Background(), &domain.Comment{
		Platform:  domain.PlatformYouTube,
		CommentID: "c1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "youtube-comment")

	require.NoError(t, pub.Close())
	assert.True(t, fp.closed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishPost(context.Background(), &domain.Post{}))
	assert.NoError(t, p.PublishComment(context.Background(), &domain.Comment{}))
	assert.NoError(t, p.Close())
}
