package twitter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// plainGetter issues a single GET without retries.
type plainGetter struct{}

func (plainGetter) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	return io.ReadAll(resp.Body)
}

const timeline = `[
  {"id_str":"1005","full_text":"Road works on Jl. Asia Afrika","created_at":"Wed Mar 07 10:00:00 +0000 2018",
   "favorite_count":12,"retweet_count":3,"reply_count":2,
   "extended_entities":{"media":[{"type":"photo"}]}},
  {"id_str":"1001","full_text":"RT @someone: shared","created_at":"Tue Mar 06 10:00:00 +0000 2018",
   "favorite_count":0,"retweet_count":40},
  {"id_str":"1003","full_text":"hello","created_at":"Tue Mar 06 12:00:00 +0000 2018",
   "favorite_count":1,"retweet_count":0}
]`

func TestFetchPageUsesMaxIDCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/statuses/user_timeline.json", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2000", r.URL.Query().Get("max_id"))
		assert.Equal(t, "humasbdg", r.URL.Query().Get("screen_name"))
		_, _ = w.Write([]byte(timeline))
	}))
	defer srv.Close()

	a := New(plainGetter{}, srv.URL, "tok")
	page, err := a.FetchPage(context.Background(), "humasbdg", "2000")
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, "1000", page.Next)
}

func TestFetchPageEmptyTimelineEnds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	page, err := New(plainGetter{}, srv.URL, "").FetchPage(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.Next)
}

func TestMapPost(t *testing.T) {
	a := New(nil, "", "")

	items := []string{
		`{"id_str":"1005","full_text":"Road works","created_at":"Wed Mar 07 10:00:00 +0000 2018","favorite_count":12,"retweet_count":3,"reply_count":2,"entities":{"media":[{"type":"video"}]},"extended_entities":{"media":[{"type":"photo"}]}}`,
		`{"id_str":"1003","text":"hello","created_at":"Tue Mar 06 12:00:00 +0000 2018","favorite_count":1}`,
	}

	post, comments, err := a.MapPost([]byte(items[0]))
	require.NoError(t, err)
	assert.Nil(t, comments)
	assert.Equal(t, "1005", post.PostID)
	assert.Equal(t, "photo", post.PostType)
	assert.Equal(t, int64(12), post.LikeCount)
	assert.Equal(t, int64(2), post.CommentCount)
	assert.Equal(t, int64(3), post.ReshareCount)
	assert.Equal(t, time.Date(2018, 3, 7, 10, 0, 0, 0, time.UTC), post.CreatedAt)

	plain, _, err := a.MapPost([]byte(items[1]))
	require.NoError(t, err)
	assert.Equal(t, "text", plain.PostType)
	assert.Equal(t, "hello", plain.Message)
}

func TestMapPostSkipsRetweets(t *testing.T) {
	_, _, err := New(nil, "", "").MapPost([]byte(`{"id_str":"1","full_text":"RT @a: b","created_at":"Tue Mar 06 12:00:00 +0000 2018"}`))
	require.True(t, errors.Is(err, domain.ErrSkipItem))
}

func TestAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("screen_name") == "gone" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id_str":"42","name":"Humas Bandung","screen_name":"humasbdg","followers_count":880}`))
	}))
	defer srv.Close()

	a := New(plainGetter{}, srv.URL, "")
	raw, err := a.FetchAccount(context.Background(), "humasbdg")
	require.NoError(t, err)
	acc, err := a.MapAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, "Humas Bandung", acc.DisplayName)
	assert.Equal(t, int64(880), acc.FollowerCount)

	_, err = a.FetchAccount(context.Background(), "gone")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}
