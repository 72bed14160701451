package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/platform"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	pageSize       = 50
)

// Adapter reads channel uploads from the Data API v3. Each page is a search
// result page expanded with a videos call so items carry statistics.
type Adapter struct {
	getter  platform.Getter
	baseURL string
	apiKey  string
}

var _ domain.Adapter = (*Adapter)(nil)

func New(getter platform.Getter, baseURL, apiKey string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformYouTube
}

func (a *Adapter) get(ctx context.Context, resource string, q url.Values, out any) error {
	q.Set("key", a.apiKey)
	body, err := a.getter.Get(ctx, a.baseURL+"/"+resource+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	return nil
}

type listResponse struct {
	Items         []json.RawMessage `json:"items"`
	NextPageToken string            `json:"nextPageToken"`
}

// FetchAccount returns the channel resource. A channel id that resolves to no
// items is reported as domain.ErrNotFound.
func (a *Adapter) FetchAccount(ctx context.Context, externalID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("id", externalID)

	var resp listResponse
	if err := a.get(ctx, "channels", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	return resp.Items[0], nil
}

type channel struct {
	ID      string `json:"id"`
	Snippet struct {
		Title string `json:"title"`
	} `json:"snippet"`
	Statistics struct {
		SubscriberCount int64 `json:"subscriberCount,string"`
		ViewCount       int64 `json:"viewCount,string"`
	} `json:"statistics"`
}

func (a *Adapter) MapAccount(raw json.RawMessage) (*domain.Account, error) {
	var c channel
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode channel: %w", err)
	}
	return &domain.Account{
		Platform:      domain.PlatformYouTube,
		DisplayName:   c.Snippet.Title,
		FollowerCount: c.Statistics.SubscriberCount,
	}, nil
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
}

func (a *Adapter) FetchPage(ctx context.Context, externalID, cursor string) (*domain.Page, error) {
	q := url.Values{}
	q.Set("part", "id")
	q.Set("channelId", externalID)
	q.Set("type", "video")
	q.Set("order", "date")
	q.Set("maxResults", fmt.Sprint(pageSize))
	if cursor != "" {
		q.Set("pageToken", cursor)
	}

	var search listResponse
	if err := a.get(ctx, "search", q, &search); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(search.Items))
	for _, raw := range search.Items {
		var item searchItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode search item: %w", err)
		}
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return &domain.Page{}, nil
	}

	vq := url.Values{}
	vq.Set("part", "snippet,statistics")
	vq.Set("id", strings.Join(ids, ","))

	var videos listResponse
	if err := a.get(ctx, "videos", vq, &videos); err != nil {
		return nil, err
	}
	return &domain.Page{Items: videos.Items, Next: search.NextPageToken}, nil
}

type video struct {
	ID      string `json:"id"`
	Snippet struct {
		PublishedAt time.Time `json:"publishedAt"`
		Title       string    `json:"title"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    int64 `json:"viewCount,string"`
		LikeCount    int64 `json:"likeCount,string"`
		DislikeCount int64 `json:"dislikeCount,string"`
		CommentCount int64 `json:"commentCount,string"`
	} `json:"statistics"`
}

// MapPost maps a video. YouTube has no reshare counter, so the virality
// dimension stays empty; dislikes and views go into the breakdown.
func (a *Adapter) MapPost(raw json.RawMessage) (*domain.Post, []domain.Comment, error) {
	var v video
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, fmt.Errorf("decode video: %w", err)
	}
	if v.ID == "" {
		return nil, nil, domain.ErrSkipItem
	}

	return &domain.Post{
		Platform:     domain.PlatformYouTube,
		PostID:       v.ID,
		PostType:     "video",
		CreatedAt:    v.Snippet.PublishedAt.UTC(),
		Message:      strings.TrimSpace(v.Snippet.Title),
		LikeCount:    v.Statistics.LikeCount,
		CommentCount: v.Statistics.CommentCount,
		Breakdown: map[string]int64{
			"dislike": v.Statistics.DislikeCount,
			"view":    v.Statistics.ViewCount,
		},
	}, nil, nil
}
