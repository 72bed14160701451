package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/platform"
)

const (
	DefaultBaseURL = "https://api.twitter.com/1.1"
	pageSize       = 100
)

// Adapter reads user timelines from the v1.1 REST API. Pages are walked
// backwards with max_id.
type Adapter struct {
	getter  platform.Getter
	baseURL string
	token   string
}

var _ domain.Adapter = (*Adapter)(nil)

func New(getter platform.Getter, baseURL, bearerToken string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   bearerToken,
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformTwitter
}

func (a *Adapter) headers() map[string]string {
	if a.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + a.token}
}

func (a *Adapter) FetchAccount(ctx context.Context, externalID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("screen_name", externalID)
	return a.getter.Get(ctx, a.baseURL+"/users/show.json?"+q.Encode(), a.headers())
}

type user struct {
	IDStr          string `json:"id_str"`
	Name           string `json:"name"`
	ScreenName     string `json:"screen_name"`
	FollowersCount int64  `json:"followers_count"`
}

func (a *Adapter) MapAccount(raw json.RawMessage) (*domain.Account, error) {
	var u user
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	name := u.Name
	if name == "" {
		name = u.ScreenName
	}
	return &domain.Account{
		Platform:      domain.PlatformTwitter,
		DisplayName:   name,
		FollowerCount: u.FollowersCount,
	}, nil
}

type timelineID struct {
	IDStr string `json:"id_str"`
}

func (a *Adapter) FetchPage(ctx context.Context, externalID, cursor string) (*domain.Page, error) {
	q := url.Values{}
	q.Set("screen_name", externalID)
	q.Set("count", strconv.Itoa(pageSize))
	q.Set("include_rts", "true")
	q.Set("tweet_mode", "extended")
	if cursor != "" {
		q.Set("max_id", cursor)
	}

	body, err := a.getter.Get(ctx, a.baseURL+"/statuses/user_timeline.json?"+q.Encode(), a.headers())
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}

	page := &domain.Page{Items: items}
	if len(items) == 0 {
		return page, nil
	}

	var lowest uint64
	for _, raw := range items {
		var t timelineID
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode tweet id: %w", err)
		}
		id, err := strconv.ParseUint(t.IDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse tweet id %q: %w", t.IDStr, err)
		}
		if lowest == 0 || id < lowest {
			lowest = id
		}
	}
	if lowest > 1 {
		page.Next = strconv.FormatUint(lowest-1, 10)
	}
	return page, nil
}

type media struct {
	Type string `json:"type"`
}

type tweet struct {
	IDStr         string `json:"id_str"`
	FullText      string `json:"full_text"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	FavoriteCount int64  `json:"favorite_count"`
	RetweetCount  int64  `json:"retweet_count"`
	ReplyCount    int64  `json:"reply_count"`
	QuoteCount    int64  `json:"quote_count"`
	Entities      struct {
		Media []media `json:"media"`
	} `json:"entities"`
	ExtendedEntities struct {
		Media []media `json:"media"`
	} `json:"extended_entities"`
}

// MapPost skips retweets. The post type is the first attached media type, or
// "text" for plain tweets.
func (a *Adapter) MapPost(raw json.RawMessage) (*domain.Post, []domain.Comment, error) {
	var t tweet
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, nil, fmt.Errorf("decode tweet: %w", err)
	}

	text := t.FullText
	if text == "" {
		text = t.Text
	}
	if strings.Contains(text, "RT @") {
		return nil, nil, domain.ErrSkipItem
	}

	created, err := time.Parse(time.RubyDate, t.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("tweet %s: parse created_at %q: %w", t.IDStr, t.CreatedAt, err)
	}

	postType := "text"
	if len(t.Entities.Media) > 0 {
		postType = t.Entities.Media[0].Type
	}
	if len(t.ExtendedEntities.Media) > 0 {
		postType = t.ExtendedEntities.Media[0].Type
	}

	post := &domain.Post{
		Platform:     domain.PlatformTwitter,
		PostID:       t.IDStr,
		PostType:     postType,
		CreatedAt:    created.UTC(),
		Message:      strings.TrimSpace(text),
		LikeCount:    t.FavoriteCount,
		CommentCount: t.ReplyCount,
		ReshareCount: t.RetweetCount,
	}
	if t.QuoteCount > 0 {
		post.Breakdown = map[string]int64{"quote": t.QuoteCount}
	}
	return post, nil, nil
}
