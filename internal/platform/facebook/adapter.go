package facebook

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
	DefaultBaseURL = "https://graph.facebook.com/v3.0"

	// Graph API timestamps, e.g. 2018-03-01T10:15:00+0000.
	timeLayout = "2006-01-02T15:04:05-0700"
	pageSize   = 100
)

// Reactions are the reaction types stored in a post's breakdown.
var Reactions = []string{"like", "love", "wow", "haha", "sad", "angry"}

// Adapter reads pages and their posts from the Graph API.
type Adapter struct {
	getter  platform.Getter
	baseURL string
	token   string
}

var _ domain.Adapter = (*Adapter)(nil)

func New(getter platform.Getter, baseURL, token string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformFacebook
}

func (a *Adapter) FetchAccount(ctx context.Context, externalID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("fields", "id,name,fan_count")
	q.Set("access_token", a.token)

	body, err := a.getter.Get(ctx, a.baseURL+"/"+url.PathEscape(externalID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

type page struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FanCount int64  `json:"fan_count"`
}

func (a *Adapter) MapAccount(raw json.RawMessage) (*domain.Account, error) {
	var p page
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &domain.Account{
		Platform:      domain.PlatformFacebook,
		DisplayName:   p.Name,
		FollowerCount: p.FanCount,
	}, nil
}

func postFields() string {
	fields := []string{
		"id", "type", "message", "created_time",
		"shares",
		"comments.limit(100).summary(true){id,message,created_time,from,like_count}",
	}
	for _, r := range Reactions {
		fields = append(fields, fmt.Sprintf(
			"reactions.type(%s).summary(total_count).limit(0).as(%s)", strings.ToUpper(r), r))
	}
	return strings.Join(fields, ",")
}

type postsResponse struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

func (a *Adapter) FetchPage(ctx context.Context, externalID, cursor string) (*domain.Page, error) {
	q := url.Values{}
	q.Set("fields", postFields())
	q.Set("limit", fmt.Sprint(pageSize))
	q.Set("access_token", a.token)
	if cursor != "" {
		q.Set("after", cursor)
	}

	body, err := a.getter.Get(ctx, a.baseURL+"/"+url.PathEscape(externalID)+"/posts?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp postsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode posts page: %w", err)
	}

	out := &domain.Page{Items: resp.Data}
	if resp.Paging.Next != "" {
		out.Next = resp.Paging.Cursors.After
	}
	return out, nil
}

type summary struct {
	Summary struct {
		TotalCount int64 `json:"total_count"`
	} `json:"summary"`
}

type comment struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	LikeCount   int64  `json:"like_count"`
	From        struct {
		Name string `json:"name"`
	} `json:"from"`
}

type post struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	Shares      struct {
		Count int64 `json:"count"`
	} `json:"shares"`
	Comments struct {
		Data []comment `json:"data"`
		summary
	} `json:"comments"`
	Like  summary `json:"like"`
	Love  summary `json:"love"`
	Wow   summary `json:"wow"`
	Haha  summary `json:"haha"`
	Sad   summary `json:"sad"`
	Angry summary `json:"angry"`
}

func (a *Adapter) MapPost(raw json.RawMessage) (*domain.Post, []domain.Comment, error) {
	var p post
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, fmt.Errorf("decode post: %w", err)
	}
	if p.ID == "" {
		return nil, nil, domain.ErrSkipItem
	}

	created, err := parseTime(p.CreatedTime)
	if err != nil {
		return nil, nil, fmt.Errorf("post %s: %w", p.ID, err)
	}

	postType := p.Type
	if postType == "" {
		postType = "status"
	}

	out := &domain.Post{
		Platform:     domain.PlatformFacebook,
		PostID:       p.ID,
		PostType:     postType,
		CreatedAt:    created,
		Message:      strings.TrimSpace(p.Message),
		LikeCount:    p.Like.Summary.TotalCount,
		CommentCount: p.Comments.Summary.TotalCount,
		ReshareCount: p.Shares.Count,
		Breakdown: map[string]int64{
			"like":  p.Like.Summary.TotalCount,
			"love":  p.Love.Summary.TotalCount,
			"wow":   p.Wow.Summary.TotalCount,
			"haha":  p.Haha.Summary.TotalCount,
			"sad":   p.Sad.Summary.TotalCount,
			"angry": p.Angry.Summary.TotalCount,
		},
	}

	comments := make([]domain.Comment, 0, len(p.Comments.Data))
	for _, c := range p.Comments.Data {
		ct, err := parseTime(c.CreatedTime)
		if err != nil {
			return nil, nil, fmt.Errorf("comment %s: %w", c.ID, err)
		}
		comments = append(comments, domain.Comment{
			Platform:  domain.PlatformFacebook,
			CommentID: c.ID,
			PostID:    p.ID,
			Author:    c.From.Name,
			Message:   strings.TrimSpace(c.Message),
			CreatedAt: ct,
			LikeCount: c.LikeCount,
		})
	}
	return out, comments, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_time %q: %w", s, err)
	}
	return t.UTC(), nil
}
