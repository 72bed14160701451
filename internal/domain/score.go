package domain

import "time"

// ResultDateLayout formats the day a ScoreSnapshot belongs to.
const ResultDateLayout = "2006-01-02"

// DimensionScore holds the three sub-parameters of one engagement dimension.
// A nil value means the metric is undefined (e.g. division by zero).
type DimensionScore struct {
	SP1 *float64 `json:"sp1"`
	SP2 *float64 `json:"sp2"`
	SP3 *float64 `json:"sp3"`
}

// Statistics are the raw aggregates a score was derived from.
type Statistics struct {
	PostCount  int64            `json:"post_count"`
	LikeSum    int64            `json:"like_sum"`
	CommentSum int64            `json:"comment_sum"`
	ReshareSum int64            `json:"reshare_sum"`
	Breakdown  map[string]int64 `json:"breakdown,omitempty"`
}

// PostTypeScore is the engagement of one content type within an account.
type PostTypeScore struct {
	PostCount       int64    `json:"post_count"`
	EngagementIndex *float64 `json:"engagement_index"`
	Normalized      *float64 `json:"normalized"`
}

// ScoreSnapshot is the per-account, per-day scoring result. Recomputing the
// same day overwrites it.
type ScoreSnapshot struct {
	Platform      Platform `json:"platform"`
	AccountID     string   `json:"account_id"`
	ResultDate    string   `json:"result_date"`
	FollowerCount int64    `json:"follower_count"`

	Statistics Statistics `json:"statistics"`

	Popularity DimensionScore `json:"popularity"`
	Commitment DimensionScore `json:"commitment"`
	Virality   DimensionScore `json:"virality"`

	EngagementIndex *float64 `json:"engagement_index"`

	// Normalized is EngagementIndex rescaled to 0-100 against the previous
	// population's range.
	Normalized *float64 `json:"normalized"`

	// Auxiliary holds platform-specific scores keyed by strategy name.
	Auxiliary map[string]*float64 `json:"auxiliary,omitempty"`

	PostTypes map[string]PostTypeScore `json:"post_types,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// PostTypeScoreSnapshot aggregates one content type across every account of a
// platform. It is not dated; each pass replaces the previous one.
type PostTypeScoreSnapshot struct {
	Platform        Platform   `json:"platform"`
	PostType        string     `json:"post_type"`
	Statistics      Statistics `json:"statistics"`
	EngagementIndex *float64   `json:"engagement_index"`
	Normalized      *float64   `json:"normalized"`
	ComputedAt      time.Time  `json:"computed_at"`
}

// CompositeScore rolls up normalized engagement across platforms for one
// organizational entity.
type CompositeScore struct {
	EntityID   string                `json:"entity_id"`
	EntityName string                `json:"entity_name"`
	Platforms  map[Platform]*float64 `json:"platforms"`
	Composite  *float64              `json:"composite"`
	Auxiliary  map[string]*float64   `json:"auxiliary,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Bounds is a min/max pair observed over a population. Either side may be
// missing when the population is empty.
type Bounds struct {
	Min *float64
	Max *float64
}
