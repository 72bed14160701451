package domain

import "time"

// Post represents one content item published by a tracked account.
type Post struct {
	// Platform is the provider the post was crawled from.
	Platform Platform

	// PostID is the provider's identifier, unique within the platform.
	PostID string

	// AccountID is the lower-cased external id of the publishing account.
	AccountID string

	// PostType is the provider's content type (e.g. "photo", "video", "text").
	PostType string

	// CreatedAt is when the provider says the post was published.
	CreatedAt time.Time

	// Message is the post body, possibly empty.
	Message string

	// LikeCount is the like-equivalent counter (popularity dimension).
	LikeCount int64

	// CommentCount is the comment-equivalent counter (commitment dimension).
	CommentCount int64

	// ReshareCount is the reshare-equivalent counter (virality dimension).
	ReshareCount int64

	// Breakdown holds platform-specific counters such as Facebook reaction
	// types or YouTube dislikes and views.
	Breakdown map[string]int64
}

// Comment is a reply attached to a Post.
type Comment struct {
	Platform  Platform
	CommentID string
	PostID    string
	AccountID string
	Author    string
	Message   string
	CreatedAt time.Time
	LikeCount int64
}

// DimensionStats aggregates one engagement counter over a set of posts.
type DimensionStats struct {
	// NonZero is the number of posts where the counter is not zero.
	NonZero int64

	// Sum is the total of the counter across posts.
	Sum int64
}

// PostStats aggregates the engagement counters over a filtered set of posts.
type PostStats struct {
	PostCount int64
	Likes     DimensionStats
	Comments  DimensionStats
	Reshares  DimensionStats
}

// StatsFilter narrows aggregate queries. Empty fields are not applied.
type StatsFilter struct {
	Platform  Platform
	AccountID string
	PostType  string
}
