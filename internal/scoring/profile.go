package scoring

import (
	"sort"

	"github.com/blackmichael/engagement-bench/internal/config"
	"github.com/blackmichael/engagement-bench/internal/domain"
)

// ReachBasis selects the audience size SP3 is divided by.
type ReachBasis string

const (
	// ReachFollowers divides by the follower count and scales per thousand.
	ReachFollowers ReachBasis = "followers"

	// ReachBlended divides by the mean of the min-max normalized follower
	// count and the normalized total view count, unscaled.
	ReachBlended ReachBasis = "blended"
)

// Profile describes how one platform is scored.
type Profile struct {
	Platform domain.Platform

	// Virality is false for platforms without a reshare counter.
	Virality bool

	Reach     ReachBasis
	Auxiliary []AuxiliaryStrategy
}

// AuxInput is what an auxiliary strategy may read.
type AuxInput struct {
	Stats     domain.PostStats
	Breakdown map[string]int64
}

// AuxiliaryStrategy derives platform-specific scores from raw sums. Undefined
// scores are returned as nil entries.
type AuxiliaryStrategy interface {
	Score(in AuxInput) map[string]*float64
}

// ReactionSentiment weighs each reaction type by its share of all reactions.
type ReactionSentiment struct {
	Weights map[string]float64
}

func (r ReactionSentiment) Score(in AuxInput) map[string]*float64 {
	keys := make([]string, 0, len(r.Weights))
	for k := range r.Weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total int64
	for _, k := range keys {
		total += in.Breakdown[k]
	}

	out := make(map[string]*float64, len(keys)+1)
	if total == 0 {
		out["reaction_score"] = nil
		for _, k := range keys {
			out["reaction_score."+k] = nil
		}
		return out
	}

	var sum float64
	for _, k := range keys {
		v := r.Weights[k] * float64(in.Breakdown[k]) / float64(total)
		out["reaction_score."+k] = ptr(v)
		sum += v
	}
	out["reaction_score"] = ptr(sum)
	return out
}

// RatingScore is the like share of likes plus dislikes, as a percentage.
type RatingScore struct{}

func (RatingScore) Score(in AuxInput) map[string]*float64 {
	likes := in.Stats.Likes.Sum
	dislikes := in.Breakdown["dislike"]
	if likes+dislikes == 0 {
		return map[string]*float64{"rating_score": nil}
	}
	return map[string]*float64{"rating_score": ptr(100 * float64(likes) / float64(likes+dislikes))}
}

// DefaultProfiles returns the profile of every supported platform.
func DefaultProfiles(cfg config.ScoringConfig) map[domain.Platform]Profile {
	reach := ReachBasis(cfg.YouTubeReach)
	if reach == "" {
		reach = ReachFollowers
	}
	return map[domain.Platform]Profile{
		domain.PlatformFacebook: {
			Platform:  domain.PlatformFacebook,
			Virality:  true,
			Reach:     ReachFollowers,
			Auxiliary: []AuxiliaryStrategy{ReactionSentiment{Weights: cfg.Sentiment}},
		},
		domain.PlatformTwitter: {
			Platform: domain.PlatformTwitter,
			Virality: true,
			Reach:    ReachFollowers,
		},
		domain.PlatformYouTube: {
			Platform:  domain.PlatformYouTube,
			Virality:  false,
			Reach:     reach,
			Auxiliary: []AuxiliaryStrategy{RatingScore{}},
		},
	}
}
