package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

func bounds(lo, hi float64) domain.Bounds {
	return domain.Bounds{Min: ptr(lo), Max: ptr(hi)}
}

func TestSubParameters(t *testing.T) {
	assert.Nil(t, ReachRatio(0, 0))
	assert.Nil(t, Average(10, 0))
	assert.InDelta(t, 0.75, *ReachRatio(3, 4), 1e-12)
	assert.InDelta(t, 2.5, *Average(10, 4), 1e-12)

	assert.Nil(t, FollowerRate(ptr(2.5), ptr(0), FollowerScale), "zero followers")
	assert.Nil(t, FollowerRate(ptr(2.5), nil, FollowerScale), "unknown followers")
	assert.Nil(t, FollowerRate(nil, ptr(100), FollowerScale), "no posts")
	assert.InDelta(t, 25.0, *FollowerRate(ptr(2.5), ptr(100), FollowerScale), 1e-12)
}

func TestDimensionWithoutPostsIsUndefined(t *testing.T) {
	d := Dimension(domain.DimensionStats{}, 0, ptr(500), FollowerScale)
	assert.Nil(t, d.SP1)
	assert.Nil(t, d.SP2)
	assert.Nil(t, d.SP3)
}

func TestEngagementIndex(t *testing.T) {
	tests := []struct {
		name  string
		terms []*float64
		want  *float64
	}{
		{name: "all undefined", terms: []*float64{nil, nil, nil}, want: nil},
		{name: "no terms", terms: nil, want: nil},
		{name: "undefined term counts as zero", terms: []*float64{ptr(9), nil, ptr(0)}, want: ptr(1)},
		{name: "sum", terms: []*float64{ptr(90), ptr(9), ptr(0)}, want: ptr(2)},
		{name: "log argument not positive", terms: []*float64{ptr(-1)}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EngagementIndex(tt.terms...)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.InDelta(t, 50.0, *Normalize(ptr(3), bounds(2, 4)), 1e-9)
	assert.InDelta(t, 0.0, *Normalize(ptr(2), bounds(2, 4)), 1e-9)
	assert.InDelta(t, 100.0, *Normalize(ptr(4), bounds(2, 4)), 1e-9)

	assert.Equal(t, 100.0, *Normalize(ptr(9), bounds(2, 4)), "clamped above")
	assert.Equal(t, 0.0, *Normalize(ptr(-9), bounds(2, 4)), "clamped below")

	assert.Nil(t, Normalize(ptr(3), bounds(2, 2)), "degenerate range")
	assert.Nil(t, Normalize(ptr(3), domain.Bounds{Max: ptr(4)}), "missing bound")
	assert.Nil(t, Normalize(nil, bounds(2, 4)), "undefined value")
}

func TestNormalizeStaysInRange(t *testing.T) {
	b := bounds(-3.5, 12.25)
	for x := -20.0; x <= 20; x += 0.37 {
		got := Normalize(ptr(x), b)
		require.NotNil(t, got)
		assert.True(t, *got >= 0 && *got <= 100, "x=%v gave %v", x, *got)
		assert.False(t, math.IsNaN(*got))
	}
}

func TestBoundsOfSkipsUndefined(t *testing.T) {
	b := boundsOf(nil, ptr(3), ptr(-1), nil, ptr(2))
	assert.Equal(t, -1.0, *b.Min)
	assert.Equal(t, 3.0, *b.Max)

	empty := boundsOf(nil, nil)
	assert.Nil(t, empty.Min)
	assert.Nil(t, empty.Max)
}

func TestReactionSentiment(t *testing.T) {
	s := ReactionSentiment{Weights: map[string]float64{"like": 1, "angry": -1, "haha": 0.5}}

	got := s.Score(AuxInput{Breakdown: map[string]int64{"like": 6, "angry": 2, "haha": 2, "view": 99}})
	require.NotNil(t, got["reaction_score"])
	// 1*0.6 - 1*0.2 + 0.5*0.2
	assert.InDelta(t, 0.5, *got["reaction_score"], 1e-12)
	assert.InDelta(t, -0.2, *got["reaction_score.angry"], 1e-12)

	none := s.Score(AuxInput{Breakdown: map[string]int64{}})
	assert.Contains(t, none, "reaction_score")
	assert.Nil(t, none["reaction_score"])
}

func TestRatingScore(t *testing.T) {
	got := RatingScore{}.Score(AuxInput{
		Stats:     domain.PostStats{Likes: domain.DimensionStats{Sum: 30}},
		Breakdown: map[string]int64{"dislike": 10},
	})
	assert.InDelta(t, 75.0, *got["rating_score"], 1e-12)

	empty := RatingScore{}.Score(AuxInput{})
	assert.Nil(t, empty["rating_score"])
}
