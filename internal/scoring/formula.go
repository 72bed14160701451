package scoring

import (
	"math"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// FollowerScale turns a per-follower average into a per-thousand-followers
// rate.
const FollowerScale = 1000

func ptr(v float64) *float64 { return &v }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ReachRatio is the share of posts where a counter is non-zero (SP1). It is
// undefined for an account without posts.
func ReachRatio(nonZero, count int64) *float64 {
	if count == 0 {
		return nil
	}
	return ptr(float64(nonZero) / float64(count))
}

// Average is the mean of a counter over posts (SP2).
func Average(sum, count int64) *float64 {
	if count == 0 {
		return nil
	}
	return ptr(float64(sum) / float64(count))
}

// FollowerRate divides an average by the audience size and scales it (SP3).
// A missing average or a non-positive reach leaves it undefined.
func FollowerRate(avg, reach *float64, scale float64) *float64 {
	if avg == nil || reach == nil || *reach <= 0 {
		return nil
	}
	v := *avg / *reach * scale
	if !finite(v) {
		return nil
	}
	return ptr(v)
}

// Dimension computes SP1 to SP3 for one counter.
func Dimension(stats domain.DimensionStats, postCount int64, reach *float64, scale float64) domain.DimensionScore {
	avg := Average(stats.Sum, postCount)
	return domain.DimensionScore{
		SP1: ReachRatio(stats.NonZero, postCount),
		SP2: avg,
		SP3: FollowerRate(avg, reach, scale),
	}
}

// EngagementIndex is log10(1 + sum of the defined terms). Undefined terms
// count as zero, but if every term is undefined so is the index.
func EngagementIndex(terms ...*float64) *float64 {
	var sum float64
	defined := false
	for _, t := range terms {
		if t == nil {
			continue
		}
		sum += *t
		defined = true
	}
	if !defined {
		return nil
	}
	arg := 1 + sum
	if arg <= 0 || !finite(arg) {
		return nil
	}
	return ptr(math.Log10(arg))
}

// minMax rescales x into [0,1] against the bounds without clamping.
func minMax(x *float64, b domain.Bounds) *float64 {
	if x == nil || b.Min == nil || b.Max == nil || *b.Max == *b.Min {
		return nil
	}
	v := (*x - *b.Min) / (*b.Max - *b.Min)
	if !finite(v) {
		return nil
	}
	return ptr(v)
}

// Normalize rescales x to 0-100 against the bounds. Values outside the
// observed range are clamped.
func Normalize(x *float64, b domain.Bounds) *float64 {
	v := minMax(x, b)
	if v == nil {
		return nil
	}
	return ptr(math.Min(100, math.Max(0, *v*100)))
}

// boundsOf returns the range of the defined values.
func boundsOf(values ...*float64) domain.Bounds {
	var b domain.Bounds
	for _, v := range values {
		if v == nil {
			continue
		}
		if b.Min == nil || *v < *b.Min {
			b.Min = ptr(*v)
		}
		if b.Max == nil || *v > *b.Max {
			b.Max = ptr(*v)
		}
	}
	return b
}
