package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a social-media provider.
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformTwitter  Platform = "twitter"
	PlatformYouTube  Platform = "youtube"
)

// Platforms lists every supported provider.
var Platforms = []Platform{PlatformFacebook, PlatformTwitter, PlatformYouTube}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// AccountType distinguishes an entity's official presence from affiliated
// influencer accounts. Only official accounts are scored.
type AccountType string

const (
	AccountOfficial   AccountType = "official"
	AccountInfluencer AccountType = "influencer"
)

// Account is one social-media presence of an organizational entity.
type Account struct {
	Platform Platform

	// ExternalID is the provider handle or id, always lower-cased.
	ExternalID string

	DisplayName   string
	FollowerCount int64
	AccountType   AccountType

	// EntityID links the account back to the population directory.
	EntityID string

	UpdatedAt time.Time
}

// NormalizeID lower-cases and trims an external account id. Account identity
// is case-insensitive.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
