package domain

import "time"

// Source identifies where a snapshot's payload was obtained.
type Source string

const (
	// SourceUpstream marks data fetched from the live feed this poll.
	SourceUpstream Source = "upstream"
	// SourceCache marks data served from the last-known-good cache after
	// every upstream bucket attempt failed.
	SourceCache Source = "cache"
)

// RawSnapshot is a payload as received from upstream or the fallback cache.
// Data is structurally unknown until the normalizer has classified it.
type RawSnapshot struct {
	Data     any
	HoursAgo int // age of the bucket actually obtained, 0-23
	Source   Source

	// CacheAgeSeconds is how long ago the cached payload was fetched.
	// Only meaningful when Source is SourceCache.
	CacheAgeSeconds int64
}

// CanonicalPoint is a validated observation. Every CanonicalPoint in
// circulation has passed range validation: latitude in [-90, 90], longitude
// in [-180, 180], no NaN or infinite coordinates.
type CanonicalPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Attribute is the feed's optional third element, nil when absent.
	Attribute *float64 `json:"attribute,omitempty"`
}

// TrackedPoint is a canonical point with a stable identifier attached by the
// tracker. IDs are unique within a single poll's output and persist across
// polls for as long as the point stays within matching range of itself.
type TrackedPoint struct {
	CanonicalPoint
	ID string `json:"id"`
}

// ConstellationSnapshot is the structure exposed to consumers: the latest
// poll's identified point list plus freshness metadata.
type ConstellationSnapshot struct {
	HoursAgo        int            `json:"hoursAgo"`
	Source          Source         `json:"source"`
	CacheAgeSeconds *int64         `json:"cacheAgeSeconds,omitempty"`
	Points          []TrackedPoint `json:"points"`
	PolledAt        time.Time      `json:"polledAt"`
}
