package domain

import "context"

// LocalContext is the per-click auxiliary lookup result for a point: winds
// aloft near the position and a rarity score derived from the precomputed
// reporting-station density grid.
type LocalContext struct {
	WindDirectionDeg float64 `json:"windDirectionDeg"`
	WindSpeedKnots   float64 `json:"windSpeedKnots"`

	// RarityScore is 0-1; higher means fewer reporting stations nearby.
	RarityScore    float64 `json:"rarityScore"`
	StationsNearby int     `json:"stationsNearby"`
}

// ContextProvider answers per-click context queries. The computation lives
// in an external collaborator; implementations here are lookup clients only.
type ContextProvider interface {
	Lookup(ctx context.Context, lat, lon float64) (LocalContext, error)
}
