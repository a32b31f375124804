// Package track assigns stable identifiers to canonical points across polls.
//
// Matching is greedy in input order: each current point claims the nearest
// unclaimed position from the previous poll within the match radius, and
// earlier points in the list win ties. The order-dependent tie-break is part
// of the observable identifier continuity and must not be replaced with a
// globally optimal assignment. Candidate search is bounded by a uniform
// one-degree grid over the previous poll's positions; only a point's own
// cell and its eight neighbors are scanned, so a candidate slightly inside
// the radius but outside the neighborhood is treated as new.
package track

import (
	"math"
	"strconv"
	"sync"

	"github.com/driftline/constellation-tracker/internal/domain"
)

// DefaultMatchRadiusKM bounds plausible hourly displacement at the feed's
// polling cadence; points that moved farther are treated as new entities.
const DefaultMatchRadiusKM = 150

// cellSizeDeg is the spatial index cell size. The 9-cell neighborhood scan
// assumes this value; it is not independently configurable.
const cellSizeDeg = 1.0

type position struct {
	lat float64
	lon float64
}

type cellKey struct {
	row int
	col int
}

// candidate is a previous-poll position offered to the matcher.
type candidate struct {
	id  string
	pos position
}

// Tracker carries the identity table between polls. It is safe for
// concurrent use, though the pipeline's overlap guard already ensures a
// single writer per poll.
type Tracker struct {
	mu       sync.Mutex
	radiusKM float64
	seq      uint64
	table    map[string]position
}

// New creates a Tracker with the given match radius in kilometers.
// A non-positive radius falls back to DefaultMatchRadiusKM.
func New(radiusKM float64) *Tracker {
	if radiusKM <= 0 {
		radiusKM = DefaultMatchRadiusKM
	}
	return &Tracker{
		radiusKM: radiusKM,
		table:    make(map[string]position),
	}
}

// Advance maps one poll's canonical points onto identifiers and replaces the
// identity table wholesale with the new cycle's positions. It returns the
// tracked points in input order plus the number of freshly minted
// identifiers. Each previous identifier is claimed by at most one point.
func (t *Tracker) Advance(points []domain.CanonicalPoint) ([]domain.TrackedPoint, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	grid := t.buildGrid()
	claimed := make(map[string]bool, len(points))
	next := make(map[string]position, len(points))
	out := make([]domain.TrackedPoint, 0, len(points))
	minted := 0

	for _, p := range points {
		id := t.nearestUnclaimed(grid, claimed, p)
		if id == "" {
			t.seq++
			id = "b" + strconv.FormatUint(t.seq, 10)
			minted++
		} else {
			claimed[id] = true
		}
		next[id] = position{lat: p.Lat, lon: p.Lon}
		out = append(out, domain.TrackedPoint{CanonicalPoint: p, ID: id})
	}

	t.table = next
	return out, minted
}

// Reset clears the identity table. The mint sequence survives so identifiers
// are never reused within a process lifetime.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table = make(map[string]position)
}

// Size reports how many identities the table currently holds.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.table)
}

// buildGrid buckets the previous poll's positions into one-degree cells.
func (t *Tracker) buildGrid() map[cellKey][]candidate {
	grid := make(map[cellKey][]candidate, len(t.table))
	for id, pos := range t.table {
		key := cellFor(pos.lat, pos.lon)
		grid[key] = append(grid[key], candidate{id: id, pos: pos})
	}
	return grid
}

// nearestUnclaimed scans the point's 9-cell neighborhood and returns the id
// of the closest unclaimed previous position within the match radius, or ""
// when none qualifies. Exact distance ties go to the lexicographically
// smaller id so assignment does not depend on map iteration order.
func (t *Tracker) nearestUnclaimed(grid map[cellKey][]candidate, claimed map[string]bool, p domain.CanonicalPoint) string {
	center := cellFor(p.Lat, p.Lon)
	bestID := ""
	bestDist := math.MaxFloat64

	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			key := cellKey{row: center.row + dr, col: center.col + dc}
			for _, cand := range grid[key] {
				if claimed[cand.id] {
					continue
				}
				d := haversineKM(p.Lat, p.Lon, cand.pos.lat, cand.pos.lon)
				if d < bestDist || (d == bestDist && cand.id < bestID) {
					bestDist = d
					bestID = cand.id
				}
			}
		}
	}

	// Threshold is inclusive: a point exactly at the radius still matches.
	if bestID != "" && bestDist <= t.radiusKM {
		return bestID
	}
	return ""
}

func cellFor(lat, lon float64) cellKey {
	return cellKey{
		row: int(math.Floor((lat + 90) / cellSizeDeg)),
		col: int(math.Floor((lon + 180) / cellSizeDeg)),
	}
}
