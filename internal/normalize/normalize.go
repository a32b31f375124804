// Package normalize turns the feed's loosely shaped payloads into canonical
// point lists. Classification is structural: the payload declares nothing,
// so each known shape is probed in a fixed order and anything left over is
// rejected with a bounded diagnostic preview.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/driftline/constellation-tracker/internal/domain"
)

// previewLimit bounds the payload excerpt embedded in shape errors.
const previewLimit = 200

// shape is the closed set of recognized top-level payload structures.
type shape int

const (
	shapeEmpty shape = iota
	shapeFlatPoints
	shapeTracks
	shapeUnknown
)

// Normalize unwraps, classifies, and parses a raw payload into an ordered
// canonical point list. Malformed individual points are silently dropped and
// counted; only an unrecognizable top-level structure is an error. The
// output order matches the input list order with drops omitted.
func Normalize(payload any) ([]domain.CanonicalPoint, int, error) {
	body := unwrap(payload)

	list, ok := body.([]any)
	if !ok {
		return nil, 0, &domain.UnrecognizedShapeError{Preview: preview(body)}
	}

	switch classify(list) {
	case shapeEmpty:
		return []domain.CanonicalPoint{}, 0, nil
	case shapeFlatPoints:
		points, dropped := parseFlat(list)
		return points, dropped, nil
	case shapeTracks:
		points, dropped := parseTracks(list)
		return points, dropped, nil
	default:
		return nil, 0, &domain.UnrecognizedShapeError{Preview: preview(body)}
	}
}

// unwrap peels the envelope variant: an object carrying the payload under a
// "data" field. Bare payloads pass through untouched.
func unwrap(payload any) any {
	if env, ok := payload.(map[string]any); ok {
		if inner, ok := env["data"]; ok {
			return inner
		}
	}
	return payload
}

// classify probes the known shapes in order: empty, flat point list, track
// list. The probes are structural tests on the first element only; per-entry
// validation happens during parsing, where a bad entry costs one point, not
// the whole snapshot.
func classify(list []any) shape {
	if len(list) == 0 {
		return shapeEmpty
	}

	first, ok := list[0].([]any)
	if !ok {
		return shapeUnknown
	}

	// Flat: first element is a list opening with two numbers.
	if len(first) >= 2 {
		if _, aOK := toFinite(first[0]); aOK {
			if _, bOK := toFinite(first[1]); bOK {
				return shapeFlatPoints
			}
		}
	}

	// Tracks: first element is a non-empty list whose own first element is a
	// list opening with two numbers.
	if len(first) > 0 {
		if inner, ok := first[0].([]any); ok && len(inner) >= 2 {
			if _, aOK := toFinite(inner[0]); aOK {
				if _, bOK := toFinite(inner[1]); bOK {
					return shapeTracks
				}
			}
		}
	}

	return shapeUnknown
}

func parseFlat(list []any) ([]domain.CanonicalPoint, int) {
	points := make([]domain.CanonicalPoint, 0, len(list))
	dropped := 0
	for _, el := range list {
		candidate, ok := el.([]any)
		if !ok {
			dropped++
			continue
		}
		p, ok := parseCandidate(candidate)
		if !ok {
			dropped++
			continue
		}
		points = append(points, p)
	}
	return points, dropped
}

// parseTracks takes the last point of each track, the balloon's most recent
// position. Empty or malformed tracks are dropped like malformed points.
func parseTracks(list []any) ([]domain.CanonicalPoint, int) {
	points := make([]domain.CanonicalPoint, 0, len(list))
	dropped := 0
	for _, el := range list {
		track, ok := el.([]any)
		if !ok || len(track) == 0 {
			dropped++
			continue
		}
		last, ok := track[len(track)-1].([]any)
		if !ok {
			dropped++
			continue
		}
		p, ok := parseCandidate(last)
		if !ok {
			dropped++
			continue
		}
		points = append(points, p)
	}
	return points, dropped
}

// parseCandidate interprets one [a, b, attribute?] entry. Both leading
// values must be finite numbers. When |a| > 90 and |b| <= 90 the pair can
// only make sense as [lon, lat], so the axes are swapped; otherwise [a, b]
// reads as [lat, lon]. Out-of-range results are rejected.
func parseCandidate(candidate []any) (domain.CanonicalPoint, bool) {
	if len(candidate) < 2 {
		return domain.CanonicalPoint{}, false
	}

	a, aOK := toFinite(candidate[0])
	b, bOK := toFinite(candidate[1])
	if !aOK || !bOK {
		return domain.CanonicalPoint{}, false
	}

	lat, lon := a, b
	if math.Abs(a) > 90 && math.Abs(b) <= 90 {
		lat, lon = b, a
	}

	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return domain.CanonicalPoint{}, false
	}

	p := domain.CanonicalPoint{Lat: lat, Lon: lon}
	if len(candidate) >= 3 {
		if attr, ok := toFinite(candidate[2]); ok {
			p.Attribute = &attr
		}
	}
	return p, true
}

// toFinite extracts a finite float64 from the value types JSON decoders
// emit. NaN, infinities, and non-numeric values all fail.
func toFinite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// preview renders a payload excerpt for shape errors, truncated to
// previewLimit characters.
func preview(payload any) string {
	text, err := json.Marshal(payload)
	rendered := string(text)
	if err != nil {
		rendered = fmt.Sprintf("%v", payload)
	}
	if len(rendered) > previewLimit {
		rendered = rendered[:previewLimit]
	}
	return rendered
}
