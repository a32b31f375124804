// Package domain models the balloon constellation snapshot feed.
//
// # Data Source
//
// The upstream feed publishes one snapshot per hour, addressed by a
// two-digit bucket index where 00 is the most recent hour and 23 the oldest
// still offered. Buckets are served as plain JSON over HTTP GET; any 2xx
// response with a JSON body counts as a successful bucket, anything else
// (including transport errors) counts as a failed bucket attempt.
//
// # Payload Conventions
//
// The feed carries no schema and no stability promises. Three top-level
// shapes have been observed in the wild:
//
//	Flat point list:  [[lat, lon, attr?], ...]
//	Track list:       [[[lat, lon], [lat, lon], ...], ...]   (one track per balloon)
//	Envelope:         {"data": <one of the above>}
//
// An empty list is a valid snapshot with zero balloons. For track lists only
// the final point of each track is meaningful to the live view: it is the
// balloon's most recent position.
//
// Axis order is not guaranteed either. Individual points occasionally arrive
// as [lon, lat]; the normalizer detects this case when the first value cannot
// be a latitude (|a| > 90) while the second can (|b| <= 90), and swaps. The
// optional third element is an opaque scalar (observed values look like
// altitude in kilometers) and is carried through untouched when finite.
//
// # Identity
//
// The feed provides no identifiers at all: successive snapshots are bare
// coordinate lists that may reorder, gain, or lose entries between polls.
// Identifiers are assigned locally by the tracker ("b1", "b2", ...) by
// matching each point to the nearest unclaimed position from the previous
// poll within a configurable radius (150 km by default, roughly the
// plausible hourly drift at this cadence). Assignments are deterministic and
// best-effort, not ground truth.
package domain
