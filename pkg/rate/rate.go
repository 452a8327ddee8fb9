// Package rate parses human-readable rate descriptions into bucket limits.
//
// A rate description has the form "<number>/<unit>" where unit is one of
// "s" (second), "m" (minute), or "h" (hour). The number becomes the bucket
// capacity (maximum burst) and the refill rate is derived by spreading that
// number over the unit's duration:
//
//	limit, err := rate.ParseRate("10/m")
//	// limit.Capacity = 10, limit.RefillPerSecond = 10/60
package rate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRate is returned for rate descriptions that cannot be parsed.
// It is a configuration error: callers should surface it at setup time and
// never retry.
var ErrInvalidRate = errors.New("invalid rate description")

// Limit describes one bucket dimension: a capacity and a continuous refill
// rate. A Limit is immutable after creation.
type Limit struct {
	// Capacity is the maximum number of units the bucket can hold.
	// It is also the maximum immediate burst.
	Capacity float64

	// RefillPerSecond is the number of units restored per second.
	RefillPerSecond float64
}

// secondsPerUnit maps the recognized period units to their length in seconds.
var secondsPerUnit = map[string]float64{
	"s": 1,
	"m": 60,
	"h": 3600,
}

// ParseRate parses a rate description such as "50/s", "6000/m", or "10000/h".
//
// The returned Limit has Capacity equal to the number and RefillPerSecond
// equal to number divided by the unit length in seconds. Leading and trailing
// whitespace is ignored. A malformed description, a non-positive number, or
// an unknown unit returns an error wrapping ErrInvalidRate.
func ParseRate(s string) (Limit, error) {
	trimmed := strings.TrimSpace(s)

	num, unit, found := strings.Cut(trimmed, "/")
	if !found || num == "" || unit == "" {
		return Limit{}, fmt.Errorf("%w: %q (expected \"<number>/<s|m|h>\", e.g. \"100/s\")", ErrInvalidRate, s)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Limit{}, fmt.Errorf("%w: %q is not a number", ErrInvalidRate, num)
	}
	if n <= 0 {
		return Limit{}, fmt.Errorf("%w: rate must be positive, got %v", ErrInvalidRate, n)
	}

	seconds, ok := secondsPerUnit[unit]
	if !ok {
		return Limit{}, fmt.Errorf("%w: unknown period %q (must be s, m, or h)", ErrInvalidRate, unit)
	}

	return Limit{
		Capacity:        n,
		RefillPerSecond: n / seconds,
	}, nil
}

// IsZero reports whether the limit is unset.
func (l Limit) IsZero() bool {
	return l.Capacity == 0 && l.RefillPerSecond == 0
}

// WaitFor returns the time needed to refill the given deficit of units at
// this limit's refill rate.
func (l Limit) WaitFor(deficit float64) time.Duration {
	if deficit <= 0 || l.RefillPerSecond <= 0 {
		return 0
	}
	return time.Duration(deficit / l.RefillPerSecond * float64(time.Second))
}

// String returns a compact representation for logs.
func (l Limit) String() string {
	return fmt.Sprintf("burst %v, %.4g/s", l.Capacity, l.RefillPerSecond)
}
