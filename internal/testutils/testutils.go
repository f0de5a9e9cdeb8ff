// Package testutils holds small helpers shared across test packages.
package testutils

import (
	"time"

	"github.com/google/uuid"
)

// RandomID returns a fresh UUID string for test fixtures.
func RandomID() string {
	return uuid.NewString()
}

// FixedClock returns a time function pinned to ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
