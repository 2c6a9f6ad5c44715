// Package kv is the small durable string-to-string store the door tracker,
// the alert throttler and other components keep their state in.
package kv

import "context"

// Store is a persistent mapping from key to value. A Get that follows a Set
// from the same process always observes that Set. Operations on different
// keys are independent; there are no multi-key transactions.
type Store interface {
	// Get returns the stored value, or def if the key was never set.
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
}
