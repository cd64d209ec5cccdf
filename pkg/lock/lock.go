// A logical list operation is a short sequence of independent store calls, so nothing stops two operations on the
// same list from interleaving. This module offers per-list advisory locks that callers may opt into to serialize
// operations on one list. Lock keys are hashed onto a fixed number of stripes, like a sharded cache distributes
// keys across shards: unrelated lists rarely contend, and memory stays bounded no matter how many lists exist.

package lock

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/doclist/pkg/utils"
)

// Locker serializes work per key.
type Locker interface {
	// Lock blocks until the key's lock is held or `ctx` is done. The returned function releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// stripeOf maps `key` onto one of `stripes` stripes.
func stripeOf(key string, stripes int) int {
	return int(xxhash.Sum64String(key) % uint64(stripes))
}

// sanitizeStripes makes sure a locker has at least one stripe.
func sanitizeStripes(module string, stripes int) int {
	if stripes <= 0 {
		utils.RaiseInvariant(module, "non_positive_stripe_count",
			"Invalid stripe count has been given to a locker.", "stripes", stripes)
		return 1
	}
	return stripes
}
