package lock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Striped is an in-process Locker. Each stripe is a weighted semaphore of size one so waiting can be cancelled.
type Striped struct { // Implements Locker.
	stripes []*semaphore.Weighted
}

var _ Locker = (*Striped)(nil)

// NewStriped is the constructor for Striped.
func NewStriped(stripes int) *Striped {
	stripes = sanitizeStripes("striped_lock", stripes)
	striped := &Striped{stripes: make([]*semaphore.Weighted, stripes)}
	for i := range stripes {
		striped.stripes[i] = semaphore.NewWeighted(1)
	}
	return striped
}

func (s *Striped) Lock(ctx context.Context, key string) (func(), error) {
	stripe := s.stripes[stripeOf(key, len(s.stripes))]
	if err := stripe.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { stripe.Release(1) }, nil
}
