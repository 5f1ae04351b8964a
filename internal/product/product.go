// Package product is the demo domain model the HTTP layer caches: a
// minimal product entity and a deliberately slow repository standing in
// for an origin database behind a loader function.
package product

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Product is the cached entity.
type Product struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Encode serializes p for storage via a LoadFunc.
func (p Product) Encode() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("product: encode: %w", err)
	}
	return b, nil
}

// Decode reconstructs a Product from bytes produced by Encode, using a
// direct encoding/json decode.
func Decode(data []byte) (Product, error) {
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return Product{}, fmt.Errorf("product: decode: %w", err)
	}
	return p, nil
}

// SlowRepository simulates an origin database with a configurable
// artificial latency, so the demo server can exercise every strategy's
// stampede behavior against a loader slow enough for concurrency to
// actually matter.
type SlowRepository struct {
	mu      sync.RWMutex
	latency time.Duration
	byID    map[uuid.UUID]Product
}

// NewSlowRepository builds a SlowRepository with the given artificial
// per-call latency.
func NewSlowRepository(latency time.Duration) *SlowRepository {
	return &SlowRepository{
		latency: latency,
		byID:    make(map[uuid.UUID]Product),
	}
}

// Seed inserts or replaces a product, bypassing the artificial latency —
// seeding is test/setup, not a simulated origin read.
func (r *SlowRepository) Seed(p Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
}

// FindByID simulates a slow origin lookup. It honors ctx cancellation
// during the artificial delay rather than always paying the full latency.
func (r *SlowRepository) FindByID(ctx context.Context, id uuid.UUID) (Product, bool, error) {
	if r.latency > 0 {
		select {
		case <-ctx.Done():
			return Product{}, false, ctx.Err()
		case <-time.After(r.latency):
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok, nil
}

// Loader adapts FindByID into a cache.LoadFunc-shaped closure for id,
// returning encoded bytes ready to hand a Strategy.
func (r *SlowRepository) Loader(id uuid.UUID) func(ctx context.Context) ([]byte, bool, error) {
	return func(ctx context.Context) ([]byte, bool, error) {
		p, found, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		encoded, err := p.Encode()
		if err != nil {
			return nil, false, err
		}
		return encoded, true, nil
	}
}
