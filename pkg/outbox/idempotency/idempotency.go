// Package idempotency remembers which outbox events a handler already
// delivered, so a row redelivered after a lost acknowledgement is not acted
// on twice.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultTTL = 7 * 24 * time.Hour

type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard claims (handler, event) pairs in Redis. Keys follow
// pf:idempotency:evt:<handler>:<event_id>.
type Guard struct {
	store Store
	ttl   time.Duration
}

func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim reports true when the caller is the first to deliver the event.
func (g *Guard) Claim(ctx context.Context, handler, eventID string) (bool, error) {
	key, err := g.key(handler, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release forgets a claim so a failed delivery can be retried.
func (g *Guard) Release(ctx context.Context, handler, eventID string) error {
	key, err := g.key(handler, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(handler, eventID string) (string, error) {
	handler = strings.TrimSpace(handler)
	eventID = strings.TrimSpace(eventID)
	if handler == "" {
		return "", errors.New("handler name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+handler, eventID), nil
}
