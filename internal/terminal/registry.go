// Package terminal serializes commands per terminal and keeps each
// terminal's open cart in memory, mirrored to Redis.
package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

const defaultSnapshotTTL = 12 * time.Hour

type terminalState struct {
	mu      sync.Mutex
	session *cart.Session
}

// Registry owns one cart session per terminal id. Commands for the same
// terminal run one at a time; different terminals do not block each other.
type Registry struct {
	mu        sync.Mutex
	terminals map[string]*terminalState
	store     redis.SnapshotStore
	ttl       time.Duration
	logg      *logger.Logger
}

// NewRegistry builds a registry. A nil store keeps carts in memory only.
func NewRegistry(store redis.SnapshotStore, ttl time.Duration, logg *logger.Logger) *Registry {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Registry{
		terminals: make(map[string]*terminalState),
		store:     store,
		ttl:       ttl,
		logg:      logg,
	}
}

func (r *Registry) state(id string) *terminalState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.terminals[id]
	if !ok {
		st = &terminalState{}
		r.terminals[id] = st
	}
	return st
}

// Do runs fn under the terminal's lock and snapshots the session afterwards,
// whether or not fn failed.
func (r *Registry) Do(ctx context.Context, terminalID string, fn func(*cart.Session) error) error {
	return r.run(ctx, terminalID, true, fn)
}

// View runs fn under the terminal's lock without persisting.
func (r *Registry) View(ctx context.Context, terminalID string, fn func(*cart.Session) error) error {
	return r.run(ctx, terminalID, false, fn)
}

func (r *Registry) run(ctx context.Context, terminalID string, persist bool, fn func(*cart.Session) error) error {
	st := r.state(terminalID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session == nil {
		st.session = r.load(ctx, terminalID)
	}
	err := fn(st.session)
	if persist {
		// fn may already have changed the cart; a hung-up caller must not
		// leave the snapshot behind the in-memory session.
		r.save(context.WithoutCancel(ctx), st.session)
	}
	return err
}

// load restores a snapshot. A missing or unreadable snapshot yields an empty cart.
func (r *Registry) load(ctx context.Context, terminalID string) *cart.Session {
	if r.store == nil {
		return cart.NewSession(terminalID)
	}
	logCtx := r.logg.WithTerminalID(ctx, terminalID)
	raw, err := r.store.Get(ctx, r.store.CartKey(terminalID))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			r.logg.Error(logCtx, "failed to load cart snapshot", err)
		}
		return cart.NewSession(terminalID)
	}
	snap, err := cart.UnmarshalSnapshot([]byte(raw))
	if err != nil {
		r.logg.Error(logCtx, "discarding unreadable cart snapshot", err)
		return cart.NewSession(terminalID)
	}
	snap.TerminalID = terminalID
	session := cart.Restore(snap)
	r.logg.Info(r.logg.WithField(logCtx, "lines", len(session.Lines())), "cart restored from snapshot")
	return session
}

func (r *Registry) save(ctx context.Context, session *cart.Session) {
	if r.store == nil {
		return
	}
	key := r.store.CartKey(session.TerminalID())
	logCtx := r.logg.WithTerminalID(ctx, session.TerminalID())
	if session.IsEmpty() && session.CustomerID() == nil {
		if err := r.store.Del(ctx, key); err != nil {
			r.logg.Error(logCtx, "failed to drop cart snapshot", err)
		}
		return
	}
	payload, err := session.Snapshot().Marshal()
	if err != nil {
		r.logg.Error(logCtx, "failed to encode cart snapshot", err)
		return
	}
	if err := r.store.Set(ctx, key, string(payload), r.ttl); err != nil {
		r.logg.Error(logCtx, "failed to store cart snapshot", err)
	}
}
