package terminal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

func newSnapshotStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.FromRedis(raw), mr
}

func widget() backoffice.Product {
	return backoffice.Product{
		ID:            "p1",
		Name:          "Widget",
		Price:         money.MustParse("4.00"),
		TaxRate:       money.MustParse("10"),
		StockQuantity: 10,
	}
}

func TestRegistryRestoresCartFromSnapshot(t *testing.T) {
	ctx := context.Background()
	store, mr := newSnapshotStore(t)

	first := NewRegistry(store, time.Hour, logger.Nop())
	err := first.Do(ctx, "t1", func(s *cart.Session) error {
		_, err := s.Add(widget(), nil, 2)
		return err
	})
	require.NoError(t, err)
	require.True(t, mr.Exists("pf:cart:t1"))
	require.Equal(t, time.Hour, mr.TTL("pf:cart:t1"))

	second := NewRegistry(store, time.Hour, logger.Nop())
	var totals cart.Totals
	require.NoError(t, second.View(ctx, "t1", func(s *cart.Session) error {
		totals = s.Totals()
		return nil
	}))
	require.Equal(t, "8.00", totals.Subtotal.StringFixed(2))
	require.Equal(t, 2, totals.ItemCount)
}

func TestRegistryDropsSnapshotWhenCartEmpties(t *testing.T) {
	ctx := context.Background()
	store, mr := newSnapshotStore(t)
	reg := NewRegistry(store, time.Hour, logger.Nop())

	require.NoError(t, reg.Do(ctx, "t1", func(s *cart.Session) error {
		_, err := s.Add(widget(), nil, 1)
		return err
	}))
	require.True(t, mr.Exists("pf:cart:t1"))

	require.NoError(t, reg.Do(ctx, "t1", func(s *cart.Session) error {
		s.Clear()
		return nil
	}))
	require.False(t, mr.Exists("pf:cart:t1"))
}

func TestRegistrySnapshotsAfterCallerCancel(t *testing.T) {
	store, mr := newSnapshotStore(t)
	reg := NewRegistry(store, time.Hour, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, reg.Do(ctx, "t1", func(s *cart.Session) error {
		_, err := s.Add(widget(), nil, 1)
		cancel()
		return err
	}))
	require.True(t, mr.Exists("pf:cart:t1"))

	ctx, cancel = context.WithCancel(context.Background())
	require.NoError(t, reg.Do(ctx, "t1", func(s *cart.Session) error {
		s.Clear()
		cancel()
		return nil
	}))
	require.False(t, mr.Exists("pf:cart:t1"))
}

func TestRegistryIgnoresCorruptSnapshot(t *testing.T) {
	store, mr := newSnapshotStore(t)
	require.NoError(t, mr.Set("pf:cart:t1", "{not json"))

	reg := NewRegistry(store, 0, logger.Nop())
	require.NoError(t, reg.View(context.Background(), "t1", func(s *cart.Session) error {
		require.True(t, s.IsEmpty())
		return nil
	}))
}

func TestRegistrySerializesPerTerminal(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, 0, logger.Nop())
	product := widget()
	product.StockQuantity = 1000

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Do(ctx, "t1", func(s *cart.Session) error {
				_, err := s.Add(product, nil, 1)
				return err
			})
		}()
	}
	wg.Wait()

	require.NoError(t, reg.View(ctx, "t1", func(s *cart.Session) error {
		require.Equal(t, 50, s.Totals().ItemCount)
		return nil
	}))
	require.NoError(t, reg.View(ctx, "t2", func(s *cart.Session) error {
		require.True(t, s.IsEmpty())
		return nil
	}))
}
