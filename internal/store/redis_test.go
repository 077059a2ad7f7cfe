package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ldi/workforce/internal/store"
	"github.com/ldi/workforce/internal/store/storetest"
	"github.com/ldi/workforce/pkg/models"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.NewRedisStore(store.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStorePing(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if err := s.Ping(ctx); err == nil {
		t.Error("expected Ping to fail after server shutdown")
	}
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := store.NewRedisStoreFromClient(client, "tenant-a:")
	b := store.NewRedisStoreFromClient(client, "tenant-b:")
	defer client.Close()

	ctx := context.Background()
	created, err := a.Create(ctx, storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !mr.Exists("tenant-a:task:1") {
		t.Errorf("expected key tenant-a:task:1, have %v", mr.Keys())
	}
	if _, err := b.Get(ctx, created.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected prefixes to isolate stores, got %v", err)
	}
}

func TestRedisStoreSkipsDanglingIndexEntries(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mr.Del("workforce:task:1")

	all, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected dangling id %d skipped, got %d tasks", created.ID, len(all))
	}
}
