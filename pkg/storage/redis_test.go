//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
		redis.WithLogLevel(redis.LogLevelVerbose),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return strings.TrimPrefix(endpoint, "redis://")
}

func newRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, ttl)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_NewRedisStore_Errors(t *testing.T) {
	tests := []struct {
		name string
		addr string
		db   int
	}{
		{"empty addr", "", 0},
		{"negative db", "localhost:6379", -1},
		{"unreachable", "invalid:99999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRedisStore(tt.addr, "", tt.db, time.Minute); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRedisStore_PutUsesPrefixedKey(t *testing.T) {
	store := newRedisStore(t, time.Minute)

	if err := store.Put(context.Background(), testSnapshot(t, "sample-a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.client.Exists(context.Background(), "mastercurve:table:sample-a").Result()
	if err != nil {
		t.Fatalf("failed to check key existence: %v", err)
	}
	if exists != 1 {
		t.Error("expected key to exist in Redis")
	}
}

func TestRedisStore_PutRejectsBadName(t *testing.T) {
	store := newRedisStore(t, time.Minute)

	if err := store.Put(context.Background(), Snapshot{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v", err)
	}
	if err := store.Put(context.Background(), Snapshot{Session: "a/b"}); err == nil {
		t.Error("expected error for invalid name")
	}
	if _, _, err := store.GetLatest(context.Background(), ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("GetLatest(\"\") error = %v", err)
	}
}

func TestRedisStore_RoundTripKeepsSingularRows(t *testing.T) {
	store := newRedisStore(t, time.Minute)

	// C2 = 20 at Tr = 0 °C puts a singular row at -20 °C.
	src := wlf.Params{C1: 10, C2: 20, RefTempC: 0}
	table, err := shift.BuildTable(src, 0, shift.ExportAxis)
	if err != nil {
		t.Fatal(err)
	}
	original := Snapshot{Session: "singular", GeneratedAt: time.Now().Truncate(time.Second), Source: src, Table: table}

	if err := store.Put(context.Background(), original); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := store.GetLatest(context.Background(), "singular")
	if err != nil || !found {
		t.Fatalf("GetLatest = %v, %v", found, err)
	}

	if got.Source != original.Source || !got.GeneratedAt.Equal(original.GeneratedAt) {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if len(got.Table.Rows) != len(table.Rows) {
		t.Fatalf("rows = %d, want %d", len(got.Table.Rows), len(table.Rows))
	}
	for i, r := range table.Rows {
		g := got.Table.Rows[i]
		if math.IsNaN(r.LogShift) {
			if !math.IsNaN(g.LogShift) {
				t.Errorf("row %v: want NaN, got %v", r.TempC, g.LogShift)
			}
			continue
		}
		if g != r {
			t.Errorf("row %d = %+v, want %+v", i, g, r)
		}
	}
}

func TestRedisStore_GetLatest_NotFound(t *testing.T) {
	store := newRedisStore(t, time.Minute)

	snapshot, found, err := store.GetLatest(context.Background(), "nonexistent")
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if found || snapshot.Session != "" {
		t.Error("expected zero-value snapshot, not found")
	}
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	store := newRedisStore(t, 2*time.Second)

	if err := store.Put(context.Background(), testSnapshot(t, "short")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, found, _ := store.GetLatest(context.Background(), "short"); !found {
		t.Fatal("expected snapshot to be found immediately after Put")
	}

	time.Sleep(3 * time.Second)

	_, found, err := store.GetLatest(context.Background(), "short")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if found {
		t.Error("expected snapshot to be expired")
	}
}

func TestRedisStore_ConcurrentPuts(t *testing.T) {
	store := newRedisStore(t, time.Minute)
	base := testSnapshot(t, "x")

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 10 {
				s := base
				s.Session = fmt.Sprintf("session-%d-%d", id, j)
				if err := store.Put(context.Background(), s); err != nil {
					t.Errorf("Put failed in goroutine %d: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := range 10 {
		for j := range 10 {
			name := fmt.Sprintf("session-%d-%d", i, j)
			if _, found, err := store.GetLatest(context.Background(), name); err != nil || !found {
				t.Errorf("GetLatest(%s) = %v, %v", name, found, err)
			}
		}
	}
}

func TestRedisStore_Close_Idempotent(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	for i := range 3 {
		if err := store.Close(); err != nil {
			t.Errorf("Close #%d failed: %v", i+1, err)
		}
	}
}

func TestRedisStore_PingAndClosedCalls(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after Close = %v, want ErrClosed", err)
	}
	if _, _, err := store.GetLatest(ctx, "any"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetLatest() after Close = %v, want ErrClosed", err)
	}
}
