package sessioncache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/contactbook/apiserver/types"
	"github.com/redis/go-redis/v9"
)

func newCacheTest(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, DefaultTTL), mr
}

func testIdentity() types.Identity {
	return types.Identity{
		ID:       7,
		Username: "alice",
		Email:    "alice@example.com",
		Role:     types.RoleAdmin,
		Avatar:   "https://www.gravatar.com/avatar/abc",
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c, mr := newCacheTest(t)
	ctx := context.Background()

	if err := c.Set(ctx, "alice", testIdentity()); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != testIdentity() {
		t.Fatalf("identity mismatch: got %+v", got)
	}

	if ttl := mr.TTL(Key("alice")); ttl != 600*time.Second {
		t.Fatalf("ttl = %s, want 600s", ttl)
	}
	if mr.HGet(Key("alice"), "role") != "admin" {
		t.Fatalf("role field not stored as plain string")
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := newCacheTest(t)
	if _, err := c.Get(context.Background(), "nobody"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestGetExpired(t *testing.T) {
	c, mr := newCacheTest(t)
	ctx := context.Background()

	if err := c.Set(ctx, "alice", testIdentity()); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(601 * time.Second)

	if _, err := c.Get(ctx, "alice"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after ttl, got %v", err)
	}
}

func TestGetCorruptEntryIsDropped(t *testing.T) {
	c, mr := newCacheTest(t)
	ctx := context.Background()

	mr.HSet(Key("mallory"), "id", "not-a-number", "username", "mallory", "role", "user")

	if _, err := c.Get(ctx, "mallory"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss for corrupt entry, got %v", err)
	}
	if mr.Exists(Key("mallory")) {
		t.Fatalf("corrupt entry should have been deleted")
	}
}

func TestGetUnknownRoleIsDropped(t *testing.T) {
	c, mr := newCacheTest(t)

	mr.HSet(Key("eve"), "id", "3", "username", "eve", "role", "superuser")

	if _, err := c.Get(context.Background(), "eve"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestSetReplacesStaleFields(t *testing.T) {
	c, _ := newCacheTest(t)
	ctx := context.Background()

	first := testIdentity()
	if err := c.Set(ctx, "alice", first); err != nil {
		t.Fatalf("set: %v", err)
	}
	second := first
	second.Avatar = ""
	if err := c.Set(ctx, "alice", second); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Avatar != "" {
		t.Fatalf("avatar = %q, want empty", got.Avatar)
	}
}

func TestInvalidate(t *testing.T) {
	c, mr := newCacheTest(t)
	ctx := context.Background()

	_ = c.Set(ctx, "alice", testIdentity())
	_ = c.Set(ctx, "alice@example.com", testIdentity())

	if err := c.Invalidate(ctx, "alice", "alice@example.com", ""); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(Key("alice")) || mr.Exists(Key("alice@example.com")) {
		t.Fatalf("entries still present after invalidate")
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate with no subjects: %v", err)
	}
}

func TestGetUnavailable(t *testing.T) {
	c, mr := newCacheTest(t)
	mr.Close()

	_, err := c.Get(context.Background(), "alice")
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
