package cache

import (
	"context"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	if err := c.SetWithTTL(ctx, "key1", []byte("value1"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := c.Get(ctx, "key1")
	if err != nil || !ok || string(val) != "value1" {
		t.Fatalf("expected value1, got %q, exists=%v, err=%v", val, ok, err)
	}
}

func TestStoredValueIsCopied(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	buf := []byte("abc")
	_ = c.SetWithTTL(ctx, "k", buf, time.Second)
	buf[0] = 'x'

	val, _, _ := c.Get(ctx, "k")
	if string(val) != "abc" {
		t.Fatalf("expected stored copy to be unaffected, got %q", val)
	}
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	_ = c.SetWithTTL(ctx, "key1", []byte("value1"), 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "key1"); ok {
		t.Fatalf("expected expired key to return false")
	}
	keys, _ := c.KeysMatching(ctx, "*")
	if len(keys) != 0 {
		t.Fatalf("expected expired key to be hidden from scans, got %v", keys)
	}
}

func TestDeleteMany(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	_ = c.SetWithTTL(ctx, "key1", []byte("1"), time.Second)
	_ = c.SetWithTTL(ctx, "key2", []byte("2"), time.Second)
	if err := c.DeleteMany(ctx, "key1", "key2", "missing"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}

func TestKeysMatching(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	for _, k := range []string{"usersvc:users:list", "usersvc:users:id:1", "usersvc:users:id:2", "usersvc:other:1"} {
		_ = c.SetWithTTL(ctx, k, []byte("v"), time.Second)
	}

	keys, err := c.KeysMatching(ctx, "usersvc:users:*")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	want := []string{"usersvc:users:id:1", "usersvc:users:id:2", "usersvc:users:list"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}

	keys, _ = c.KeysMatching(ctx, "usersvc:users:list*")
	if len(keys) != 1 || keys[0] != "usersvc:users:list" {
		t.Fatalf("expected only the list key, got %v", keys)
	}

	keys, _ = c.KeysMatching(ctx, "nothing:*")
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestKeysMatchingRejectsBadPattern(t *testing.T) {
	c := New(time.Minute)
	if _, err := c.KeysMatching(context.Background(), "users:["); err == nil {
		t.Fatalf("expected malformed pattern error")
	}
}
