package cache

import (
	"net/url"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	c.Set("k", []byte("v"))
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("expected hit with 'v', got %q ok=%v", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Set("k", []byte("v"))

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestKeyCanonicalization(t *testing.T) {
	a := Key("/api/items", url.Values{"page": {"2"}, "kind": {"lost"}})
	b := Key("/api/items", url.Values{"kind": {"lost"}, "page": {"2"}})
	if a != b {
		t.Errorf("equivalent queries produced different keys: %q vs %q", a, b)
	}

	c := Key("/api/items", url.Values{"kind": {"found"}, "page": {"2"}})
	if a == c {
		t.Error("different queries produced the same key")
	}

	if Key("/api/items", nil) != "/api/items" {
		t.Error("empty query should key on path alone")
	}
}
