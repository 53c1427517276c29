package cache

import (
	"path/filepath"
	"testing"
)

func TestCache(t *testing.T) {
	c, err := Open(t.Context(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	key := Key([]byte("image bytes"), "openai", "gpt-5-mini", "125", "concise")

	t.Run("miss", func(t *testing.T) {
		_, ok, err := c.Get(t.Context(), key)
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}
		if ok {
			t.Error("Expected a cache miss")
		}
	})

	t.Run("hit", func(t *testing.T) {
		if err := c.Put(t.Context(), key, "A cat."); err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		desc, ok, err := c.Get(t.Context(), key)
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}
		if !ok || desc != "A cat." {
			t.Errorf("Expected hit with %q, got %q (ok=%v)", "A cat.", desc, ok)
		}
	})

	t.Run("replace", func(t *testing.T) {
		if err := c.Put(t.Context(), key, "A sleeping cat."); err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		desc, _, _ := c.Get(t.Context(), key)
		if desc != "A sleeping cat." {
			t.Errorf("Expected replaced description, got %q", desc)
		}
		if n, err := c.Count(t.Context()); err != nil || n != 1 {
			t.Errorf("Expected 1 row, got %d (%v)", n, err)
		}
	})
}

func TestKey(t *testing.T) {
	data := []byte("same bytes")
	if Key(data, "openai", "125") == Key(data, "openai", "126") {
		t.Error("Different parameters must give different keys")
	}
	if Key(data, "ab", "c") == Key(data, "a", "bc") {
		t.Error("Parameter boundaries must be part of the key")
	}
	if Key(data, "openai") != Key(data, "openai") {
		t.Error("Key must be deterministic")
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(t.Context(), path)
	if err != nil {
		t.Fatal(err)
	}
	key := Key([]byte("x"))
	if err := c.Put(t.Context(), key, "kept"); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(t.Context(), path)
	if err != nil {
		t.Fatalf("Reopening cache failed: %s", err)
	}
	defer c.Close()

	if desc, ok, _ := c.Get(t.Context(), key); !ok || desc != "kept" {
		t.Errorf("Expected persisted description, got %q (ok=%v)", desc, ok)
	}
}
