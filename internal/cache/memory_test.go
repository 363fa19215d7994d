package cache

import (
	"context"
	"testing"
)

func TestMemoryGetSetRemove(t *testing.T) {
	memory := NewMemory()
	ctx := context.Background()

	if _, found, err := memory.Get(ctx, "leafnotes.categories"); err != nil || found {
		t.Fatalf("expected empty cache, got found=%v err=%v", found, err)
	}
	if err := memory.Set(ctx, "leafnotes.categories", "[]"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, found, err := memory.Get(ctx, "leafnotes.categories")
	if err != nil || !found || value != "[]" {
		t.Fatalf("expected stored value, got %q found=%v err=%v", value, found, err)
	}
	if err := memory.Remove(ctx, "leafnotes.categories"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, found, _ := memory.Get(ctx, "leafnotes.categories"); found {
		t.Fatalf("expected key to be removed")
	}
}
