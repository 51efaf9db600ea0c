package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/webforge/backend/internal/models"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := []byte("zip bytes")
	if err := s.Put(ctx, "a/b.zip", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data[0] = 'X'
	got, err := s.Get(ctx, "a/b.zip")
	if err != nil || string(got) != "zip bytes" {
		t.Errorf("Get: %q, %v", got, err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing: got %v, want ErrNotFound", err)
	}
}
