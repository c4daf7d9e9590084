package postgres

import (
	"context"
	"testing"
)

func TestNewPoolInvalidURL(t *testing.T) {
	ctx := context.Background()

	if _, err := NewPool(ctx, "not-a-url", 4, 1); err == nil {
		t.Fatalf("expected error when parsing invalid URL")
	}
}
