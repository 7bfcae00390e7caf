package history

import (
	"context"
	"fmt"
	"testing"
)

func TestInMemoryStoreRecentOrderAndLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.SaveTurn(ctx, Turn{
			SessionID: "sess-1",
			Role:      "assistant",
			Content:   fmt.Sprintf("utterance %d", i),
			Path:      "streaming",
		})
		if err != nil {
			t.Fatalf("SaveTurn() unexpected error = %v", err)
		}
	}

	turns, err := s.Recent(ctx, "sess-1", 3)
	if err != nil {
		t.Fatalf("Recent() unexpected error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Recent() returned %d turns, want 3", len(turns))
	}
	if turns[0].Content != "utterance 2" || turns[2].Content != "utterance 4" {
		t.Fatalf("Recent() order wrong: first=%q last=%q", turns[0].Content, turns[2].Content)
	}
	if turns[0].ID == "" {
		t.Fatalf("SaveTurn() did not assign an ID")
	}
}

func TestInMemoryStoreUnknownSession(t *testing.T) {
	s := NewInMemoryStore()
	turns, err := s.Recent(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("Recent() unexpected error = %v", err)
	}
	if turns != nil {
		t.Fatalf("Recent() = %v, want nil for unknown session", turns)
	}
}
