package history

import (
	"context"
	"time"
)

// Turn stores a single spoken or heard utterance.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	// Role is "assistant" for spoken output or "user" for transcripts.
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Voice     string    `json:"voice"`
	// Path records how the audio was delivered: streaming, speech_api,
	// generate_api or text_only.
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves conversation transcripts.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Close() error
}
