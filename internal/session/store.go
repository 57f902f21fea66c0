package session

import (
	"context"
	"errors"

	"github.com/biogate/biogate/internal/model"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store persists issued sessions. Sessions are never mutated after creation;
// implementations may garbage-collect expired entries.
type Store interface {
	Put(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}
