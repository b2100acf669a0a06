// Package store holds the append-only message log and its backends.
package store

import (
	"context"
	"errors"

	"quacker/backend/internal/models"
)

// ErrClosed is returned by a log used after Close
var ErrClosed = errors.New("store: closed")

// Log is an append-only sequence of messages keyed by a strictly
// increasing id.
type Log interface {
	// Range returns messages with From <= id <= To, highest id first,
	// at most Limit of them.
	Range(ctx context.Context, req models.RangeRequest) ([]models.Message, error)
	// Insert appends a message and returns it with id and timestamp assigned.
	Insert(ctx context.Context, author, body string) (models.Message, error)
	// Ping reports whether the log is reachable.
	Ping(ctx context.Context) error
	Close() error
}
