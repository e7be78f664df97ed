package contracts

import (
	"context"
	"errors"
	"io"
)

// ErrArchiveObjectNotFound is returned by ArchiveStore.Get for unknown keys.
var ErrArchiveObjectNotFound = errors.New("archive object not found")

// Store is a complete ledger backend.
type Store interface {
	ProductRepository
	ChainRepository
	Committer
	OutboxRepository
	EventsReadModel
	ReadModel

	Ping(ctx context.Context) error
	io.Closer
}

// ArchiveStore keeps exported chain bundles.
type ArchiveStore interface {
	// Put stores body under key, replacing any previous object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get returns the object stored under key or ErrArchiveObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}
