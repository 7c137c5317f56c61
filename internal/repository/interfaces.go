package repository

import (
	"context"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
)

// KeyValueStore is durable string storage scoped to one named store
type KeyValueStore interface {
	// Get returns nil, nil when key has never been set
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// QueueStore persists the offline queue as a whole
type QueueStore interface {
	Load(ctx context.Context) ([]models.QueuedOperation, error)
	Save(ctx context.Context, ops []models.QueuedOperation) error
}
