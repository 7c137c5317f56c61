package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
)

// ErrCorruptQueue is returned when the persisted queue cannot be decoded
var ErrCorruptQueue = errors.New("persisted offline queue is corrupt")

// QueueStoreRepository stores the whole queue as one JSON array under a single key
type QueueStoreRepository struct {
	kv  KeyValueStore
	key string
}

// NewQueueStoreRepository creates a queue store writing to key in kv
func NewQueueStoreRepository(kv KeyValueStore, key string) *QueueStoreRepository {
	return &QueueStoreRepository{kv: kv, key: key}
}

// Load returns the persisted queue, or an empty queue if nothing was saved yet
func (r *QueueStoreRepository) Load(ctx context.Context) ([]models.QueuedOperation, error) {
	data, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(data) == 0 {
		return []models.QueuedOperation{}, nil
	}

	// Numbers stay json.Number so large ids replay unchanged
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var ops []models.QueuedOperation
	if err := decoder.Decode(&ops); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after the queue", ErrCorruptQueue)
	}
	if ops == nil {
		ops = []models.QueuedOperation{}
	}
	return ops, nil
}

// Save replaces the persisted queue with ops
func (r *QueueStoreRepository) Save(ctx context.Context, ops []models.QueuedOperation) error {
	if ops == nil {
		ops = []models.QueuedOperation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to write queue: %w", err)
	}
	return nil
}
