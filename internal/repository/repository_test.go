package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
)

func setupTestDB(t *testing.T) (*sql.DB, string) {
	path := filepath.Join(t.TempDir(), "fonosync.db")
	db, err := NewSQLiteDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func sampleQueue() []models.QueuedOperation {
	return []models.QueuedOperation{
		{
			ID:        "op-1",
			TableName: "patients",
			Kind:      models.KindInsert,
			Payload:   models.Row{"id": "p-1", "name": "Ana"},
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			ID:         "op-2",
			TableName:  "sessions",
			Kind:       models.KindUpdate,
			Payload:    models.Row{"status": "done"},
			Conditions: models.Conditions{"id": "s-9"},
			Timestamp:  time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
			RetryCount: 2,
			LastError:  "connection refused",
		},
	}
}

func TestKVStoreRepository(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t)

	t.Run("returns nil for a missing key", func(t *testing.T) {
		repo := NewKVStoreRepository(db, "fonosync_offline")

		value, err := repo.Get(ctx, "nothing")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("overwrites an existing key", func(t *testing.T) {
		repo := NewKVStoreRepository(db, "fonosync_offline")

		require.NoError(t, repo.Set(ctx, "k", []byte("first")))
		require.NoError(t, repo.Set(ctx, "k", []byte("second")))

		value, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "second", string(value))
	})

	t.Run("isolates stores by name", func(t *testing.T) {
		a := NewKVStoreRepository(db, "store_a")
		b := NewKVStoreRepository(db, "store_b")

		require.NoError(t, a.Set(ctx, "shared", []byte("from a")))

		value, err := b.Get(ctx, "shared")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("lists keys in order", func(t *testing.T) {
		repo := NewKVStoreRepository(db, "listing")
		require.NoError(t, repo.Set(ctx, "zeta", []byte("1")))
		require.NoError(t, repo.Set(ctx, "alpha", []byte("2")))

		keys, err := repo.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zeta"}, keys)
	})
}

func TestQueueStoreRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("loads an empty queue when nothing was saved", func(t *testing.T) {
		db, _ := setupTestDB(t)
		store := NewQueueStoreRepository(NewKVStoreRepository(db, "fonosync_offline"), "offline_queue")

		ops, err := store.Load(ctx)
		require.NoError(t, err)
		assert.NotNil(t, ops)
		assert.Empty(t, ops)
	})

	t.Run("persists the queue as a json array", func(t *testing.T) {
		db, _ := setupTestDB(t)
		kv := NewKVStoreRepository(db, "fonosync_offline")
		store := NewQueueStoreRepository(kv, "offline_queue")

		require.NoError(t, store.Save(ctx, sampleQueue()))

		raw, err := kv.Get(ctx, "offline_queue")
		require.NoError(t, err)
		g := goldie.New(t)
		g.Assert(t, "persisted_queue", raw)
	})

	t.Run("survives reopening the database", func(t *testing.T) {
		db, path := setupTestDB(t)
		store := NewQueueStoreRepository(NewKVStoreRepository(db, "fonosync_offline"), "offline_queue")
		require.NoError(t, store.Save(ctx, sampleQueue()))
		require.NoError(t, db.Close())

		reopened, err := NewSQLiteDB(path)
		require.NoError(t, err)
		defer reopened.Close()

		ops, err := NewQueueStoreRepository(NewKVStoreRepository(reopened, "fonosync_offline"), "offline_queue").Load(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 2)
		assert.Equal(t, "op-1", ops[0].ID)
		assert.Equal(t, "op-2", ops[1].ID)
		assert.Equal(t, 2, ops[1].RetryCount)
		assert.Equal(t, "connection refused", ops[1].LastError)
		assert.True(t, ops[0].Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	})

	t.Run("saving an empty queue clears it", func(t *testing.T) {
		db, _ := setupTestDB(t)
		kv := NewKVStoreRepository(db, "fonosync_offline")
		store := NewQueueStoreRepository(kv, "offline_queue")
		require.NoError(t, store.Save(ctx, sampleQueue()))

		require.NoError(t, store.Save(ctx, nil))

		raw, err := kv.Get(ctx, "offline_queue")
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	})

	t.Run("reports corrupt data", func(t *testing.T) {
		db, _ := setupTestDB(t)
		kv := NewKVStoreRepository(db, "fonosync_offline")
		require.NoError(t, kv.Set(ctx, "offline_queue", []byte("{not json")))

		_, err := NewQueueStoreRepository(kv, "offline_queue").Load(ctx)
		assert.ErrorIs(t, err, ErrCorruptQueue)

		require.NoError(t, kv.Set(ctx, "offline_queue", []byte(`[] []`)))
		_, err = NewQueueStoreRepository(kv, "offline_queue").Load(ctx)
		assert.ErrorIs(t, err, ErrCorruptQueue)
	})

	t.Run("keeps large integers exact across a reload", func(t *testing.T) {
		db, _ := setupTestDB(t)
		store := NewQueueStoreRepository(NewKVStoreRepository(db, "fonosync_offline"), "offline_queue")
		require.NoError(t, store.Save(ctx, []models.QueuedOperation{{
			ID:         "op-big",
			TableName:  "clinical_records",
			Kind:       models.KindUpdate,
			Payload:    models.Row{"patient_ref": json.Number("9007199254740993"), "score": json.Number("12.5")},
			Conditions: models.Conditions{"id": json.Number("9007199254740995")},
			Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}}))

		ops, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, json.Number("9007199254740993"), ops[0].Payload["patient_ref"])
		assert.Equal(t, json.Number("12.5"), ops[0].Payload["score"])
		assert.Equal(t, json.Number("9007199254740995"), ops[0].Conditions["id"])

		encoded, err := json.Marshal(ops[0].Payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"patient_ref":9007199254740993,"score":12.5}`, string(encoded))
	})

	t.Run("keeps queues under different keys apart", func(t *testing.T) {
		db, _ := setupTestDB(t)
		kv := NewKVStoreRepository(db, "fonosync_offline")
		front := NewQueueStoreRepository(kv, "front_desk_queue")
		back := NewQueueStoreRepository(kv, "offline_queue")

		require.NoError(t, front.Save(ctx, sampleQueue()))

		ops, err := back.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, ops)
	})
}
