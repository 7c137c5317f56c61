package repository

import (
	"context"
	"database/sql"
	"time"
)

// KVStoreRepository implements KeyValueStore on the kv_store table.
// Both drivers accept $n placeholders and ON CONFLICT upserts.
type KVStoreRepository struct {
	db    *sql.DB
	store string
}

// NewKVStoreRepository creates a repository scoped to store
func NewKVStoreRepository(db *sql.DB, store string) *KVStoreRepository {
	return &KVStoreRepository{db: db, store: store}
}

// Get retrieves the value stored under key
func (r *KVStoreRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM kv_store WHERE store = $1 AND key = $2",
		r.store, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Set replaces the value stored under key in a single statement
func (r *KVStoreRepository) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv_store (store, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query, r.store, key, string(value), time.Now().UTC())
	return err
}

// Keys lists the keys present in the store
func (r *KVStoreRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT key FROM kv_store WHERE store = $1 ORDER BY key", r.store)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
