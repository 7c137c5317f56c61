package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/repository"
)

// writeConfig creates a YAML config pointing at a fresh SQLite file
func writeConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "fonosync.db")
	configPath = filepath.Join(dir, "config.yaml")
	content := "databasePath: " + dbPath + "\nsync:\n  queueKey: test_queue\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, dbPath
}

func seedQueue(t *testing.T, dbPath string, raw []byte) {
	t.Helper()
	db, err := repository.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	kv := repository.NewKVStoreRepository(db, "fonosync_offline")
	require.NoError(t, kv.Set(context.Background(), "test_queue", raw))
}

func queuedOps(t *testing.T) []byte {
	t.Helper()
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	ops := []models.QueuedOperation{
		{ID: "op-1", TableName: "patients", Kind: models.KindInsert, Payload: models.Row{"name": "Ana"}, Timestamp: ts},
		{ID: "op-2", TableName: "sessions", Kind: models.KindDelete, Conditions: models.Conditions{"id": "s-9"}, Timestamp: ts, RetryCount: 2, LastError: "timeout"},
	}
	raw, err := json.Marshal(ops)
	require.NoError(t, err)
	return raw
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueCommands(t *testing.T) {
	t.Run("list prints a table of pending operations", func(t *testing.T) {
		configPath, dbPath := writeConfig(t)
		seedQueue(t, dbPath, queuedOps(t))

		out, err := runCLI(t, "--config", configPath, "queue", "list")
		require.NoError(t, err)

		assert.Contains(t, out, "ID")
		assert.Contains(t, out, "op-1")
		assert.Contains(t, out, "sessions")
		assert.Contains(t, out, "timeout")
	})

	t.Run("list can print json", func(t *testing.T) {
		configPath, dbPath := writeConfig(t)
		seedQueue(t, dbPath, queuedOps(t))

		out, err := runCLI(t, "--config", configPath, "queue", "list", "-o", "json")
		require.NoError(t, err)

		var ops []models.QueuedOperation
		require.NoError(t, json.Unmarshal([]byte(out), &ops))
		require.Len(t, ops, 2)
		assert.Equal(t, "op-1", ops[0].ID)
		assert.Equal(t, 2, ops[1].RetryCount)
	})

	t.Run("list on an empty store prints an empty json array", func(t *testing.T) {
		configPath, _ := writeConfig(t)

		out, err := runCLI(t, "--config", configPath, "queue", "list", "-o", "json")
		require.NoError(t, err)
		assert.JSONEq(t, "[]", out)
	})

	t.Run("list rejects an unknown format", func(t *testing.T) {
		configPath, _ := writeConfig(t)

		_, err := runCLI(t, "--config", configPath, "queue", "list", "-o", "xml")
		assert.EqualError(t, err, `unknown output format "xml"`)
	})

	t.Run("drop removes one operation", func(t *testing.T) {
		configPath, dbPath := writeConfig(t)
		seedQueue(t, dbPath, queuedOps(t))

		out, err := runCLI(t, "--config", configPath, "queue", "drop", "op-1")
		require.NoError(t, err)
		assert.Contains(t, out, "1 operations left")

		out, err = runCLI(t, "--config", configPath, "queue", "list", "-o", "json")
		require.NoError(t, err)
		var ops []models.QueuedOperation
		require.NoError(t, json.Unmarshal([]byte(out), &ops))
		require.Len(t, ops, 1)
		assert.Equal(t, "op-2", ops[0].ID)
	})

	t.Run("drop of an unknown id fails", func(t *testing.T) {
		configPath, dbPath := writeConfig(t)
		seedQueue(t, dbPath, queuedOps(t))

		_, err := runCLI(t, "--config", configPath, "queue", "drop", "nope")
		assert.EqualError(t, err, "no queued operation with id nope")
	})

	t.Run("clear resets a corrupt queue", func(t *testing.T) {
		configPath, dbPath := writeConfig(t)
		seedQueue(t, dbPath, []byte("{not json"))

		_, err := runCLI(t, "--config", configPath, "queue", "list")
		require.ErrorIs(t, err, repository.ErrCorruptQueue)

		out, err := runCLI(t, "--config", configPath, "queue", "clear")
		require.NoError(t, err)
		assert.Contains(t, out, "Discarded 0 operations")

		out, err = runCLI(t, "--config", configPath, "queue", "list", "-o", "json")
		require.NoError(t, err)
		assert.JSONEq(t, "[]", out)
	})

	t.Run("clear reports how many operations were discarded", func(t *testing.T) {
		configPath, dbPath := writeConfig(t)
		seedQueue(t, dbPath, queuedOps(t))

		out, err := runCLI(t, "--config", configPath, "queue", "clear")
		require.NoError(t, err)
		assert.Contains(t, out, "Discarded 2 operations")
	})
}
