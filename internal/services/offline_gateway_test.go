package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
)

func TestOfflineGateway_Online(t *testing.T) {
	ctx := context.Background()

	t.Run("writes go straight to the remote service", func(t *testing.T) {
		h := newHarness(t, true)
		patients := h.gateway.Table("patients")

		row, queued, err := patients.Insert(ctx, models.Row{"id": "p-1", "name": "Ana"})

		require.NoError(t, err)
		assert.False(t, queued)
		assert.Equal(t, models.Row{"id": "p-1", "name": "Ana"}, row)
		assert.Equal(t, 0, h.queue.Len())
		require.Len(t, h.remote.rows("patients"), 1)

		rows, queued, err := patients.Update(ctx, models.Row{"name": "Ana María"}, models.Conditions{"id": "p-1"})
		require.NoError(t, err)
		assert.False(t, queued)
		require.Len(t, rows, 1)
		assert.Equal(t, "Ana María", rows[0]["name"])

		rows, queued, err = patients.Delete(ctx, models.Conditions{"id": "p-1"})
		require.NoError(t, err)
		assert.False(t, queued)
		assert.Len(t, rows, 1)
		assert.Empty(t, h.remote.rows("patients"))
	})

	t.Run("remote errors are returned verbatim", func(t *testing.T) {
		h := newHarness(t, true)
		h.remote.seed("patients", models.Row{"id": "p-1"})

		_, queued, err := h.gateway.Insert(ctx, "patients", models.Row{"id": "p-1"})

		var remoteErr *RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, "23505", remoteErr.Code)
		assert.False(t, queued)
		assert.Equal(t, 0, h.queue.Len(), "online failures are not queued")
	})

	t.Run("transport errors are not queued either", func(t *testing.T) {
		h := newHarness(t, true)
		h.remote.failWith(errNetwork)

		_, _, err := h.gateway.Insert(ctx, "notes", models.Row{"body": "x"})

		assert.ErrorIs(t, err, errNetwork)
		assert.Equal(t, 0, h.queue.Len())
	})
}

func TestOfflineGateway_Offline(t *testing.T) {
	ctx := context.Background()

	t.Run("insert returns the row with a generated id", func(t *testing.T) {
		h := newHarness(t, false)

		row, queued, err := h.gateway.Insert(ctx, "patients", models.Row{"name": "Ana"})

		require.NoError(t, err)
		assert.True(t, queued)
		id, ok := row["id"].(string)
		require.True(t, ok)
		assert.Len(t, id, 36)

		head, _ := h.queue.Head()
		assert.Equal(t, models.KindInsert, head.Kind)
		assert.Equal(t, id, head.Payload["id"])
		assert.Nil(t, head.Conditions)
	})

	t.Run("insert keeps a caller supplied id", func(t *testing.T) {
		h := newHarness(t, false)

		row, _, err := h.gateway.Insert(ctx, "patients", models.Row{"id": "p-42", "name": "Ana"})

		require.NoError(t, err)
		assert.Equal(t, "p-42", row["id"])
	})

	t.Run("insert does not modify the caller's row", func(t *testing.T) {
		h := newHarness(t, false)
		input := models.Row{"name": "Ana"}

		_, _, err := h.gateway.Insert(ctx, "patients", input)

		require.NoError(t, err)
		assert.NotContains(t, input, "id")
	})

	t.Run("update echoes conditions merged with the changes", func(t *testing.T) {
		h := newHarness(t, false)

		rows, queued, err := h.gateway.Update(ctx, "sessions", models.Row{"status": "done"}, models.Conditions{"id": "abc"})

		require.NoError(t, err)
		assert.True(t, queued)
		assert.Equal(t, []models.Row{{"id": "abc", "status": "done"}}, rows)

		head, _ := h.queue.Head()
		assert.Equal(t, models.KindUpdate, head.Kind)
		assert.Equal(t, models.Row{"status": "done"}, head.Payload)
		assert.Equal(t, models.Conditions{"id": "abc"}, head.Conditions)
	})

	t.Run("delete returns no rows", func(t *testing.T) {
		h := newHarness(t, false)

		rows, queued, err := h.gateway.Delete(ctx, "sessions", models.Conditions{"id": "abc"})

		require.NoError(t, err)
		assert.True(t, queued)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)

		head, _ := h.queue.Head()
		assert.Equal(t, models.KindDelete, head.Kind)
		assert.Nil(t, head.Payload)
	})

	t.Run("select still goes to the remote service", func(t *testing.T) {
		h := newHarness(t, false)
		h.remote.failWith(errNetwork)

		_, err := h.gateway.Table("patients").Select(ctx, "*", nil)

		assert.ErrorIs(t, err, errNetwork)
		assert.Equal(t, 0, h.queue.Len())
	})

	t.Run("nothing reaches the remote service", func(t *testing.T) {
		h := newHarness(t, false)

		_, _, _ = h.gateway.Insert(ctx, "notes", models.Row{"body": "x"})
		_, _, _ = h.gateway.Update(ctx, "notes", models.Row{"body": "y"}, models.Conditions{"id": "n-1"})
		_, _, _ = h.gateway.Delete(ctx, "notes", models.Conditions{"id": "n-1"})

		assert.Empty(t, h.remote.Calls())
		assert.Equal(t, 3, h.queue.Len())
	})
}

func TestOfflineGateway_RejectsUnconditionalWrites(t *testing.T) {
	ctx := context.Background()

	for _, online := range []bool{true, false} {
		h := newHarness(t, online)

		_, _, err := h.gateway.Update(ctx, "patients", models.Row{"name": "x"}, nil)
		assert.ErrorIs(t, err, models.ErrMissingConditions)

		_, _, err = h.gateway.Delete(ctx, "patients", models.Conditions{})
		assert.ErrorIs(t, err, models.ErrMissingConditions)

		assert.Empty(t, h.remote.Calls())
		assert.Equal(t, 0, h.queue.Len())
	}
}

func TestOfflineGateway_FollowsConnectivity(t *testing.T) {
	h := newHarness(t, true)
	require.True(t, h.gateway.Online())

	h.conn.Set(false)
	assert.False(t, h.gateway.Online())

	_, queued, err := h.gateway.Insert(context.Background(), "notes", models.Row{"body": "x"})
	require.NoError(t, err)
	assert.True(t, queued)

	h.conn.Set(true)
	assert.True(t, h.gateway.Online())
}

func TestOfflineGateway_QueueListeners(t *testing.T) {
	h := newHarness(t, false)
	listener := &queueRecorder{}

	h.gateway.Subscribe(listener)
	_, _, err := h.gateway.Insert(context.Background(), "notes", models.Row{"body": "x"})
	require.NoError(t, err)
	h.gateway.Unsubscribe(listener)
	_, _, err = h.gateway.Insert(context.Background(), "notes", models.Row{"body": "y"})
	require.NoError(t, err)

	assert.Equal(t, 2, listener.Count())
	assert.Len(t, listener.Last(), 1)
}
