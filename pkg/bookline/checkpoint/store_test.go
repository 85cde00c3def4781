package checkpoint_test

import (
	"context"
	"testing"

	"github.com/bookline/bookline/pkg/bookline/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) checkpoint.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		data := []byte(`{"stage":"initial_request"}`)
		require.NoError(t, store.Save(ctx, "session-1", data))

		loaded, err := store.Load(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Save_Overwrites", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "session-1", []byte("first")))
		require.NoError(t, store.Save(ctx, "session-1", []byte("second")))

		loaded, err := store.Load(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load(ctx, "missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Sessions_Independent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "session-1", []byte("one")))
		require.NoError(t, store.Save(ctx, "session-2", []byte("two")))

		loaded, err := store.Load(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), loaded)

		loaded, err = store.Load(ctx, "session-2")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), loaded)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "session-1", []byte("data")))
		require.NoError(t, store.Delete(ctx, "session-1"))

		_, err := store.Load(ctx, "session-1")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)

		// Deleting a missing session is not an error.
		require.NoError(t, store.Delete(ctx, "missing"))
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save(ctx, "s", []byte("x")), checkpoint.ErrStoreClosed)
		_, err := store.Load(ctx, "s")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContractTest(t, "Memory", func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

func TestSQLiteStore_Contract(t *testing.T) {
	storeContractTest(t, "SQLite", func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())
	require.NoError(t, store.Save(ctx, "a", []byte("1")))
	require.NoError(t, store.Save(ctx, "b", []byte("2")))
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	data := []byte("original")
	require.NoError(t, store.Save(ctx, "s", data))
	data[0] = 'X'

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), loaded)
}

func TestRedisStore_BadURL(t *testing.T) {
	_, err := checkpoint.NewRedisStore("not-a-url", 0)
	assert.Error(t, err)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	cp := checkpoint.New("session-1", "confirming_slots", 4, []byte(`{"stage":"confirming_slots"}`))

	data, err := cp.Marshal()
	require.NoError(t, err)

	restored, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, checkpoint.Version, restored.Version)
	assert.Equal(t, "session-1", restored.SessionID)
	assert.Equal(t, "confirming_slots", restored.Stage)
	assert.Equal(t, 4, restored.Sequence)
	assert.JSONEq(t, `{"stage":"confirming_slots"}`, string(restored.State))
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}
