package folioboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioboard/folioboard.go/internal/mock"
	"github.com/folioboard/folioboard.go/pkg/constants"
)

func TestCollectionMirrorsPushedRows(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	c := db.Transactions()
	defer c.Close()
	require.True(t, c.Loading(), "loading until the first snapshot")

	rows := []map[string]any{
		{"id": "2", "ticker": "VTI", "date": "2026-02-01T00:00:00Z"},
		{"id": "1", "ticker": "VXUS", "date": "2026-01-01T00:00:00Z"},
	}
	require.True(t, store.PushRows(collectionPath("alice", "transactions"), rows))

	eventually(t, func() bool { return len(c.Items()) == 2 }, "row set mirrored")
	assert.False(t, c.Loading())
	assert.Equal(t, "VTI", c.Items()[0]["ticker"], "store order preserved")

	// Every push replaces the sequence wholesale.
	require.True(t, store.PushRows(collectionPath("alice", "transactions"), rows[:1]))
	eventually(t, func() bool { return len(c.Items()) == 1 }, "rebuild on each push")
}

func TestCollectionAdd(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	c := db.Transactions()
	defer c.Close()

	require.NoError(t, c.Add(map[string]any{"ticker": "VTI"}))

	creates := store.WritesTo("create")
	require.Len(t, creates, 1)
	assert.Equal(t, collectionPath("alice", "transactions"), creates[0].Path)
	assert.Contains(t, creates[0].Data, constants.CreatedAtField)

	// No optimistic insert: the sequence updates only through the replay.
	assert.Empty(t, c.Items())
}

func TestCollectionWritesRequireSignIn(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)

	c := db.Transactions()
	defer c.Close()

	assert.ErrorIs(t, c.Add(map[string]any{"ticker": "VTI"}), constants.ErrNotSignedIn)
	assert.ErrorIs(t, c.UpdateItem("1", map[string]any{"ticker": "VT"}), constants.ErrNotSignedIn)
	assert.ErrorIs(t, c.DeleteItem("1"), constants.ErrNotSignedIn)
	assert.Empty(t, store.Writes())
}

func TestCollectionWritesRequireReachableStore(t *testing.T) {
	db := FromConnection(nil)
	db.Session().SignInAs("alice")

	c := db.Transactions()
	defer c.Close()

	assert.ErrorIs(t, c.Err(), constants.ErrUnreachable)
	assert.ErrorIs(t, c.Add(map[string]any{"ticker": "VTI"}), constants.ErrUnreachable)
}

func TestCollectionUpdateAndDelete(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	c := db.Transactions()
	defer c.Close()

	require.NoError(t, c.UpdateItem("7", map[string]any{"ticker": "VT"}))
	require.NoError(t, c.DeleteItem("7"))

	merges := store.WritesTo("merge")
	require.Len(t, merges, 1)
	assert.Equal(t, itemPath("alice", "transactions", "7"), merges[0].Path)
	assert.Contains(t, merges[0].Data, constants.UpdatedAtField)

	deletes := store.WritesTo("delete")
	require.Len(t, deletes, 1)
	assert.Equal(t, itemPath("alice", "transactions", "7"), deletes[0].Path)
}

func TestCollectionSignOutClears(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	c := db.ChartData()
	defer c.Close()

	store.PushRows(collectionPath("alice", "chartData"), []map[string]any{{"id": "1"}})
	eventually(t, func() bool { return len(c.Items()) == 1 }, "synced")

	db.Session().SignOut()
	assert.Empty(t, c.Items())
	assert.Len(t, store.Killed(), 1)
}

func TestCollectionsUseDistinctLiveQueries(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	tx := db.Transactions()
	defer tx.Close()
	chart := db.ChartData()
	defer chart.Close()
	field := db.Field("data", nil)
	defer field.Close()

	// Two collections and the shared document listener: three live queries.
	assert.Equal(t, 3, store.LiveCount())
}
