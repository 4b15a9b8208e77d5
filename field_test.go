package folioboard

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioboard/folioboard.go/internal/cache"
	"github.com/folioboard/folioboard.go/internal/mock"
	"github.com/folioboard/folioboard.go/pkg/constants"
	"github.com/folioboard/folioboard.go/pkg/model"
)

func TestFieldDefaultWhenAbsent(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("fx", map[string]any{"SEK": 1.0})
	defer f.Close()

	// Document exists but lacks the field.
	store.PushDocument(docPath("alice"), map[string]any{"data": "other"})
	eventually(t, func() bool { return !f.State().Loading }, "first snapshot lands")
	assert.Equal(t, map[string]any{"SEK": 1.0}, f.Value())

	// Document does not exist at all.
	g := db.Field("missing", "fallback")
	defer g.Close()
	store.PushDocument(docPath("alice"), nil)
	eventually(t, func() bool { return !g.State().Loading }, "nonexistent document confirmed")
	assert.Equal(t, "fallback", g.Value())
}

func TestFieldFollowsPushes(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("data", nil)
	defer f.Close()
	require.True(t, f.State().Loading, "loading until the first snapshot")

	store.PushDocument(docPath("alice"), map[string]any{"data": map[string]any{"total": 1.0}})
	eventually(t, func() bool {
		v, _ := f.Value().(map[string]any)
		return v != nil && v["total"] == 1.0
	}, "push reflected in state")
	assert.False(t, f.State().Loading)
	assert.NoError(t, f.State().Err)
}

func TestFieldOptimisticUpdate(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("counter", 0)
	defer f.Close()

	increment := func(cur any) any {
		n, _ := cur.(int)
		return n + 1
	}
	f.Update(increment)
	f.Update(increment)

	// Optimistic: local value is 2 before any remote confirmation arrived.
	assert.Equal(t, 2, f.Value())

	merges := store.WritesTo("merge")
	require.Len(t, merges, 2, "both writes issued, in order")
	assert.Equal(t, docPath("alice"), merges[0].Path)
	assert.Equal(t, 1, merges[0].Data["counter"])
	assert.Equal(t, 2, merges[1].Data["counter"])
	assert.Contains(t, merges[0].Data, constants.UpdatedAtField)
}

func TestFieldUpdateWhileSignedOut(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)

	f := db.Field("theme", "light")
	defer f.Close()

	f.Set("dark")
	assert.Equal(t, "dark", f.Value(), "local value still applies")
	assert.Empty(t, store.Writes(), "no remote write while signed out")
}

func TestFieldSignOutResets(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("data", "default")
	defer f.Close()

	store.PushDocument(docPath("alice"), map[string]any{"data": "remote"})
	eventually(t, func() bool { return f.Value() == "remote" }, "synced")

	db.Session().SignOut()
	assert.Equal(t, "default", f.Value())
	assert.Len(t, store.Killed(), 1, "subscription torn down")

	f.Set("local-only")
	assert.Empty(t, store.WritesTo("merge"), "no remote writes after sign-out")
}

func TestFieldIdentitySwitch(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("data", nil)
	defer f.Close()
	store.PushDocument(docPath("alice"), map[string]any{"data": "alice-data"})
	eventually(t, func() bool { return f.Value() == "alice-data" }, "alice synced")

	db.Session().SignInAs("bob")
	require.Len(t, store.Killed(), 1, "old subscription killed before the new one delivers")
	assert.Equal(t, 2, store.LiveCount())

	store.PushDocument(docPath("bob"), map[string]any{"data": "bob-data"})
	eventually(t, func() bool { return f.Value() == "bob-data" }, "bob synced")
}

func TestFieldErrorClearedByNextDelivery(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("data", nil)
	defer f.Close()
	g := db.Field("fx", nil)
	defer g.Close()

	pushErr := errors.New("stream hiccup")
	store.PushError(docPath("alice"), pushErr)
	eventually(t, func() bool { return f.State().Err != nil && g.State().Err != nil },
		"error reaches every registered hook")

	store.PushDocument(docPath("alice"), map[string]any{"data": 1.0, "fx": 2.0})
	eventually(t, func() bool { return f.State().Err == nil && g.State().Err == nil },
		"successful delivery clears every error")
}

func TestAccessDeniedSetsPermissionSlotOnce(t *testing.T) {
	ClearPermissionIssue()
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("data", nil)
	defer f.Close()

	denial := fmt.Errorf("%w: users/alice/portfolio/data", constants.ErrAccessDenied)
	store.PushError(docPath("alice"), denial)
	eventually(t, func() bool { return PermissionIssue() != nil }, "denial recorded globally")
	first := PermissionIssue()

	// The same denial again must not replace the slot.
	store.PushError(docPath("alice"), denial)
	eventually(t, func() bool { return f.State().Err != nil }, "hook sees the repeat")
	assert.Same(t, first, PermissionIssue(), "slot set exactly once for identical denials")

	ClearPermissionIssue()
	assert.NoError(t, PermissionIssue())
}

func TestAccessDeniedWriteSetsPermissionSlot(t *testing.T) {
	ClearPermissionIssue()
	t.Cleanup(ClearPermissionIssue)

	store := mock.New()
	store.MergeErr = fmt.Errorf("%w: merge refused", constants.ErrAccessDenied)
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("data", nil)
	defer f.Close()

	f.Set("value")
	assert.Equal(t, "value", f.Value(), "optimistic value is not rolled back")
	assert.ErrorIs(t, f.State().Err, constants.ErrAccessDenied)

	var perm *PermissionError
	require.ErrorAs(t, PermissionIssue(), &perm)
	assert.Equal(t, docPath("alice"), perm.Path)
}

func TestDeniedAccountBlocksNewSubscriptions(t *testing.T) {
	ClearPermissionIssue()
	t.Cleanup(ClearPermissionIssue)

	store := mock.New()
	db := FromConnection(store)
	notePermissionIssue(&PermissionError{Path: docPath("alice")})

	db.Session().SignInAs("alice")
	f := db.Field("data", "default")
	defer f.Close()

	assert.Equal(t, 0, store.LiveCount(), "no remote access while the denial is unresolved")
	assert.ErrorIs(t, f.State().Err, constants.ErrAccessDenied)
	assert.Equal(t, "default", f.Value())
}

func TestFieldUnreachableFallsBackToCache(t *testing.T) {
	local, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, local.Put("alice", "theme", "dark"))

	db := FromConnection(nil).WithCache(local)
	db.Session().SignInAs("alice")

	f := db.Field("theme", "light")
	defer f.Close()
	assert.Equal(t, "dark", f.Value(), "cached value served silently")
	assert.NoError(t, f.State().Err)

	g := db.Field("uncached", "default")
	defer g.Close()
	assert.Equal(t, "default", g.Value())
	assert.ErrorIs(t, g.State().Err, constants.ErrUnreachable)
}

func TestFieldEchoDoesNotRenotify(t *testing.T) {
	store := mock.New()
	db := FromConnection(store)
	db.Session().SignInAs("alice")

	f := db.Field("fx", nil)
	defer f.Close()

	changes := make(chan model.FieldState, 16)
	f.OnChange(func(s model.FieldState) { changes <- s })

	payload := map[string]any{"fx": map[string]any{"SEK": 1.0, "USD": 9.5}}
	store.PushDocument(docPath("alice"), payload)
	eventually(t, func() bool { return len(changes) > 0 }, "first delivery notifies")
	for len(changes) > 0 {
		<-changes
	}

	// A structurally identical echo must not trigger downstream recomputation.
	store.PushDocument(docPath("alice"), map[string]any{"fx": map[string]any{"USD": 9.5, "SEK": 1.0}})
	store.PushDocument(docPath("alice"), map[string]any{"fx": map[string]any{"SEK": 2.0, "USD": 9.5}})
	eventually(t, func() bool {
		v, _ := f.Value().(map[string]any)
		return v != nil && v["SEK"] == 2.0
	}, "real change lands")
	assert.Equal(t, 1, len(changes), "echo suppressed, change delivered")
}
