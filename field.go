package folioboard

import (
	"errors"
	"sync"
	"time"

	"github.com/folioboard/folioboard.go/pkg/constants"
	"github.com/folioboard/folioboard.go/pkg/model"
)

// FieldSync presents one named field of the per-user document as an
// independently reactive value with read-after-write consistency.
//
// While signed in it shares the identity's single live subscription through
// the listener manager; the remote value always wins. Updates apply locally
// first (optimistic) and are merge-written to the store; a failed write
// surfaces in the state but is never rolled back — the next authoritative
// delivery corrects any divergence. While signed out or unreachable the hook
// serves the local cache, falling back to the caller's default.
type FieldSync struct {
	db    *DB
	field string
	def   any

	mu       sync.Mutex
	state    model.FieldState
	identity string
	token    string
	onChange func(model.FieldState)
	unwatch  func()
}

// Field creates a hook bound to the named document field. def is served
// whenever the field is absent or the document does not exist. The hook
// follows the session from now on; release it with Close.
func (db *DB) Field(name string, def any) *FieldSync {
	f := &FieldSync{
		db:    db,
		field: name,
		def:   def,
		state: model.FieldState{Value: def},
	}
	f.unwatch = db.session.watch(f.setIdentity)
	return f
}

// OnChange registers the single state observer. It fires on every state
// change, including the one delivering the current state of a subscription
// already in flight. Pass nil to detach.
func (f *FieldSync) OnChange(fn func(model.FieldState)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// State returns the current (value, loading, error) tuple.
func (f *FieldSync) State() model.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Value returns just the current value.
func (f *FieldSync) Value() any {
	return f.State().Value
}

// Close releases the subscription and stops following the session.
func (f *FieldSync) Close() {
	f.unwatch()
	f.mu.Lock()
	identity, token := f.identity, f.token
	f.identity, f.token = "", ""
	f.mu.Unlock()
	if token != "" {
		f.db.manager.Unsubscribe(identity, token)
	}
}

// setIdentity drives the hook's lifecycle. The old subscription is torn down
// before any new one is created so a stale callback can never write another
// identity's data into this hook's state.
func (f *FieldSync) setIdentity(identity string) {
	f.mu.Lock()
	if identity == f.identity {
		f.mu.Unlock()
		return
	}
	oldIdentity, oldToken := f.identity, f.token
	f.identity = identity
	f.token = ""
	f.mu.Unlock()

	if oldToken != "" {
		f.db.manager.Unsubscribe(oldIdentity, oldToken)
	}

	if identity == "" {
		// Signed out: reset to default, no remote access.
		f.setState(model.FieldState{Value: f.def})
		return
	}

	// An unresolved denial affects every path of the account; re-subscribing
	// before the UI clears it would only reproduce it.
	if denial := PermissionIssue(); denial != nil {
		f.setState(model.FieldState{Value: f.def, Err: denial})
		return
	}

	f.setLoading()
	token := f.db.manager.Subscribe(identity, f.deliver)

	f.mu.Lock()
	stale := f.identity != identity
	if !stale {
		f.token = token
	}
	f.mu.Unlock()
	if stale {
		if token != "" {
			f.db.manager.Unsubscribe(identity, token)
		}
		return
	}

	if token == "" {
		f.degrade(identity)
	}
}

// degrade serves the cache while the store is unreachable. A cache hit is
// silent soft degradation; a miss surfaces ErrUnreachable alongside the
// default.
func (f *FieldSync) degrade(identity string) {
	if v, ok := f.db.cachedValue(identity, f.field); ok {
		f.setState(model.FieldState{Value: v})
		return
	}
	if !f.db.Reachable() {
		f.setState(model.FieldState{Value: f.def, Err: constants.ErrUnreachable})
	}
}

// deliver is the callback registered with the listener manager.
func (f *FieldSync) deliver(doc model.DocumentSnapshot, loading bool, err error) {
	f.mu.Lock()
	if err != nil {
		f.state.Loading = loading
		f.state.Err = err
		f.notifyLocked()
		return
	}

	next := f.def
	if v, ok := doc.Field(f.field); ok {
		next = v
	}

	changed := !structuralEqual(next, f.state.Value)
	if changed {
		f.state.Value = next
	}
	cleared := f.state.Err != nil
	f.state.Err = nil
	wasLoading := f.state.Loading
	f.state.Loading = loading

	if changed || cleared || wasLoading != loading {
		f.notifyLocked()
		return
	}
	f.mu.Unlock()
}

// Update computes the next value from the current one, applies it
// optimistically, writes it through to the local cache, and — while signed in
// and reachable — issues the merge-write. The remote confirmation arrives via
// the subscription, not via the write result; a failed write only marks the
// state, it never rolls the value back.
func (f *FieldSync) Update(mutate func(current any) any) {
	f.mu.Lock()
	next := mutate(f.state.Value)
	changed := !structuralEqual(next, f.state.Value)
	f.state.Value = next
	identity := f.identity
	if changed {
		f.notifyLocked()
	} else {
		f.mu.Unlock()
	}

	if identity == "" {
		return
	}
	f.db.cacheValue(identity, f.field, next)
	if !f.db.Reachable() {
		return
	}

	err := f.db.conn.Merge(docPath(identity), map[string]any{
		f.field:                  next,
		constants.UpdatedAtField: time.Now().UTC().Format(time.RFC3339),
	})
	if err == nil {
		return
	}
	f.db.logger.Warn().Err(err).Str("field", f.field).Msg("merge write failed")
	if errors.Is(err, constants.ErrAccessDenied) {
		notePermissionIssue(&PermissionError{Path: docPath(identity), Err: err})
	}
	f.mu.Lock()
	f.state.Err = err
	f.notifyLocked()
}

// Set is Update with a constant.
func (f *FieldSync) Set(value any) {
	f.Update(func(any) any { return value })
}

func (f *FieldSync) setLoading() {
	f.mu.Lock()
	f.state.Loading = true
	f.notifyLocked()
}

func (f *FieldSync) setState(s model.FieldState) {
	f.mu.Lock()
	f.state = s
	f.notifyLocked()
}

// notifyLocked snapshots state and observer, releases the lock, then fires.
// Callers must hold the lock; it is released on return.
func (f *FieldSync) notifyLocked() {
	st := f.state
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
