package folioboard

import (
	"errors"
	"sync"
	"time"

	"github.com/folioboard/folioboard.go/pkg/constants"
	"github.com/folioboard/folioboard.go/pkg/model"
)

// CollectionSync mirrors an ordered per-user sub-collection as a locally
// reactive sequence. Each collection is its own remote resource, so the hook
// holds its own live query rather than sharing the document subscription.
//
// Writes go straight to the store and become visible only once the
// subscription replays them: there is no optimistic insert, because new rows
// need a server-assigned id.
type CollectionSync struct {
	db      *DB
	name    string
	orderBy string

	mu       sync.Mutex
	identity string
	liveID   string
	done     chan struct{}
	items    []map[string]any
	loading  bool
	err      error
	onChange func(items []map[string]any, err error)
	unwatch  func()
}

// Collection creates a hook mirroring the named sub-collection, ordered by
// orderBy descending. The hook follows the session; release it with Close.
func (db *DB) Collection(name, orderBy string) *CollectionSync {
	c := &CollectionSync{
		db:      db,
		name:    name,
		orderBy: orderBy,
	}
	c.unwatch = db.session.watch(c.setIdentity)
	return c
}

// Transactions mirrors the per-user transaction log.
func (db *DB) Transactions() *CollectionSync {
	return db.Collection("transactions", "date")
}

// ChartData mirrors the per-user valuation samples.
func (db *DB) ChartData() *CollectionSync {
	return db.Collection("chartData", "timestamp")
}

// HistoryProfiles mirrors the per-user saved dashboard profiles.
func (db *DB) HistoryProfiles() *CollectionSync {
	return db.Collection("historyProfiles", "savedAt")
}

// OnChange registers the single observer, fired after every rebuild and every
// subscription error. Pass nil to detach.
func (c *CollectionSync) OnChange(fn func(items []map[string]any, err error)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Items returns a copy of the current sequence.
func (c *CollectionSync) Items() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.items))
	copy(out, c.items)
	return out
}

// Loading reports whether the first snapshot is still outstanding.
func (c *CollectionSync) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the most recent subscription error, cleared by the next
// successful push.
func (c *CollectionSync) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears down the live query and stops following the session.
func (c *CollectionSync) Close() {
	c.unwatch()
	c.teardown()
}

func (c *CollectionSync) setIdentity(identity string) {
	c.mu.Lock()
	if identity == c.identity && c.liveID != "" {
		c.mu.Unlock()
		return
	}
	c.identity = identity
	c.mu.Unlock()

	c.teardown()

	if identity == "" {
		c.publish(nil, nil, false)
		return
	}
	if !c.db.Reachable() {
		c.publish(nil, constants.ErrUnreachable, false)
		return
	}
	if denial := PermissionIssue(); denial != nil {
		c.publish(nil, denial, false)
		return
	}

	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	liveID, err := c.db.conn.Live(collectionPath(identity, c.name), c.orderBy)
	if err != nil {
		c.noteError(identity, err)
		c.publish(nil, err, false)
		return
	}
	ch, err := c.db.conn.LiveNotifications(liveID)
	if err != nil {
		if killErr := c.db.conn.Kill(liveID); killErr != nil {
			c.db.logger.Warn().Err(killErr).Str("collection", c.name).Msg("kill after failed notification attach")
		}
		c.noteError(identity, err)
		c.publish(nil, err, false)
		return
	}

	done := make(chan struct{})
	c.mu.Lock()
	stale := c.identity != identity
	if !stale {
		c.liveID = liveID
		c.done = done
	}
	c.mu.Unlock()
	if stale {
		if err := c.db.conn.Kill(liveID); err != nil {
			c.db.logger.Warn().Err(err).Str("collection", c.name).Msg("kill stale live query")
		}
		return
	}

	go c.pump(done, ch)
}

func (c *CollectionSync) teardown() {
	c.mu.Lock()
	liveID, done := c.liveID, c.done
	c.liveID, c.done = "", nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if liveID != "" {
		if err := c.db.conn.Kill(liveID); err != nil {
			c.db.logger.Warn().Err(err).Str("collection", c.name).Msg("kill live query")
		}
	}
}

func (c *CollectionSync) pump(done chan struct{}, ch chan model.Push) {
	for {
		select {
		case <-done:
			return
		case push, ok := <-ch:
			if !ok {
				return
			}
			if push.Err != nil {
				c.mu.Lock()
				identity := c.identity
				c.mu.Unlock()
				c.noteError(identity, push.Err)
				c.publish(c.Items(), push.Err, false)
				continue
			}
			// The store replays the complete ordered set on every change, so
			// the sequence is rebuilt wholesale rather than diffed.
			items := make([]map[string]any, len(push.Rows))
			copy(items, push.Rows)
			c.publish(items, nil, false)
		}
	}
}

// publish replaces the mirrored state and notifies the observer.
func (c *CollectionSync) publish(items []map[string]any, err error, loading bool) {
	c.mu.Lock()
	c.items = items
	c.err = err
	c.loading = loading
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(items, err)
	}
}

// Add appends a new row to the remote collection. The locally visible
// sequence updates once the subscription replays the change.
func (c *CollectionSync) Add(item map[string]any) error {
	identity, err := c.writable()
	if err != nil {
		return err
	}

	row := make(map[string]any, len(item)+1)
	for k, v := range item {
		row[k] = v
	}
	row[constants.CreatedAtField] = time.Now().UTC().Format(time.RFC3339)

	if _, err := c.db.conn.Create(collectionPath(identity, c.name), row); err != nil {
		c.noteError(identity, err)
		return err
	}
	return nil
}

// UpdateItem merge-writes a patch into one row.
func (c *CollectionSync) UpdateItem(id string, patch map[string]any) error {
	identity, err := c.writable()
	if err != nil {
		return err
	}

	data := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		data[k] = v
	}
	data[constants.UpdatedAtField] = time.Now().UTC().Format(time.RFC3339)

	if err := c.db.conn.Merge(itemPath(identity, c.name, id), data); err != nil {
		c.noteError(identity, err)
		return err
	}
	return nil
}

// DeleteItem removes one row.
func (c *CollectionSync) DeleteItem(id string) error {
	identity, err := c.writable()
	if err != nil {
		return err
	}
	if err := c.db.conn.Delete(itemPath(identity, c.name, id)); err != nil {
		c.noteError(identity, err)
		return err
	}
	return nil
}

// writable rejects writes while signed out or unreachable with a descriptive
// error instead of letting them escape to the transport.
func (c *CollectionSync) writable() (string, error) {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()
	if identity == "" {
		return "", constants.ErrNotSignedIn
	}
	if !c.db.Reachable() {
		return "", constants.ErrUnreachable
	}
	return identity, nil
}

func (c *CollectionSync) noteError(identity string, err error) {
	c.db.logger.Warn().Err(err).Str("collection", c.name).Msg("collection operation failed")
	if errors.Is(err, constants.ErrAccessDenied) {
		notePermissionIssue(&PermissionError{Path: collectionPath(identity, c.name), Err: err})
	}
}
