// Package mock provides a scriptable in-memory store connection for tests:
// it records every write, counts live queries, and lets tests push snapshots
// and errors into open subscriptions.
package mock

import (
	"fmt"
	"sync"

	"github.com/folioboard/folioboard.go/pkg/conn"
	"github.com/folioboard/folioboard.go/pkg/model"
)

// Write records one mutating call.
type Write struct {
	Op   string // merge, create, update, delete
	Path string
	Data map[string]any
}

type Connection struct {
	// Failure injection; read on every matching call.
	LiveErr   error
	MergeErr  error
	CreateErr error
	UpdateErr error
	DeleteErr error

	mu      sync.Mutex
	writes  []Write
	nextID  int
	byPath  map[string]string // path → live id
	byID    map[string]chan model.Push
	killed  []string
	opened  int
	authed  []string
}

func New() *Connection {
	return &Connection{
		byPath: make(map[string]string),
		byID:   make(map[string]chan model.Push),
	}
}

func (c *Connection) Connect(url string) (conn.Connection, error) { return c, nil }
func (c *Connection) Close() error                                { return nil }

func (c *Connection) Authenticate(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authed = append(c.authed, token)
	return nil
}

func (c *Connection) Merge(path string, data map[string]any) error {
	if c.MergeErr != nil {
		return c.MergeErr
	}
	c.record("merge", path, data)
	return nil
}

func (c *Connection) Create(path string, data map[string]any) (map[string]any, error) {
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	c.record("create", path, data)

	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("row-%d", c.nextID)
	c.mu.Unlock()

	stored := make(map[string]any, len(data)+1)
	for k, v := range data {
		stored[k] = v
	}
	stored["id"] = id
	return stored, nil
}

func (c *Connection) Update(path string, data map[string]any) error {
	if c.UpdateErr != nil {
		return c.UpdateErr
	}
	c.record("update", path, data)
	return nil
}

func (c *Connection) Delete(path string) error {
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	c.record("delete", path, nil)
	return nil
}

func (c *Connection) Live(path string, orderBy string) (string, error) {
	if c.LiveErr != nil {
		return "", c.LiveErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
	c.nextID++
	id := fmt.Sprintf("live-%d", c.nextID)
	c.byPath[path] = id
	c.byID[id] = make(chan model.Push, 16)
	return id, nil
}

func (c *Connection) LiveNotifications(id string) (chan model.Push, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown live query %s", id)
	}
	return ch, nil
}

func (c *Connection) Kill(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = append(c.killed, id)
	if ch, ok := c.byID[id]; ok {
		delete(c.byID, id)
		close(ch)
	}
	for path, liveID := range c.byPath {
		if liveID == id {
			delete(c.byPath, path)
		}
	}
	return nil
}

// --------------------------------------------------
// Scripting and inspection
// --------------------------------------------------

// PushDocument delivers a full document snapshot to the subscription on path.
func (c *Connection) PushDocument(path string, data map[string]any) bool {
	return c.push(path, model.Push{
		Action: model.UpdateAction,
		Doc:    model.DocumentSnapshot{Data: data, Exists: data != nil},
	})
}

// PushRows delivers a full ordered row set to the subscription on path.
func (c *Connection) PushRows(path string, rows []map[string]any) bool {
	return c.push(path, model.Push{Action: model.UpdateAction, Rows: rows})
}

// PushError delivers a subscription error to the subscription on path.
func (c *Connection) PushError(path string, err error) bool {
	return c.push(path, model.Push{Err: err})
}

func (c *Connection) push(path string, p model.Push) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byPath[path]
	if !ok {
		return false
	}
	c.byID[id] <- p
	return true
}

// LiveCount returns how many live queries were ever opened.
func (c *Connection) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// OpenLive returns how many live queries are currently open.
func (c *Connection) OpenLive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Killed returns the ids of killed live queries.
func (c *Connection) Killed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.killed))
	copy(out, c.killed)
	return out
}

// Writes returns every recorded mutating call in issue order.
func (c *Connection) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Write, len(c.writes))
	copy(out, c.writes)
	return out
}

// WritesTo filters Writes by op.
func (c *Connection) WritesTo(op string) []Write {
	var out []Write
	for _, w := range c.Writes() {
		if w.Op == op {
			out = append(out, w)
		}
	}
	return out
}

func (c *Connection) record(op, path string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string]any, len(data))
	for k, v := range data {
		copied[k] = v
	}
	c.writes = append(c.writes, Write{Op: op, Path: path, Data: copied})
}
