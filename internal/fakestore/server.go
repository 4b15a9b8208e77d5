// Package fakestore is an in-memory document store speaking the client's
// WebSocket RPC protocol, for integration-style tests of the transport. It
// supports merge-writes on documents, CRUD on ordered collections, live
// queries with an initial snapshot push, and per-path access denial.
package fakestore

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	gorilla "github.com/gorilla/websocket"

	"github.com/folioboard/folioboard.go/internal/rpc"
)

type liveQuery struct {
	path    string
	orderBy string
	client  *client
}

type client struct {
	conn *gorilla.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(gorilla.TextMessage, data)
}

type Server struct {
	upgrader gorilla.Upgrader

	mu     sync.Mutex
	docs   map[string]map[string]any
	cols   map[string][]map[string]any
	lives  map[string]*liveQuery
	denied map[string]bool
	nextID int
}

func New() *Server {
	return &Server{
		docs:   make(map[string]map[string]any),
		cols:   make(map[string][]map[string]any),
		lives:  make(map[string]*liveQuery),
		denied: make(map[string]bool),
	}
}

// Deny makes every operation on path (and its items) fail with the access
// denial code.
func (s *Server) Deny(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[path] = true
}

// Document returns a copy of the stored document at path.
func (s *Server) Document(path string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer func() {
		s.dropClient(c)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpc.RPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		s.handle(c, &req)
	}
}

func (s *Server) handle(c *client, req *rpc.RPCRequest) {
	fail := func(code int64, msg string) {
		c.send(rpc.RPCResponse{ID: req.ID, Error: &rpc.RPCError{Code: code, Message: msg}})
	}
	ok := func(result any) {
		c.send(rpc.RPCResponse{ID: req.ID, Result: result})
	}

	switch req.Method {
	case "authenticate":
		ok("OK")

	case "merge":
		path, data := pathAndData(req.Params)
		if s.isDenied(path) {
			fail(rpc.CodeAccessDenied, "no permission on "+path)
			return
		}
		s.merge(path, data)
		ok(nil)

	case "create":
		path, data := pathAndData(req.Params)
		if s.isDenied(path) {
			fail(rpc.CodeAccessDenied, "no permission on "+path)
			return
		}
		ok(s.create(path, data))

	case "update":
		path, data := pathAndData(req.Params)
		if s.isDenied(parentOf(path)) || s.isDenied(path) {
			fail(rpc.CodeAccessDenied, "no permission on "+path)
			return
		}
		s.updateItem(path, data)
		ok(nil)

	case "delete":
		path, _ := pathAndData(req.Params)
		if s.isDenied(parentOf(path)) || s.isDenied(path) {
			fail(rpc.CodeAccessDenied, "no permission on "+path)
			return
		}
		s.deleteItem(path)
		ok(nil)

	case "live":
		path, orderBy := twoStrings(req.Params)
		if s.isDenied(path) {
			fail(rpc.CodeAccessDenied, "no permission on "+path)
			return
		}
		id := s.addLive(c, path, orderBy)
		ok(id)
		// First snapshot follows immediately, even for documents that do not
		// exist yet; consumers stay in loading state until it lands.
		s.replayTo(id)

	case "kill":
		id, _ := twoStrings(req.Params)
		s.mu.Lock()
		delete(s.lives, id)
		s.mu.Unlock()
		ok(nil)

	default:
		fail(-32601, "method not found: "+req.Method)
	}
}

// --------------------------------------------------
// Storage
// --------------------------------------------------

func (s *Server) merge(path string, data map[string]any) {
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		doc = make(map[string]any)
		s.docs[path] = doc
	}
	for k, v := range data {
		doc[k] = v
	}
	s.mu.Unlock()
	s.broadcast(path)
}

func (s *Server) create(path string, data map[string]any) map[string]any {
	s.mu.Lock()
	s.nextID++
	row := make(map[string]any, len(data)+1)
	for k, v := range data {
		row[k] = v
	}
	row["id"] = strconv.Itoa(s.nextID)
	s.cols[path] = append(s.cols[path], row)
	s.mu.Unlock()
	s.broadcast(path)
	return row
}

func (s *Server) updateItem(path string, data map[string]any) {
	col, id := parentOf(path), lastSegment(path)
	s.mu.Lock()
	for _, row := range s.cols[col] {
		if row["id"] == id {
			for k, v := range data {
				row[k] = v
			}
			break
		}
	}
	s.mu.Unlock()
	s.broadcast(col)
}

func (s *Server) deleteItem(path string) {
	// Deleting a document path removes the document; deleting an item path
	// removes the row from its collection.
	s.mu.Lock()
	if _, ok := s.docs[path]; ok {
		delete(s.docs, path)
		s.mu.Unlock()
		s.broadcast(path)
		return
	}
	col, id := parentOf(path), lastSegment(path)
	rows := s.cols[col]
	for i, row := range rows {
		if row["id"] == id {
			s.cols[col] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.broadcast(col)
}

// --------------------------------------------------
// Live queries
// --------------------------------------------------

func (s *Server) addLive(c *client, path, orderBy string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "lq-" + strconv.Itoa(s.nextID)
	s.lives[id] = &liveQuery{path: path, orderBy: orderBy, client: c}
	return id
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, lq := range s.lives {
		if lq.client == c {
			delete(s.lives, id)
		}
	}
}

// broadcast pushes the current state of path to every live query bound to it.
func (s *Server) broadcast(path string) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.lives))
	for id, lq := range s.lives {
		if lq.path == path {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.replayTo(id)
	}
}

// replayTo sends the full current state of a live query's path.
func (s *Server) replayTo(id string) {
	s.mu.Lock()
	lq, ok := s.lives[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	payload := rpc.LivePayload{ID: id, Action: "UPDATE"}
	if doc, ok := s.docs[lq.path]; ok {
		payload.Exists = true
		payload.Result = make(map[string]any, len(doc))
		for k, v := range doc {
			payload.Result[k] = v
		}
	}
	if rows, ok := s.cols[lq.path]; ok {
		payload.Rows = sortedRows(rows, lq.orderBy)
	}
	c := lq.client
	s.mu.Unlock()

	c.send(rpc.LiveMessage{Result: payload})
}

func sortedRows(rows []map[string]any, orderBy string) []map[string]any {
	out := make([]map[string]any, len(rows))
	copy(out, rows)
	if orderBy == "" {
		return out
	}
	// Order fields are RFC3339 strings, so a lexical sort is chronological.
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i][orderBy].(string)
		b, _ := out[j][orderBy].(string)
		return a > b
	})
	return out
}

// --------------------------------------------------
// Helpers
// --------------------------------------------------

func (s *Server) isDenied(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.denied[path]
}

func pathAndData(params []any) (string, map[string]any) {
	var path string
	var data map[string]any
	if len(params) > 0 {
		path, _ = params[0].(string)
	}
	if len(params) > 1 {
		data, _ = params[1].(map[string]any)
	}
	return path, data
}

func twoStrings(params []any) (string, string) {
	var a, b string
	if len(params) > 0 {
		a, _ = params[0].(string)
	}
	if len(params) > 1 {
		b, _ = params[1].(string)
	}
	return a, b
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[:i]
}

func lastSegment(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}
