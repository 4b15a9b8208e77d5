// Package gorilla implements the store connection over a gorilla/websocket
// transport speaking the store's JSON-RPC protocol: requests are correlated
// to responses by request id, and messages without one are live query pushes.
package gorilla

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/folioboard/folioboard.go/internal/rand"
	"github.com/folioboard/folioboard.go/internal/rpc"
	"github.com/folioboard/folioboard.go/pkg/conn"
	"github.com/folioboard/folioboard.go/pkg/constants"
	"github.com/folioboard/folioboard.go/pkg/model"
)

type Option func(ws *WebSocket) error

type WebSocket struct {
	Conn     *gorilla.Conn
	connLock sync.Mutex
	Timeout  time.Duration
	Option   []Option

	responseChannels     map[string]chan rpc.RPCResponse
	responseChannelsLock sync.RWMutex

	notificationChannels     map[string]chan model.Push
	notificationChannelsLock sync.RWMutex

	close     chan int
	closeOnce sync.Once
}

func Create() *WebSocket {
	return &WebSocket{
		close:                make(chan int),
		responseChannels:     make(map[string]chan rpc.RPCResponse),
		notificationChannels: make(map[string]chan model.Push),
		Timeout:              constants.DefaultTimeout,
	}
}

func (ws *WebSocket) Connect(url string) (conn.Connection, error) {
	dialer := gorilla.DefaultDialer
	dialer.EnableCompression = true

	so, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", constants.ErrUnreachable, err)
	}
	ws.Conn = so

	for _, option := range ws.Option {
		if err := option(ws); err != nil {
			return ws, err
		}
	}

	ws.initialize()
	return ws, nil
}

func (ws *WebSocket) SetTimeOut(timeout time.Duration) *WebSocket {
	ws.Option = append(ws.Option, func(ws *WebSocket) error {
		ws.Timeout = timeout
		return nil
	})
	return ws
}

func (ws *WebSocket) SetCompression(compress bool) *WebSocket {
	ws.Option = append(ws.Option, func(ws *WebSocket) error {
		ws.Conn.EnableWriteCompression(compress)
		return nil
	})
	return ws
}

func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		err = ws.Conn.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
		close(ws.close)
	})
	return err
}

// --------------------------------------------------
// Store operations
// --------------------------------------------------

func (ws *WebSocket) Authenticate(token string) error {
	_, err := ws.Send("authenticate", []any{token})
	return err
}

func (ws *WebSocket) Merge(path string, data map[string]any) error {
	_, err := ws.Send("merge", []any{path, data})
	return err
}

func (ws *WebSocket) Create(path string, data map[string]any) (map[string]any, error) {
	res, err := ws.Send("create", []any{path, data})
	if err != nil {
		return nil, err
	}
	stored, ok := res.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("create %s: unexpected result %T", path, res)
	}
	return stored, nil
}

func (ws *WebSocket) Update(path string, data map[string]any) error {
	_, err := ws.Send("update", []any{path, data})
	return err
}

func (ws *WebSocket) Delete(path string) error {
	_, err := ws.Send("delete", []any{path})
	return err
}

func (ws *WebSocket) Live(path string, orderBy string) (string, error) {
	res, err := ws.Send("live", []any{path, orderBy})
	if err != nil {
		return "", err
	}
	id, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("live %s: unexpected result %T", path, res)
	}
	return id, nil
}

func (ws *WebSocket) LiveNotifications(liveQueryID string) (chan model.Push, error) {
	return ws.createNotificationChannel(liveQueryID)
}

func (ws *WebSocket) Kill(liveQueryID string) error {
	_, err := ws.Send("kill", []any{liveQueryID})
	ws.removeNotificationChannel(liveQueryID)
	return err
}

// --------------------------------------------------
// Channel registries
// --------------------------------------------------

func (ws *WebSocket) createResponseChannel(id string) (chan rpc.RPCResponse, error) {
	ws.responseChannelsLock.Lock()
	defer ws.responseChannelsLock.Unlock()

	if _, ok := ws.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", constants.ErrIDInUse, id)
	}

	ch := make(chan rpc.RPCResponse)
	ws.responseChannels[id] = ch
	return ch, nil
}

func (ws *WebSocket) removeResponseChannel(id string) {
	ws.responseChannelsLock.Lock()
	defer ws.responseChannelsLock.Unlock()
	delete(ws.responseChannels, id)
}

func (ws *WebSocket) getResponseChannel(id string) (chan rpc.RPCResponse, bool) {
	ws.responseChannelsLock.RLock()
	defer ws.responseChannelsLock.RUnlock()
	ch, ok := ws.responseChannels[id]
	return ch, ok
}

func (ws *WebSocket) createNotificationChannel(liveQueryID string) (chan model.Push, error) {
	ws.notificationChannelsLock.Lock()
	defer ws.notificationChannelsLock.Unlock()

	if _, ok := ws.notificationChannels[liveQueryID]; ok {
		return nil, fmt.Errorf("%w: %v", constants.ErrIDInUse, liveQueryID)
	}

	ch := make(chan model.Push, 16)
	ws.notificationChannels[liveQueryID] = ch
	return ch, nil
}

func (ws *WebSocket) removeNotificationChannel(liveQueryID string) {
	ws.notificationChannelsLock.Lock()
	defer ws.notificationChannelsLock.Unlock()
	if ch, ok := ws.notificationChannels[liveQueryID]; ok {
		delete(ws.notificationChannels, liveQueryID)
		close(ch)
	}
}

// pushTo delivers p to the live query's channel. Holding the read lock for
// the send excludes the close in removeNotificationChannel; the send is
// non-blocking because every push carries the full state, so a push dropped
// on a saturated consumer is superseded by the next one.
func (ws *WebSocket) pushTo(id string, p model.Push) bool {
	ws.notificationChannelsLock.RLock()
	defer ws.notificationChannelsLock.RUnlock()
	ch, ok := ws.notificationChannels[id]
	if !ok {
		return false
	}
	select {
	case ch <- p:
	default:
	}
	return true
}

// pushToAll delivers p to every live query's channel.
func (ws *WebSocket) pushToAll(p model.Push) {
	ws.notificationChannelsLock.RLock()
	defer ws.notificationChannelsLock.RUnlock()
	for _, ch := range ws.notificationChannels {
		select {
		case ch <- p:
		default:
		}
	}
}

// --------------------------------------------------
// RPC plumbing
// --------------------------------------------------

// Send issues one RPC and waits for its response or the timeout.
func (ws *WebSocket) Send(method string, params []any) (any, error) {
	id := rand.NewRequestID(constants.RequestIDLength)
	request := &rpc.RPCRequest{
		ID:     id,
		Method: method,
		Params: params,
	}

	responseChan, err := ws.createResponseChannel(id)
	if err != nil {
		return nil, err
	}
	defer ws.removeResponseChannel(id)

	if err := ws.write(request); err != nil {
		return nil, err
	}

	select {
	case <-time.After(ws.Timeout):
		return nil, constants.ErrTimeout
	case res, open := <-responseChan:
		if !open {
			return nil, constants.ErrUnreachable
		}
		if res.ID != id {
			return nil, constants.ErrInvalidResponseID
		}
		if res.Error != nil {
			return nil, res.Error.Err()
		}
		return res.Result, nil
	}
}

func (ws *WebSocket) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	return ws.Conn.WriteMessage(gorilla.TextMessage, data)
}

func (ws *WebSocket) initialize() {
	go func() {
		for {
			select {
			case <-ws.close:
				return
			default:
				_, data, err := ws.Conn.ReadMessage()
				if err != nil {
					ws.dropAll(fmt.Errorf("%w: %s", constants.ErrUnreachable, err))
					return
				}
				go ws.handleMessage(data)
			}
		}
	}()
}

// dropAll closes every registered channel after the transport dies, so every
// waiter and every subscriber observes the failure rather than hanging.
func (ws *WebSocket) dropAll(err error) {
	ws.responseChannelsLock.Lock()
	for id, ch := range ws.responseChannels {
		delete(ws.responseChannels, id)
		close(ch)
	}
	ws.responseChannelsLock.Unlock()

	ws.notificationChannelsLock.Lock()
	for id, ch := range ws.notificationChannels {
		delete(ws.notificationChannels, id)
		select {
		case ch <- model.Push{Err: err}:
		default:
		}
		close(ch)
	}
	ws.notificationChannelsLock.Unlock()
}

func (ws *WebSocket) handleMessage(data []byte) {
	raw := &rpc.RawResponse{Data: data}
	if raw.IsLive() {
		ws.handleLiveMessage(data)
		return
	}

	var res rpc.RPCResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return
	}
	responseChan, ok := ws.getResponseChannel(res.ID)
	if !ok {
		return
	}
	responseChan <- res
}

func (ws *WebSocket) handleLiveMessage(data []byte) {
	var msg rpc.LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.Error != nil {
		// A push error without an addressee concerns the connection's account
		// as a whole; every subscriber hears about it.
		push := model.Push{Err: msg.Error.Err()}
		if !ws.pushTo(msg.Result.ID, push) {
			ws.pushToAll(push)
		}
		return
	}

	ws.pushTo(msg.Result.ID, model.Push{
		Action: model.Action(msg.Result.Action),
		Doc: model.DocumentSnapshot{
			Data:   msg.Result.Result,
			Exists: msg.Result.Exists,
		},
		Rows: msg.Result.Rows,
	})
}
