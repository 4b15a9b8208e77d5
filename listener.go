package folioboard

import (
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/folioboard/folioboard.go/pkg/conn"
	"github.com/folioboard/folioboard.go/pkg/constants"
	"github.com/folioboard/folioboard.go/pkg/model"
)

// DeliveryCallback receives every push for an identity's document. A nil err
// with loading false means doc is the authoritative state as of that push.
type DeliveryCallback func(doc model.DocumentSnapshot, loading bool, err error)

type registration struct {
	liveID      string
	subscribers map[string]DeliveryCallback
	done        chan struct{}
}

// ListenerManager guarantees a 1:1 relationship between live remote
// subscriptions and identities with at least one interested consumer.
// The identity→registration registry is owned exclusively by this type;
// nothing else reads or writes it.
type ListenerManager struct {
	conn   conn.Connection // nil while unreachable
	logger zerolog.Logger

	mu   sync.Mutex
	regs map[string]*registration
}

func newListenerManager(c conn.Connection, logger zerolog.Logger) *ListenerManager {
	return &ListenerManager{
		conn:   c,
		logger: logger,
		regs:   make(map[string]*registration),
	}
}

// Subscribe registers cb for every future push of identity's document and
// returns the subscription token to release it with. When identity is empty
// or the store is unreachable, cb is invoked exactly once, synchronously, with
// an empty snapshot, and the returned token is "" — no registration exists.
//
// Opening the remote subscription is the only network-observable effect, and
// it is skipped entirely when a registration already exists for identity.
func (m *ListenerManager) Subscribe(identity string, cb DeliveryCallback) string {
	if identity == "" || m.conn == nil {
		cb(model.DocumentSnapshot{}, false, nil)
		return ""
	}

	m.mu.Lock()
	reg, ok := m.regs[identity]
	if !ok {
		liveID, err := m.conn.Live(docPath(identity), "")
		if err == nil {
			var ch chan model.Push
			ch, err = m.conn.LiveNotifications(liveID)
			if err != nil {
				if killErr := m.conn.Kill(liveID); killErr != nil {
					m.logger.Warn().Err(killErr).Str("identity", identity).Msg("kill after failed notification attach")
				}
			} else {
				reg = &registration{
					liveID:      liveID,
					subscribers: make(map[string]DeliveryCallback),
					done:        make(chan struct{}),
				}
				m.regs[identity] = reg
				go m.pump(reg, ch)
			}
		}
		if err != nil {
			m.mu.Unlock()
			m.logger.Warn().Err(err).Str("identity", identity).Msg("live subscription failed")
			if errors.Is(err, constants.ErrAccessDenied) {
				notePermissionIssue(&PermissionError{Path: docPath(identity), Err: err})
			}
			cb(model.DocumentSnapshot{}, false, err)
			return ""
		}
	}

	token := identity + "-" + ulid.Make().String()
	reg.subscribers[token] = cb
	m.mu.Unlock()
	return token
}

// Unsubscribe releases one subscription. When the last subscriber for an
// identity leaves, the underlying live query is killed and the registration
// deleted. Unknown identity/token pairs are a no-op.
func (m *ListenerManager) Unsubscribe(identity, token string) {
	m.mu.Lock()
	reg, ok := m.regs[identity]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, ok := reg.subscribers[token]; !ok {
		m.mu.Unlock()
		return
	}
	delete(reg.subscribers, token)

	var closing *registration
	if len(reg.subscribers) == 0 {
		delete(m.regs, identity)
		closing = reg
	}
	m.mu.Unlock()

	if closing != nil {
		close(closing.done)
		if err := m.conn.Kill(closing.liveID); err != nil {
			m.logger.Warn().Err(err).Str("identity", identity).Msg("kill live query")
		}
	}
}

// UpdateCallback swaps a registered callback in place without touching the
// underlying subscription. Consumers whose closures capture changing state
// use this when the consumer itself is stable. Unknown pairs are a no-op.
func (m *ListenerManager) UpdateCallback(identity, token string, cb DeliveryCallback) {
	m.mu.Lock()
	if reg, ok := m.regs[identity]; ok {
		if _, ok := reg.subscribers[token]; ok {
			reg.subscribers[token] = cb
		}
	}
	m.mu.Unlock()
}

func (m *ListenerManager) pump(reg *registration, ch chan model.Push) {
	for {
		select {
		case <-reg.done:
			return
		case push, ok := <-ch:
			if !ok {
				return
			}
			m.deliver(reg, push)
		}
	}
}

// deliver fans one push out to every current subscriber. The subscriber set
// is copied before iterating so a callback that subscribes or unsubscribes
// cannot corrupt the iteration; a concurrently removed subscriber simply does
// not receive this delivery.
func (m *ListenerManager) deliver(reg *registration, push model.Push) {
	m.mu.Lock()
	callbacks := make([]DeliveryCallback, 0, len(reg.subscribers))
	for _, cb := range reg.subscribers {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	if push.Err != nil {
		if errors.Is(push.Err, constants.ErrAccessDenied) {
			notePermissionIssue(push.Err)
		}
		for _, cb := range callbacks {
			cb(model.DocumentSnapshot{}, false, push.Err)
		}
		return
	}
	for _, cb := range callbacks {
		cb(push.Doc, false, nil)
	}
}
