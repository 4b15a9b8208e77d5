package folioboard

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/folioboard/folioboard.go/pkg/constants"
)

// Session holds the authenticated identity: the opaque principal token every
// subscription and every stored document is partitioned by. The identity is
// assigned at sign-in and cleared at sign-out; hooks watch the session and
// tear down or rebuild their subscriptions on every change.
type Session struct {
	mu       sync.Mutex
	identity string
	watchers map[int]func(identity string)
	nextID   int
}

func newSession() *Session {
	return &Session{watchers: make(map[int]func(string))}
}

// Identity returns the current identity, or "" while signed out.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SignIn extracts the subject claim from the identity provider's token and
// makes it the current identity. The token is not verified here; verification
// is the provider's and the store's concern, the client merely needs the uid.
func (s *Session) SignIn(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("parse identity token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return constants.ErrNoSubject
	}
	s.SignInAs(sub)
	return nil
}

// SignInAs sets the identity directly, bypassing token parsing.
func (s *Session) SignInAs(uid string) {
	s.setIdentity(uid)
}

// SignOut clears the identity. Watchers observe "" and reset to defaults.
func (s *Session) SignOut() {
	s.setIdentity("")
}

func (s *Session) setIdentity(uid string) {
	s.mu.Lock()
	if s.identity == uid {
		s.mu.Unlock()
		return
	}
	s.identity = uid
	watchers := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(uid)
	}
}

// watch registers fn, invokes it synchronously with the current identity, and
// returns the deregistration func.
func (s *Session) watch(fn func(identity string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	current := s.identity
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}
