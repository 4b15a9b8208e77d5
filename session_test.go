package folioboard

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioboard/folioboard.go/pkg/constants"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestSessionSignInExtractsSubject(t *testing.T) {
	s := newSession()
	token := signedToken(t, jwt.MapClaims{"sub": "alice", "email": "alice@example.com"})

	require.NoError(t, s.SignIn(token))
	assert.Equal(t, "alice", s.Identity())
}

func TestSessionSignInRejectsBadTokens(t *testing.T) {
	s := newSession()

	assert.Error(t, s.SignIn("not-a-jwt"))
	assert.ErrorIs(t, s.SignIn(signedToken(t, jwt.MapClaims{"email": "x@example.com"})), constants.ErrNoSubject)
	assert.Empty(t, s.Identity())
}

func TestSessionWatchers(t *testing.T) {
	s := newSession()

	var seen []string
	unwatch := s.watch(func(id string) { seen = append(seen, id) })
	assert.Equal(t, []string{""}, seen, "watcher fires immediately with the current identity")

	s.SignInAs("alice")
	s.SignInAs("alice") // no transition, no callback
	s.SignOut()
	assert.Equal(t, []string{"", "alice", ""}, seen)

	unwatch()
	s.SignInAs("bob")
	assert.Equal(t, []string{"", "alice", ""}, seen, "deregistered watcher stays silent")
}
