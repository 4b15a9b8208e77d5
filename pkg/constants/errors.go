package constants

import "errors"

// Errors
var (
	ErrUnreachable        = errors.New("remote store unreachable")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrIDInUse            = errors.New("id already in use")
	ErrTimeout            = errors.New("timeout")
	ErrInvalidResponseID  = errors.New("invalid response id")
	ErrNoEndpoint         = errors.New("endpoint not set")
	ErrMethodNotAvailable = errors.New("method not available on this connection")
	ErrNoSubject          = errors.New("token carries no subject")
)
