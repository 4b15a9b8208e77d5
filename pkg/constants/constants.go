package constants

import "time"

const (
	// RequestIDLength is the size of the id sent on a WS request.
	RequestIDLength = 16
	// CloseMessageCode identifies the message id for a close request.
	CloseMessageCode = 1000
	// DefaultTimeout applies to every RPC round trip.
	DefaultTimeout = 30 * time.Second

	// UpdatedAtField is stamped into every merge-write payload.
	UpdatedAtField = "updatedAt"
	// CreatedAtField is stamped into every created row.
	CreatedAtField = "createdAt"
)
