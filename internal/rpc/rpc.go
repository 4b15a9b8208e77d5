package rpc

import (
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/folioboard/folioboard.go/pkg/constants"
)

// CodeAccessDenied is the RPC error code the store returns when the
// authenticated principal lacks permission on the requested path.
const CodeAccessDenied int64 = -32403

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message,omitempty"`
}

func (r *RPCError) Error() string {
	return r.Message
}

// Err maps the RPC error onto the client error taxonomy. Access denials are
// wrapped around the ErrAccessDenied sentinel so callers can errors.Is them;
// everything else is assumed transient and returned as is.
func (r *RPCError) Err() error {
	if r == nil {
		return nil
	}
	if r.Code == CodeAccessDenied {
		return fmt.Errorf("%w: %s", constants.ErrAccessDenied, r.Message)
	}
	return r
}

// RPCRequest represents an outgoing JSON-RPC request
type RPCRequest struct {
	ID     string `json:"id"`
	Method string `json:"method,omitempty"`
	Params []any  `json:"params,omitempty"`
}

// RPCResponse represents an incoming JSON-RPC response
type RPCResponse struct {
	ID     string    `json:"id"`
	Error  *RPCError `json:"error,omitempty"`
	Result any       `json:"result,omitempty"`
}

// LivePayload is the body of a push message: a response with no request id,
// addressed to a live query instead.
type LivePayload struct {
	ID     string           `json:"id"`
	Action string           `json:"action"`
	Exists bool             `json:"exists"`
	Result map[string]any   `json:"result,omitempty"`
	Rows   []map[string]any `json:"rows,omitempty"`
}

// LiveMessage is a push message as it appears on the wire.
type LiveMessage struct {
	Result LivePayload `json:"result"`
	Error  *RPCError   `json:"error,omitempty"`
}

// RawResponse wraps undecoded message bytes and answers cheap questions about
// them without a full unmarshal.
type RawResponse struct {
	Data []byte

	id        string
	decodedID bool
}

// ResolveID extracts the request id, or "" when the message carries none
// (which makes it a live push rather than a response).
func (res *RawResponse) ResolveID() string {
	if res.decodedID {
		return res.id
	}
	id, err := jsonparser.GetString(res.Data, "id")
	if err != nil {
		id = ""
	}
	res.id = id
	res.decodedID = true
	return res.id
}

// IsLive reports whether the message is a live push.
func (res *RawResponse) IsLive() bool {
	return res.ResolveID() == ""
}
