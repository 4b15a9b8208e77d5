package model

// DocumentSnapshot is the full decoded remote document for one user. It is
// rebuilt from scratch on every push and never persisted by this package.
type DocumentSnapshot struct {
	// Data maps field names to decoded values.
	Data map[string]any
	// Exists is false when the document has never been written.
	Exists bool
}

// Field returns the named field and whether it is present. A snapshot of a
// document that does not exist has no fields.
func (s DocumentSnapshot) Field(name string) (any, bool) {
	if !s.Exists || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[name]
	return v, ok
}

type Action string

const (
	CreateAction Action = "CREATE"
	UpdateAction Action = "UPDATE"
	DeleteAction Action = "DELETE"
)

// Push is one delivery on a live subscription channel. Document subscriptions
// carry Doc; collection subscriptions carry Rows, the complete ordered set as
// of this change. A push with a non-nil Err carries no data.
type Push struct {
	Action Action
	Doc    DocumentSnapshot
	Rows   []map[string]any
	Err    error
}

// FieldState is the reactive state exposed by a field sync hook.
type FieldState struct {
	Value   any
	Loading bool
	Err     error
}
