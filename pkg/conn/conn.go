package conn

import "github.com/folioboard/folioboard.go/pkg/model"

// Connection is the client's view of the remote document store. The store
// offers merge-writes that patch named fields without touching the rest of the
// document, and live queries that push the full document (or the full ordered
// row set, for collections) on every change.
type Connection interface {
	Connect(url string) (Connection, error)
	Close() error

	// Authenticate presents the identity provider's token to the store.
	Authenticate(token string) error

	// Merge patches the named fields of the document at path, leaving all
	// other fields untouched. The document is created if it does not exist.
	Merge(path string, data map[string]any) error

	// Create appends a new document to the collection at path and returns the
	// stored document, including its server-assigned id.
	Create(path string, data map[string]any) (map[string]any, error)

	Update(path string, data map[string]any) error
	Delete(path string) error

	// Live opens a push subscription on path and returns its live query id.
	// For collections, orderBy names the field the pushed row set is ordered
	// by, descending; it is empty for single-document subscriptions.
	Live(path string, orderBy string) (string, error)

	// LiveNotifications returns the channel pushes for the given live query
	// arrive on. The channel is closed by Kill.
	LiveNotifications(id string) (chan model.Push, error)

	// Kill tears down a live query and closes its notification channel.
	Kill(id string) error
}
