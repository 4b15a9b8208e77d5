// The [folioboard] package is the client-side synchronization layer of the
// folioboard portfolio dashboard: it keeps one authoritative remote document
// per user in sync with any number of independent local consumers.
//
// # Listener deduplication
//
// No matter how many [FieldSync] hooks a process creates for one identity, the
// [ListenerManager] opens exactly one live subscription against the remote
// store and fans every push out to all of them. The subscription is opened
// lazily on the first subscribe and closed when the last consumer leaves.
//
// # Field and collection hooks
//
// [FieldSync] exposes one named field of the per-user document as reactive
// state with optimistic merge-writes: the local value changes immediately, the
// remote store confirms through the normal push path, and the remote value
// always wins on divergence. [CollectionSync] mirrors an ordered per-user
// sub-collection (the transaction log, chart data, history profiles) with
// direct create/update/delete operations and no optimistic inserts, since new
// rows need a server-assigned id.
//
// # Degradation
//
// A missing endpoint or a failed dial leaves the client in a well-defined
// unreachable state: hooks fall back to the local SQLite cache where a value
// exists and report constants.ErrUnreachable where none does. Access
// denials are additionally recorded in the process-wide permission slot, see
// [PermissionIssue], because a denial is a property of the account rather than
// of any one field.
package folioboard
