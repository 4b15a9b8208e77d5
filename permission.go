package folioboard

import "sync"

// The permission slot holds the single most recent access denial observed by
// any write or subscription callback in this process. A denial usually means
// the account's access rules are misconfigured, which affects every hook for
// that user, so it is global rather than per-hook state. The UI clears it
// explicitly once surfaced.
var permissionSlot struct {
	mu  sync.Mutex
	err error
}

// PermissionIssue returns the most recent access denial, or nil.
func PermissionIssue() error {
	permissionSlot.mu.Lock()
	defer permissionSlot.mu.Unlock()
	return permissionSlot.err
}

// ClearPermissionIssue empties the slot.
func ClearPermissionIssue() {
	permissionSlot.mu.Lock()
	defer permissionSlot.mu.Unlock()
	permissionSlot.err = nil
}

// notePermissionIssue records a denial. Repeats of the same denial leave the
// slot untouched so the set is idempotent.
func notePermissionIssue(err error) {
	if err == nil {
		return
	}
	permissionSlot.mu.Lock()
	defer permissionSlot.mu.Unlock()
	if permissionSlot.err != nil && permissionSlot.err.Error() == err.Error() {
		return
	}
	permissionSlot.err = err
}
