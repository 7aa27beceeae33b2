package executor

import (
	"sync"
)

// LockTable is the per-resource advisory lock set. No two in-flight actions
// may hold snapshots on the same resource simultaneously; acquisition is
// all-or-nothing so a multi-resource action can never deadlock against
// another taking the same resources in a different order.
type LockTable struct {
	mu   sync.Mutex
	held map[string]string // resource -> decision id
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]string)}
}

// Acquire takes every resource for owner, or none of them. It returns false
// (holding nothing) if any resource is already held by a different owner.
func (t *LockTable) Acquire(owner string, resources []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range resources {
		if holder, ok := t.held[r]; ok && holder != owner {
			return false
		}
	}
	for _, r := range resources {
		t.held[r] = owner
	}
	return true
}

// Release drops owner's claim on the resources. Releasing a resource held
// by someone else is a no-op.
func (t *LockTable) Release(owner string, resources []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range resources {
		if t.held[r] == owner {
			delete(t.held, r)
		}
	}
}

// Holder returns the owner of a resource, or "" when unheld.
func (t *LockTable) Holder(resource string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held[resource]
}
