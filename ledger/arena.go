/*
arena.go - Status tracking for optimistic local writes

PURPOSE:
  Every local mutation is applied optimistically under a temporary id and
  becomes visible immediately. The arena records each record's lifecycle
  status and, once the remote acks, the remap from the temporary id to the
  authoritative one. Commit replaces the id through an explicit remap table
  rather than implicit string matching.

TRANSITIONS:
  Optimistic -> Synced      Promote (remote ack, id remapped)
  Optimistic -> Offline     MarkOffline (mutation queued)
  Optimistic -> RolledBack  MarkRolledBack (guard or hard remote error)
  Offline    -> Synced      Promote (replay succeeded)
*/
package ledger

import "sync"

// Arena tracks the sync status of locally-held records, indexed by id.
type Arena struct {
	mu     sync.RWMutex
	status map[string]RecordStatus
	remap  map[string]string // temporary id -> authoritative id
}

func NewArena() *Arena {
	return &Arena{
		status: make(map[string]RecordStatus),
		remap:  make(map[string]string),
	}
}

// Track registers a fresh optimistic record.
func (a *Arena) Track(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[id] = StatusOptimistic
}

// Promote marks a record synced under its authoritative id. When the remote
// assigned a new id, the temporary one is remapped; looking up either id
// afterwards reports the synced status.
func (a *Arena) Promote(tempID, authoritativeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tempID != authoritativeID {
		a.remap[tempID] = authoritativeID
		delete(a.status, tempID)
	}
	a.status[authoritativeID] = StatusSynced
}

// MarkOffline flags a record whose mutation was queued for later replay.
func (a *Arena) MarkOffline(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[id] = StatusOffline
}

// MarkRolledBack flags a record whose optimistic write was discarded.
func (a *Arena) MarkRolledBack(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[id] = StatusRolledBack
}

// Forget drops tracking for a record (e.g. after delete).
func (a *Arena) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.status, id)
	delete(a.remap, id)
}

// Resolve follows the remap table to the authoritative id.
func (a *Arena) Resolve(id string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if mapped, ok := a.remap[id]; ok {
		return mapped
	}
	return id
}

// Status reports a record's lifecycle status, following remaps.
// Unknown ids report StatusSynced: anything the arena never tracked came
// from the server.
func (a *Arena) Status(id string) RecordStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if mapped, ok := a.remap[id]; ok {
		id = mapped
	}
	if st, ok := a.status[id]; ok {
		return st
	}
	return StatusSynced
}
