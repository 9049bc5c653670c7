package storage

import (
	"fmt"
	"sync"

	"resourcehub/internal/server/apperr"
)

// StagedState is the lifecycle state of a staged file.
type StagedState string

const (
	StagedCreated   StagedState = "created"
	StagedRead      StagedState = "read"
	StagedPromoting StagedState = "promoting"
	StagedPromoted  StagedState = "promoted"
	StagedDeleting  StagedState = "deleting"
	StagedDeleted   StagedState = "deleted"
)

// allowedTransitions defines the legal state changes.
//
//	created   -> read, promoting, deleting, deleted
//	read      -> read, promoting, deleting, deleted
//	promoting -> promoted, created (aborted)
//	promoted  -> deleting, deleted
//	deleting  -> deleting, deleted
//
// Reading a promoted file leaves it promoted, so it can never be promoted again.
// A file being promoted cannot be deleted and a file being deleted cannot be promoted.
var allowedTransitions = map[StagedState][]StagedState{
	StagedCreated:   {StagedRead, StagedPromoting, StagedDeleting, StagedDeleted},
	StagedRead:      {StagedRead, StagedPromoting, StagedDeleting, StagedDeleted},
	StagedPromoting: {StagedPromoted, StagedCreated},
	StagedPromoted:  {StagedDeleting, StagedDeleted},
	StagedDeleting:  {StagedDeleting, StagedDeleted},
}

func canTransition(from, to StagedState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StagedLedger tracks staged files in memory so that each one is promoted
// at most once. Files the ledger has never seen (for example after a
// restart) start in the created state.
type StagedLedger struct {
	mu     sync.Mutex
	states map[string]StagedState
}

// NewStagedLedger creates an empty ledger.
func NewStagedLedger() *StagedLedger {
	return &StagedLedger{states: make(map[string]StagedState)}
}

// Track records a freshly produced staged file.
func (l *StagedLedger) Track(ref StagedRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[ref.path] = StagedCreated
}

// State returns the current state of a staged file.
func (l *StagedLedger) State(ref StagedRef) StagedState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked(ref.path)
}

func (l *StagedLedger) stateLocked(path string) StagedState {
	if st, ok := l.states[path]; ok {
		return st
	}
	return StagedCreated
}

func (l *StagedLedger) transition(ref StagedRef, to StagedState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.stateLocked(ref.path)
	if !canTransition(from, to) {
		return apperr.Conflict(fmt.Sprintf("staged file cannot move from %s to %s", from, to))
	}
	if to == StagedDeleted {
		delete(l.states, ref.path)
		return nil
	}
	l.states[ref.path] = to
	return nil
}

// MarkRead records a download of the staged file.
func (l *StagedLedger) MarkRead(ref StagedRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch from := l.stateLocked(ref.path); from {
	case StagedPromoted, StagedPromoting:
		return nil
	default:
		if !canTransition(from, StagedRead) {
			return apperr.Conflict(fmt.Sprintf("staged file cannot be read from %s", from))
		}
	}
	l.states[ref.path] = StagedRead
	return nil
}

// BeginPromotion claims the staged file for promotion. A second claim,
// concurrent or after a completed promotion, fails with a conflict.
func (l *StagedLedger) BeginPromotion(ref StagedRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch from := l.stateLocked(ref.path); from {
	case StagedPromoting:
		return apperr.Conflict("staged file is already being promoted")
	case StagedPromoted:
		return apperr.Conflict("staged file has already been promoted")
	case StagedDeleting:
		return apperr.Conflict("staged file is being removed")
	default:
		if !canTransition(from, StagedPromoting) {
			return apperr.Conflict(fmt.Sprintf("staged file cannot be promoted from %s", from))
		}
	}
	l.states[ref.path] = StagedPromoting
	return nil
}

// CompletePromotion marks a claimed staged file as promoted.
func (l *StagedLedger) CompletePromotion(ref StagedRef) error {
	return l.transition(ref, StagedPromoted)
}

// AbortPromotion releases a claim after a failed promotion so it can be retried.
func (l *StagedLedger) AbortPromotion(ref StagedRef) error {
	return l.transition(ref, StagedCreated)
}

// BeginDelete claims the staged file for removal. It fails with a conflict
// while a promotion is in flight and, once it succeeds, blocks new promotions
// until CompleteDelete is called.
func (l *StagedLedger) BeginDelete(ref StagedRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.stateLocked(ref.path)
	if from == StagedPromoting {
		return apperr.Conflict("staged file is being promoted")
	}
	if !canTransition(from, StagedDeleting) {
		return apperr.Conflict(fmt.Sprintf("staged file cannot be removed from %s", from))
	}
	l.states[ref.path] = StagedDeleting
	return nil
}

// CompleteDelete drops a claimed file from the ledger after the removal
// attempt, whether or not the bytes were actually removed.
func (l *StagedLedger) CompleteDelete(ref StagedRef) error {
	return l.transition(ref, StagedDeleted)
}

// Len returns the number of tracked staged files.
func (l *StagedLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}
