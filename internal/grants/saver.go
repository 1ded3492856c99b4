package grants

import (
	"sync"
	"time"

	"github.com/voyagehq/voyage/internal/shared"
)

// SaveState tracks the lifecycle of one save operation on a scope key.
type SaveState int

const (
	// StateIdle means no save is running for the key.
	StateIdle SaveState = iota
	// StateSaving means a save was submitted and has not resolved.
	StateSaving
	// StateCommitted means the last save succeeded; the confirmation message
	// stays visible for the display window, then the key returns to idle.
	StateCommitted
	// StateFailed means the last save failed; the error message stays visible
	// for the display window, then the key returns to idle.
	StateFailed
)

// SaveStatus is the observable state for one scope key.
type SaveStatus struct {
	State   SaveState
	Message string
}

// SaveTracker serializes saves per scope key: a second save for a key that is
// still Saving is rejected rather than queued. Terminal states auto-return to
// Idle after the display window.
type SaveTracker struct {
	mu     sync.Mutex
	states map[string]SaveStatus
	timers map[string]*time.Timer
	window time.Duration
}

// NewSaveTracker constructs a tracker with the given display window.
func NewSaveTracker(window time.Duration) *SaveTracker {
	return &SaveTracker{
		states: make(map[string]SaveStatus),
		timers: make(map[string]*time.Timer),
		window: window,
	}
}

// Begin transitions the key to Saving. A key already Saving rejects with
// ErrSaveInProgress; Committed and Failed accept a new save immediately, the
// display window notwithstanding.
func (t *SaveTracker) Begin(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[key].State == StateSaving {
		return shared.ErrSaveInProgress
	}
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.states[key] = SaveStatus{State: StateSaving}
	return nil
}

// Finish resolves the in-flight save for the key. A nil error lands in
// Committed carrying the store's confirmation message; otherwise Failed with
// the error text.
func (t *SaveTracker) Finish(key string, err error, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[key].State != StateSaving {
		return
	}
	if err != nil {
		t.states[key] = SaveStatus{State: StateFailed, Message: shared.UserSafeMessage(err)}
	} else {
		t.states[key] = SaveStatus{State: StateCommitted, Message: message}
	}
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(t.window, func() {
		t.reset(key)
	})
}

// Status reports the current state for a key.
func (t *SaveTracker) Status(key string) SaveStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[key]
}

func (t *SaveTracker) reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[key].State == StateSaving {
		return
	}
	delete(t.states, key)
	delete(t.timers, key)
}
