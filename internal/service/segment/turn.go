// Package segment tracks spoken turns within a recording session and
// assigns stable identifiers to the finalized segments published
// downstream. One turn covers everything a speaker says until the active
// speaker switches or the session stops.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a turn.
type State int

const (
	// StateOpen - the speaker holds the floor, text is still changing.
	StateOpen State = iota
	// StateFinalEmitted - the turn's final segment has been published.
	StateFinalEmitted
	// StateDropped - the turn ended without publishable text.
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinalEmitted:
		return "FINAL_EMITTED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

var (
	ErrFinalAlreadyEmitted = errors.New("final already emitted for this turn")
	ErrTurnClosed          = errors.New("turn is closed")
)

// Turn is one speaker's stretch of a conversation. Thread-safe.
type Turn struct {
	mu        sync.Mutex
	id        string
	seq       int
	speakerID string
	state     State
}

// ID returns the turn's stable segment identifier.
func (t *Turn) ID() string { return t.id }

// Seq returns the turn's position within its conversation, starting at 1.
func (t *Turn) Seq() int { return t.seq }

// SpeakerID returns the speaker holding the turn.
func (t *Turn) SpeakerID() string { return t.speakerID }

// State returns the current lifecycle state.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// EmitFinal records that the turn's final segment is being published.
// A turn publishes at most one final.
func (t *Turn) EmitFinal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateOpen:
		t.state = StateFinalEmitted
		return nil
	case StateFinalEmitted:
		return ErrFinalAlreadyEmitted
	default:
		return ErrTurnClosed
	}
}

// Drop closes an open turn without a final. No-op once a final went out.
func (t *Turn) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateOpen {
		t.state = StateDropped
	}
}

// Tracker hands out turns for one conversation, numbering them in order.
type Tracker struct {
	mu             sync.Mutex
	conversationID string
	seq            int
	current        *Turn
}

// NewTracker creates a tracker for the given conversation.
func NewTracker(conversationID string) *Tracker {
	return &Tracker{conversationID: conversationID}
}

// Open starts a new turn for the speaker. A previous turn still open at
// this point never published a final and is dropped.
func (tr *Tracker) Open(speakerID string) *Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.current != nil {
		tr.current.Drop()
	}
	tr.seq++
	tr.current = &Turn{
		id:        fmt.Sprintf("%s-seg-%d", tr.conversationID, tr.seq),
		seq:       tr.seq,
		speakerID: speakerID,
	}
	return tr.current
}

// Current returns the turn in progress, or nil before the first Open.
func (tr *Tracker) Current() *Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.current
}
