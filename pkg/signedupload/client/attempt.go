package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a step of one upload attempt
type State string

const (
	StateIdle                State = "idle"
	StateCredentialRequested State = "credential_requested"
	StateCredentialReceived  State = "credential_received"
	StateNormalized          State = "normalized"
	StateUploading           State = "uploading"
	StateCompleted           State = "completed"
	StateFailed              State = "failed"
)

var transitions = map[State][]State{
	StateIdle:                {StateCredentialRequested},
	StateCredentialRequested: {StateCredentialReceived, StateFailed},
	StateCredentialReceived:  {StateNormalized, StateFailed},
	StateNormalized:          {StateUploading, StateFailed},
	StateUploading:           {StateCompleted, StateFailed},
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned for transitions outside the table
var ErrInvalidTransition = errors.New("client: invalid attempt transition")

// Transition is one recorded state change
type Transition struct {
	AttemptID uuid.UUID
	From      State
	To        State
	Err       error
	At        time.Time
}

// Observer sees every transition of an attempt, in order
type Observer func(Transition)

// Attempt tracks one upload from credential request to outcome. A retry is a new Attempt.
type Attempt struct {
	mu       sync.Mutex
	id       uuid.UUID
	state    State
	err      error
	history  []Transition
	observer Observer
	now      func() time.Time
}

// NewAttempt starts an attempt in StateIdle
func NewAttempt(observer Observer) *Attempt {
	return &Attempt{
		id:       uuid.New(),
		state:    StateIdle,
		observer: observer,
		now:      time.Now,
	}
}

func (a *Attempt) ID() uuid.UUID {
	return a.id
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err is the failure cause once the attempt is in StateFailed
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// History returns a copy of the recorded transitions
func (a *Attempt) History() []Transition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Transition, len(a.history))
	copy(out, a.history)
	return out
}

// Advance moves the attempt to a non-failure state
func (a *Attempt) Advance(to State) error {
	if to == StateFailed {
		return fmt.Errorf("%w: use Fail to enter %s", ErrInvalidTransition, to)
	}
	return a.move(to, nil)
}

// Fail moves the attempt to StateFailed with cause
func (a *Attempt) Fail(cause error) error {
	return a.move(StateFailed, cause)
}

func (a *Attempt) move(to State, cause error) error {
	a.mu.Lock()
	from := a.state
	if !CanTransition(from, to) {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	t := Transition{AttemptID: a.id, From: from, To: to, Err: cause, At: a.now()}
	a.state = to
	a.err = cause
	a.history = append(a.history, t)
	observer := a.observer
	a.mu.Unlock()

	if observer != nil {
		observer(t)
	}
	return nil
}
