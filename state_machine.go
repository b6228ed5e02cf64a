package auth

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	textCodeInvalidTransition = "INVALID_ATTEMPT_TRANSITION"
	textCodeTerminalState     = "TERMINAL_ATTEMPT_STATE"
)

// ErrInvalidAttemptTransition is returned when a requested state change is not allowed.
var ErrInvalidAttemptTransition = goerrors.New("invalid attempt state transition", goerrors.CategoryInternal).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeInternal)

// ErrTerminalAttempt is returned when attempting to move away from issued, rejected or failed.
var ErrTerminalAttempt = goerrors.New("attempt state is terminal", goerrors.CategoryInternal).
	WithTextCode(textCodeTerminalState).
	WithCode(goerrors.CodeInternal)

// AttemptState is the lifecycle state of one sign up or sign in attempt
type AttemptState string

const (
	AttemptIdle           AttemptState = "idle"
	AttemptSubmitted      AttemptState = "submitted"
	AttemptValidating     AttemptState = "validating"
	AttemptValidated      AttemptState = "validated"
	AttemptRejected       AttemptState = "rejected"
	AttemptCreating       AttemptState = "creating"
	AttemptAuthenticating AttemptState = "authenticating"
	AttemptIssued         AttemptState = "issued"
	AttemptFailed         AttemptState = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s AttemptState) IsTerminal() bool {
	switch s {
	case AttemptIssued, AttemptRejected, AttemptFailed:
		return true
	default:
		return false
	}
}

// AttemptKind identifies the operation an attempt belongs to
type AttemptKind string

const (
	AttemptSignUp AttemptKind = "sign_up"
	AttemptSignIn AttemptKind = "sign_in"
	AttemptSocial AttemptKind = "social"
)

// AttemptTransition is one recorded step
type AttemptTransition struct {
	From AttemptState
	To   AttemptState
	At   time.Time
}

// Attempt tracks a single submission through validation to its outcome
type Attempt struct {
	ID        string
	Kind      AttemptKind
	Email     string
	UserID    string
	StartedAt time.Time

	mu      sync.Mutex
	state   AttemptState
	err     error
	history []AttemptTransition
}

// State returns the current state
func (a *Attempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err is the error recorded when the attempt was rejected or failed
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// History returns a copy of the recorded transitions
func (a *Attempt) History() []AttemptTransition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AttemptTransition, len(a.history))
	copy(out, a.history)
	return out
}

// AttemptHook runs after every successful transition.
type AttemptHook func(ctx context.Context, attempt *Attempt, tr AttemptTransition)

// AttemptMachineOption customizes state machine construction.
type AttemptMachineOption func(*AttemptMachine)

// WithAttemptClock injects a custom clock (useful for tests).
func WithAttemptClock(clock func() time.Time) AttemptMachineOption {
	return func(m *AttemptMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithAttemptHook adds a hook executed after each transition.
func WithAttemptHook(h AttemptHook) AttemptMachineOption {
	return func(m *AttemptMachine) {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
	}
}

// AttemptMachine owns the transition graph shared by every attempt.
type AttemptMachine struct {
	transitions map[AttemptState]map[AttemptState]struct{}
	now         func() time.Time
	hooks       []AttemptHook
}

// NewAttemptMachine returns the default transition graph:
//
//	idle -> submitted -> validating -> validated | rejected
//	validated -> creating | authenticating
//	creating | authenticating -> issued | rejected | failed
func NewAttemptMachine(opts ...AttemptMachineOption) *AttemptMachine {
	m := &AttemptMachine{
		transitions: map[AttemptState]map[AttemptState]struct{}{
			AttemptIdle: {
				AttemptSubmitted: {},
			},
			AttemptSubmitted: {
				AttemptValidating: {},
			},
			AttemptValidating: {
				AttemptValidated: {},
				AttemptRejected:  {},
			},
			AttemptValidated: {
				AttemptCreating:       {},
				AttemptAuthenticating: {},
			},
			AttemptCreating: {
				AttemptIssued:   {},
				AttemptRejected: {},
				AttemptFailed:   {},
			},
			AttemptAuthenticating: {
				AttemptIssued:   {},
				AttemptRejected: {},
				AttemptFailed:   {},
			},
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Start creates an idle attempt
func (m *AttemptMachine) Start(kind AttemptKind, email string) *Attempt {
	return &Attempt{
		ID:        uuid.NewString(),
		Kind:      kind,
		Email:     NormalizeEmail(email),
		StartedAt: m.now(),
		state:     AttemptIdle,
	}
}

// CanTransition reports whether from -> to is part of the graph
func (m *AttemptMachine) CanTransition(from, to AttemptState) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves the attempt to target
func (m *AttemptMachine) Transition(ctx context.Context, attempt *Attempt, target AttemptState) error {
	return m.transition(ctx, attempt, target, nil)
}

// Reject moves the attempt to rejected and records cause
func (m *AttemptMachine) Reject(ctx context.Context, attempt *Attempt, cause error) error {
	return m.transition(ctx, attempt, AttemptRejected, cause)
}

// Fail moves the attempt to failed and records cause
func (m *AttemptMachine) Fail(ctx context.Context, attempt *Attempt, cause error) error {
	return m.transition(ctx, attempt, AttemptFailed, cause)
}

// Advance walks the attempt through each state in order, stopping at the
// first illegal step.
func (m *AttemptMachine) Advance(ctx context.Context, attempt *Attempt, states ...AttemptState) error {
	for _, s := range states {
		if err := m.Transition(ctx, attempt, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *AttemptMachine) transition(ctx context.Context, attempt *Attempt, target AttemptState, cause error) error {
	if attempt == nil {
		return ErrInvalidAttemptTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "attempt is nil",
		})
	}

	attempt.mu.Lock()
	from := attempt.state

	if from.IsTerminal() {
		attempt.mu.Unlock()
		return ErrTerminalAttempt.Clone().WithMetadata(map[string]any{
			"attempt": attempt.ID,
			"from":    from,
			"to":      target,
		})
	}

	if !m.CanTransition(from, target) {
		attempt.mu.Unlock()
		return ErrInvalidAttemptTransition.Clone().WithMetadata(map[string]any{
			"attempt": attempt.ID,
			"from":    from,
			"to":      target,
		})
	}

	tr := AttemptTransition{From: from, To: target, At: m.now()}
	attempt.state = target
	attempt.history = append(attempt.history, tr)
	if cause != nil {
		attempt.err = cause
	}
	attempt.mu.Unlock()

	for _, hook := range m.hooks {
		hook(ctx, attempt, tr)
	}

	return nil
}
