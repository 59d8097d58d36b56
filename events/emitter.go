// Package events provides an ordered, priority-based event dispatcher.
// Grants emit lifecycle events (token issued, refreshed, revoked, code
// issued) through an Emitter so auditing, metrics, and revocation cascades
// can hook in without coupling the grant engine to any specific consumer.
package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Event names emitted by the grant engine.
const (
	AccessTokenIssued          = "access_token.issued"
	AccessTokenRefreshed       = "access_token.refreshed"
	AccessTokenRevoked         = "access_token.revoked"
	RefreshTokenIssued         = "refresh_token.issued"
	RefreshTokenRevoked        = "refresh_token.revoked"
	AuthorizationCodeIssued    = "authorization_code.issued"
	ClientAuthenticationFailed = "client.authentication_failed"
	UserAuthenticationFailed   = "user.authentication_failed"
	CodeReuseDetected          = "authorization_code.reuse_detected"
	RefreshTokenReuseDetected  = "refresh_token.reuse_detected"
)

// Priority orders listeners for a single event name. Higher priorities run
// first; within a tier, listeners run in registration order.
type Priority int

const (
	PriorityLow    Priority = -100
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 100
)

// Event carries the payload delivered to listeners. A listener may stop
// propagation to prevent lower-priority listeners from running.
type Event struct {
	// Name is the event name the listeners were registered against.
	Name string

	// EmittedAt is when Emit was called.
	EmittedAt time.Time

	// ClientID, UserID, TokenID, and Scopes identify the entities involved.
	// Fields not relevant to a given event are left empty.
	ClientID string
	UserID   string
	TokenID  string
	Scopes   []string

	// Details carries event-specific metadata (grant type, reasons).
	Details map[string]any

	stopped bool
}

// StopPropagation prevents any remaining listeners from receiving the event.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// IsPropagationStopped reports whether a listener halted dispatch.
func (e *Event) IsPropagationStopped() bool {
	return e.stopped
}

// Listener receives events. Errors are not returned: listeners are
// notifications, and a failing listener must not abort token issuance.
type Listener func(ctx context.Context, event *Event)

type registration struct {
	priority Priority
	seq      int
	listener Listener
}

// Emitter dispatches events to registered listeners. The zero value is not
// usable; create one with New. Safe for concurrent use: registration and
// emission may happen from different goroutines.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	seq       int
}

// New creates an empty emitter.
func New() *Emitter {
	return &Emitter{listeners: make(map[string][]registration)}
}

// On registers a listener for the named event at normal priority.
func (em *Emitter) On(name string, listener Listener) {
	em.OnPriority(name, PriorityNormal, listener)
}

// OnPriority registers a listener for the named event at the given priority.
func (em *Emitter) OnPriority(name string, priority Priority, listener Listener) {
	if listener == nil {
		return
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	em.seq++
	regs := append(em.listeners[name], registration{
		priority: priority,
		seq:      em.seq,
		listener: listener,
	})

	// Keep the slice dispatch-ordered: priority descending, then
	// registration order. Sorting on registration keeps Emit allocation-free.
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})

	em.listeners[name] = regs
}

// Emit dispatches the event to all listeners registered for event.Name,
// highest priority first, stopping early if a listener calls
// StopPropagation. Emitting an event nobody listens to is a no-op.
func (em *Emitter) Emit(ctx context.Context, event *Event) {
	if event == nil || event.Name == "" {
		return
	}
	event.EmittedAt = time.Now()

	em.mu.RLock()
	regs := em.listeners[event.Name]
	em.mu.RUnlock()

	for _, reg := range regs {
		reg.listener(ctx, event)
		if event.stopped {
			return
		}
	}
}
