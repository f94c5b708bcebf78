// Package pending tracks in-flight calls keyed by correlation id.
//
// A Call settles exactly once. Resolve, Reject and Cancel race through a
// compare-and-swap on the call state; the first writer wins and every later
// writer is a no-op that reports false.
package pending

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrz1836/sigil-bridge/internal/envelope"
)

// State is the settlement state of a Call.
type State int32

// Settlement states.
const (
	StatePending State = iota
	StateSettled
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSettled:
		return "settled"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned by Result when Cancel won without a cause.
var ErrCancelled = errors.New("pending: call cancelled")

// Call is one outstanding operation awaiting its reply.
type Call struct {
	CorrelationID string
	Kind          envelope.Kind
	CreatedAt     time.Time

	state atomic.Int32
	done  chan struct{}

	// reply and err are written once by the winning writer before done is
	// closed, and only read after done is closed.
	reply envelope.Envelope
	err   error
}

// NewCall returns a pending call.
func NewCall(id string, kind envelope.Kind, createdAt time.Time) *Call {
	return &Call{
		CorrelationID: id,
		Kind:          kind,
		CreatedAt:     createdAt,
		done:          make(chan struct{}),
	}
}

func (c *Call) transition(to State) bool {
	return c.state.CompareAndSwap(int32(StatePending), int32(to))
}

// Resolve settles the call with a reply.
func (c *Call) Resolve(reply envelope.Envelope) bool {
	if !c.transition(StateSettled) {
		return false
	}
	c.reply = reply
	close(c.done)
	return true
}

// Reject settles the call with an error.
func (c *Call) Reject(err error) bool {
	if !c.transition(StateSettled) {
		return false
	}
	c.err = err
	close(c.done)
	return true
}

// Cancel abandons the call, used on timeout or caller cancellation.
func (c *Call) Cancel(cause error) bool {
	if !c.transition(StateCancelled) {
		return false
	}
	if cause == nil {
		cause = ErrCancelled
	}
	c.err = cause
	close(c.done)
	return true
}

// State returns the current state.
func (c *Call) State() State {
	return State(c.state.Load())
}

// Done is closed once the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result blocks until the call settles and returns its outcome.
func (c *Call) Result() (envelope.Envelope, error) {
	<-c.done
	return c.reply, c.err
}

// Table indexes calls by correlation id.
type Table struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{calls: make(map[string]*Call)}
}

// Add registers c. It returns false if the id is already registered.
func (t *Table) Add(c *Call) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.calls[c.CorrelationID]; ok {
		return false
	}
	t.calls[c.CorrelationID] = c
	return true
}

// Lookup returns the call for id without removing it.
func (t *Table) Lookup(id string) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	return c, ok
}

// Take removes and returns the call for id.
func (t *Table) Take(id string) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return c, ok
}

// Remove drops id if it still maps to c.
func (t *Table) Remove(c *Call) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.calls[c.CorrelationID]; ok && cur == c {
		delete(t.calls, c.CorrelationID)
	}
}

// Len returns the number of calls still registered.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// CancelAll cancels and removes every registered call.
func (t *Table) CancelAll(cause error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[string]*Call)
	t.mu.Unlock()

	n := 0
	for _, c := range calls {
		if c.Cancel(cause) {
			n++
		}
	}
	return n
}
