// Package page models the web page side of the bridge: a window with a
// same-window postMessage channel, nested frames, and a document whose anchor
// clicks can be observed and suppressed.
package page

import (
	"errors"
	"sync"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/mrz1836/sigil-bridge/internal/envelope"
)

// ErrWindowClosed is returned when posting to a stopped window.
var ErrWindowClosed = errors.New("page: window closed")

// Event is a message delivered to window listeners.
type Event struct {
	// Data is a private copy of the posted envelope.
	Data envelope.Envelope

	// Source is the window that posted the message. It is nil for events
	// dispatched by page script without a window reference.
	Source *Window

	// Origin is the origin of the posting window.
	Origin string
}

// Listener receives window message events. Listeners run sequentially on
// the window's event loop and must not block.
type Listener func(Event)

// Window is a page context with its own message channel and event loop.
type Window struct {
	origin string
	name   string
	parent *Window

	events *queue.ConcurrentQueue

	mu        sync.RWMutex
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64
	doc       *Document

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewWindow returns a top-level window for origin. Call Start before posting.
func NewWindow(origin string) *Window {
	return &Window{
		origin:    origin,
		name:      "top",
		events:    queue.NewConcurrentQueue(16),
		listeners: make(map[uint64]Listener),
		doc:       EmptyDocument(),
		quit:      make(chan struct{}),
	}
}

// Frame creates a nested frame window whose parent is w.
func (w *Window) Frame(name, origin string) *Window {
	f := NewWindow(origin)
	f.name = name
	f.parent = w
	return f
}

// Origin returns the window's origin.
func (w *Window) Origin() string {
	return w.origin
}

// Name returns "top" for top-level windows or the frame name.
func (w *Window) Name() string {
	return w.name
}

// Parent returns the embedding window, or nil for a top-level window.
func (w *Window) Parent() *Window {
	return w.parent
}

// Document returns the window's document.
func (w *Window) Document() *Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.doc
}

// SetDocument replaces the window's document.
func (w *Window) SetDocument(d *Document) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.doc = d
}

// Start launches the event loop.
func (w *Window) Start() {
	w.startOnce.Do(func() {
		w.events.Start()
		w.wg.Add(1)
		go w.loop()
	})
}

// Stop terminates the event loop. Queued events not yet delivered are dropped.
func (w *Window) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.wg.Wait()
		w.events.Stop()
	})
}

// AddListener registers l and returns a function that removes it.
func (w *Window) AddListener(l Listener) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextID++
	id := w.nextID
	w.listeners[id] = l
	w.order = append(w.order, id)

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
		for i, v := range w.order {
			if v == id {
				w.order = append(w.order[:i], w.order[i+1:]...)
				break
			}
		}
	}
}

// PostMessage broadcasts msg on the window's own channel. Every listener of
// the window receives it, including the poster.
func (w *Window) PostMessage(msg envelope.Envelope) error {
	return w.Dispatch(Event{Data: msg, Source: w, Origin: w.origin})
}

// PostToParent delivers msg to the parent window's listeners with this frame
// as the event source.
func (w *Window) PostToParent(msg envelope.Envelope) error {
	if w.parent == nil {
		return w.PostMessage(msg)
	}
	return w.parent.Dispatch(Event{Data: msg, Source: w, Origin: w.origin})
}

// Dispatch enqueues ev as-is. Page script can use it to fabricate events with
// an arbitrary source and origin.
func (w *Window) Dispatch(ev Event) error {
	ev.Data = ev.Data.Clone()

	select {
	case <-w.quit:
		return ErrWindowClosed
	default:
	}

	select {
	case w.events.ChanIn() <- ev:
		return nil
	case <-w.quit:
		return ErrWindowClosed
	}
}

func (w *Window) loop() {
	defer w.wg.Done()

	for {
		select {
		case item, ok := <-w.events.ChanOut():
			if !ok {
				return
			}
			ev, ok := item.(Event)
			if !ok {
				continue
			}
			w.deliver(ev)

		case <-w.quit:
			return
		}
	}
}

func (w *Window) deliver(ev Event) {
	w.mu.RLock()
	ls := make([]Listener, 0, len(w.order))
	for _, id := range w.order {
		ls = append(ls, w.listeners[id])
	}
	w.mu.RUnlock()

	for _, l := range ls {
		// Each listener gets its own copy of the payload.
		e := ev
		e.Data = ev.Data.Clone()
		safeCall(l, e)
	}
}

func safeCall(l Listener, ev Event) {
	defer func() { _ = recover() }()
	l(ev)
}
