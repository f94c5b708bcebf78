// Package tabs tracks the wallet tabs opened by the broker. Opening a URL
// whose prefix already has a tab focuses that tab instead of creating a new
// one.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// ErrEmptyURL is returned when opening a tab without a URL.
var ErrEmptyURL = errors.New("tabs: empty url")

// Launcher displays url to the user, for example by starting a browser.
type Launcher func(ctx context.Context, url string) error

// Tab is a tab known to the registry.
type Tab struct {
	ID       int       `json:"id"`
	URL      string    `json:"url"`
	Active   bool      `json:"active"`
	OpenedAt time.Time `json:"openedAt"`
	Focused  time.Time `json:"focusedAt"`
}

// Registry is a concurrency-safe set of tabs.
type Registry struct {
	prefix   string
	launcher Launcher
	clock    clock.Clock

	mu     sync.Mutex
	tabs   []*Tab
	nextID int
}

// NewRegistry creates a registry. Tabs whose URL starts with prefix are
// reused by Open. A nil launcher only records tabs.
func NewRegistry(prefix string, launcher Launcher, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Registry{
		prefix:   prefix,
		launcher: launcher,
		clock:    clk,
	}
}

// Open focuses an existing tab under the registry prefix or creates a new
// one for url. It reports whether a new tab was created. The launcher runs
// in both cases so the user sees the wallet.
func (r *Registry) Open(ctx context.Context, url string) (Tab, bool, error) {
	if strings.TrimSpace(url) == "" {
		return Tab{}, false, ErrEmptyURL
	}

	if r.launcher != nil {
		if err := r.launcher(ctx, url); err != nil {
			return Tab{}, false, fmt.Errorf("tabs: launching %s: %w", url, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, t := range r.tabs {
		if r.prefix != "" && strings.HasPrefix(t.URL, r.prefix) {
			r.activate(t, now)
			t.URL = url
			return *t, false, nil
		}
	}

	r.nextID++
	t := &Tab{ID: r.nextID, URL: url, OpenedAt: now}
	r.tabs = append(r.tabs, t)
	r.activate(t, now)
	return *t, true, nil
}

// Close forgets the tab with id. It reports whether the tab existed.
func (r *Registry) Close(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tabs {
		if t.ID == id {
			r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)
			return true
		}
	}
	return false
}

// List returns copies of all tabs in creation order.
func (r *Registry) List() []Tab {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, *t)
	}
	return out
}

// Len returns the number of open tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

func (r *Registry) activate(target *Tab, now time.Time) {
	for _, t := range r.tabs {
		t.Active = t == target
	}
	target.Focused = now
}
