package page

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoElement is returned when a click selector matches nothing.
var ErrNoElement = errors.New("page: no element matches selector")

// ClickEvent is an activation event bubbling from Target to the document.
type ClickEvent struct {
	Target *goquery.Selection

	mu        sync.Mutex
	prevented bool
}

// PreventDefault suppresses the default navigation.
func (e *ClickEvent) PreventDefault() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevented = true
}

// DefaultPrevented reports whether a listener suppressed navigation.
func (e *ClickEvent) DefaultPrevented() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prevented
}

// Anchor returns the nearest <a href> at or above the target.
func (e *ClickEvent) Anchor() (*goquery.Selection, bool) {
	a := e.Target.Closest("a[href]")
	return a, a.Length() > 0
}

// Href returns the raw href of the nearest anchor, or "".
func (e *ClickEvent) Href() string {
	a, ok := e.Anchor()
	if !ok {
		return ""
	}
	href, _ := a.Attr("href")
	return href
}

// ClickListener observes click events at the document level.
type ClickListener func(*ClickEvent)

// Anchor is a hyperlink found in a document.
type Anchor struct {
	Href string
	Text string
}

// Document is a parsed HTML document that dispatches click events.
type Document struct {
	doc *goquery.Document

	mu          sync.Mutex
	listeners   map[uint64]ClickListener
	order       []uint64
	nextID      uint64
	navigations []string
}

// EmptyDocument returns a document with an empty body.
func EmptyDocument() *Document {
	d, _ := ParseDocument(strings.NewReader("<html><body></body></html>"))
	return d
}

// ParseDocument parses HTML from r.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse document: %w", err)
	}
	return NewDocument(root), nil
}

// NewDocument wraps an already parsed node tree.
func NewDocument(root *html.Node) *Document {
	return &Document{
		doc:       goquery.NewDocumentFromNode(root),
		listeners: make(map[uint64]ClickListener),
	}
}

// Find runs a selector over the document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Anchors lists every <a href> in document order.
func (d *Document) Anchors() []Anchor {
	var out []Anchor
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, Anchor{
			Href: href,
			Text: strings.TrimSpace(s.Text()),
		})
	})
	return out
}

// AddClickListener registers l and returns a function that removes it.
func (d *Document) AddClickListener(l ClickListener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners[id] = l
	d.order = append(d.order, id)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
		for i, v := range d.order {
			if v == id {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
}

// Click dispatches a click on the first element matching selector. If no
// listener prevents the default and the target sits inside an anchor, the
// navigation is recorded.
func (d *Document) Click(selector string) (*ClickEvent, error) {
	target := d.doc.Find(selector).First()
	if target.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return d.ClickSelection(target), nil
}

// ClickSelection dispatches a click on target.
func (d *Document) ClickSelection(target *goquery.Selection) *ClickEvent {
	ev := &ClickEvent{Target: target}

	d.mu.Lock()
	ls := make([]ClickListener, 0, len(d.order))
	for _, id := range d.order {
		ls = append(ls, d.listeners[id])
	}
	d.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}

	if !ev.DefaultPrevented() {
		if href := ev.Href(); href != "" {
			d.mu.Lock()
			d.navigations = append(d.navigations, href)
			d.mu.Unlock()
		}
	}
	return ev
}

// Navigations returns the hrefs followed by unprevented clicks.
func (d *Document) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.navigations))
	copy(out, d.navigations)
	return out
}
