package page_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/page"
)

const waitFor = 2 * time.Second

func startWindow(t *testing.T, origin string) *page.Window {
	t.Helper()
	w := page.NewWindow(origin)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func recv(t *testing.T, ch <-chan page.Event) page.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return page.Event{}
	}
}

func TestWindow_PostMessageReachesAllListeners(t *testing.T) {
	t.Parallel()
	w := startWindow(t, "https://shop.example")

	a := make(chan page.Event, 1)
	b := make(chan page.Event, 1)
	w.AddListener(func(ev page.Event) { a <- ev })
	w.AddListener(func(ev page.Event) { b <- ev })

	msg := envelope.Envelope{Kind: envelope.KindGetConfig, CorrelationID: "1", Source: envelope.SourcePage}
	require.NoError(t, w.PostMessage(msg))

	for _, ch := range []chan page.Event{a, b} {
		ev := recv(t, ch)
		assert.Same(t, w, ev.Source)
		assert.Equal(t, "https://shop.example", ev.Origin)
		assert.Equal(t, msg.Kind, ev.Data.Kind)
	}
}

func TestWindow_DeliversInOrder(t *testing.T) {
	t.Parallel()
	w := startWindow(t, "https://shop.example")

	got := make(chan string, 10)
	w.AddListener(func(ev page.Event) { got <- ev.Data.CorrelationID })

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, w.PostMessage(envelope.Envelope{Kind: envelope.KindConnect, CorrelationID: id}))
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		select {
		case id := <-got:
			assert.Equal(t, want, id)
		case <-time.After(waitFor):
			t.Fatal("timed out")
		}
	}
}

func TestWindow_RemoveListener(t *testing.T) {
	t.Parallel()
	w := startWindow(t, "https://shop.example")

	removed := make(chan page.Event, 1)
	kept := make(chan page.Event, 1)
	remove := w.AddListener(func(ev page.Event) { removed <- ev })
	w.AddListener(func(ev page.Event) { kept <- ev })
	remove()

	require.NoError(t, w.PostMessage(envelope.Envelope{Kind: envelope.KindConnect}))
	recv(t, kept)
	assert.Empty(t, removed)
}

func TestWindow_ListenerPanicDoesNotStopLoop(t *testing.T) {
	t.Parallel()
	w := startWindow(t, "https://shop.example")

	got := make(chan page.Event, 2)
	w.AddListener(func(page.Event) { panic("boom") })
	w.AddListener(func(ev page.Event) { got <- ev })

	require.NoError(t, w.PostMessage(envelope.Envelope{Kind: envelope.KindConnect}))
	require.NoError(t, w.PostMessage(envelope.Envelope{Kind: envelope.KindGetAddress}))
	assert.Equal(t, envelope.KindConnect, recv(t, got).Data.Kind)
	assert.Equal(t, envelope.KindGetAddress, recv(t, got).Data.Kind)
}

func TestWindow_ListenersGetPrivateCopies(t *testing.T) {
	t.Parallel()
	w := startWindow(t, "https://shop.example")

	second := make(chan page.Event, 1)
	w.AddListener(func(ev page.Event) { ev.Data.Payload[0] = 'X' })
	w.AddListener(func(ev page.Event) { second <- ev })

	require.NoError(t, w.PostMessage(envelope.Envelope{Kind: envelope.KindConnect, Payload: []byte(`{}`)}))
	assert.Equal(t, "{}", string(recv(t, second).Data.Payload))
}

func TestWindow_FramePostsToParent(t *testing.T) {
	t.Parallel()
	top := startWindow(t, "https://shop.example")
	frame := top.Frame("ads", "https://ads.example")

	got := make(chan page.Event, 1)
	top.AddListener(func(ev page.Event) { got <- ev })

	require.NoError(t, frame.PostToParent(envelope.Envelope{Kind: envelope.KindConnect}))
	ev := recv(t, got)
	assert.Same(t, frame, ev.Source)
	assert.NotSame(t, top, ev.Source)
	assert.Equal(t, "https://ads.example", ev.Origin)
	assert.Same(t, top, frame.Parent())
	assert.Equal(t, "ads", frame.Name())
	assert.Equal(t, "top", top.Name())
}

func TestWindow_PostAfterStop(t *testing.T) {
	t.Parallel()
	w := page.NewWindow("https://shop.example")
	w.Start()
	w.Stop()
	w.Stop()

	err := w.PostMessage(envelope.Envelope{Kind: envelope.KindConnect})
	require.ErrorIs(t, err, page.ErrWindowClosed)
}

const linksHTML = `<html><body>
<a id="btc" href="web+bitcoin:1BoatSLRHtKNngkdXEeobR76b53LETtpyT?amount=0.1"><span id="inner">Pay</span></a>
<a id="plain" href="https://example.com/docs">Docs</a>
<div id="loose">No link</div>
</body></html>`

func TestDocument_ClickBubblesToAnchor(t *testing.T) {
	t.Parallel()
	doc, err := page.ParseDocument(strings.NewReader(linksHTML))
	require.NoError(t, err)

	var hrefs []string
	doc.AddClickListener(func(ev *page.ClickEvent) { hrefs = append(hrefs, ev.Href()) })

	_, err = doc.Click("#inner")
	require.NoError(t, err)
	_, err = doc.Click("#loose")
	require.NoError(t, err)

	assert.Equal(t, []string{"web+bitcoin:1BoatSLRHtKNngkdXEeobR76b53LETtpyT?amount=0.1", ""}, hrefs)
}

func TestDocument_PreventDefaultSuppressesNavigation(t *testing.T) {
	t.Parallel()
	doc, err := page.ParseDocument(strings.NewReader(linksHTML))
	require.NoError(t, err)

	doc.AddClickListener(func(ev *page.ClickEvent) {
		if strings.HasPrefix(ev.Href(), "web+") {
			ev.PreventDefault()
		}
	})

	ev, err := doc.Click("#btc")
	require.NoError(t, err)
	assert.True(t, ev.DefaultPrevented())

	ev, err = doc.Click("#plain")
	require.NoError(t, err)
	assert.False(t, ev.DefaultPrevented())

	assert.Equal(t, []string{"https://example.com/docs"}, doc.Navigations())
}

func TestDocument_ClickMissingElement(t *testing.T) {
	t.Parallel()
	doc := page.EmptyDocument()
	_, err := doc.Click("#nothing")
	require.ErrorIs(t, err, page.ErrNoElement)
}

func TestDocument_Anchors(t *testing.T) {
	t.Parallel()
	doc, err := page.ParseDocument(strings.NewReader(linksHTML))
	require.NoError(t, err)

	anchors := doc.Anchors()
	require.Len(t, anchors, 2)
	assert.Equal(t, "Pay", anchors[0].Text)
	assert.Equal(t, "https://example.com/docs", anchors[1].Href)
}

func TestWindow_DefaultDocument(t *testing.T) {
	t.Parallel()
	w := page.NewWindow("https://shop.example")
	require.NotNil(t, w.Document())

	doc, err := page.ParseDocument(strings.NewReader(linksHTML))
	require.NoError(t, err)
	w.SetDocument(doc)
	assert.Same(t, doc, w.Document())
}
