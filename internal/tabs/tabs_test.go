package tabs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoBrowser = errors.New("no browser")

func TestRegistry_OpenCreatesThenFocuses(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewTestClock(start)

	var launched []string
	r := NewRegistry("https://wallet.example/", func(_ context.Context, url string) error {
		launched = append(launched, url)
		return nil
	}, clk)

	tab, created, err := r.Open(context.Background(), "https://wallet.example/")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, tab.ID)
	assert.True(t, tab.Active)
	assert.Equal(t, start, tab.OpenedAt)

	clk.SetTime(start.Add(time.Minute))
	tab, created, err = r.Open(context.Background(), "https://wallet.example/?uri=bitcoin%3Aabc")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, tab.ID)
	assert.Equal(t, "https://wallet.example/?uri=bitcoin%3Aabc", tab.URL)
	assert.Equal(t, start.Add(time.Minute), tab.Focused)

	assert.Equal(t, 1, r.Len())
	assert.Len(t, launched, 2)
}

func TestRegistry_OtherPrefixOpensNewTab(t *testing.T) {
	t.Parallel()
	r := NewRegistry("https://wallet.example/", nil, nil)

	_, created, err := r.Open(context.Background(), "https://elsewhere.example/")
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = r.Open(context.Background(), "https://wallet.example/")
	require.NoError(t, err)
	assert.True(t, created)

	list := r.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].Active)
	assert.True(t, list[1].Active)
}

func TestRegistry_LauncherFailure(t *testing.T) {
	t.Parallel()
	r := NewRegistry("https://wallet.example/", func(context.Context, string) error {
		return errNoBrowser
	}, nil)

	_, _, err := r.Open(context.Background(), "https://wallet.example/")
	require.ErrorIs(t, err, errNoBrowser)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_EmptyURL(t *testing.T) {
	t.Parallel()
	r := NewRegistry("", nil, nil)

	_, _, err := r.Open(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyURL)
}

func TestRegistry_Close(t *testing.T) {
	t.Parallel()
	r := NewRegistry("https://wallet.example/", nil, nil)

	tab, _, err := r.Open(context.Background(), "https://wallet.example/")
	require.NoError(t, err)

	assert.True(t, r.Close(tab.ID))
	assert.False(t, r.Close(tab.ID))
	assert.Equal(t, 0, r.Len())

	// After closing, the next open creates a fresh tab.
	tab, created, err := r.Open(context.Background(), "https://wallet.example/")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, tab.ID)
}
