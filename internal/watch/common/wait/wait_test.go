package wait

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/gateways/fakebrowser"
)

func newFeed(t *testing.T, items ...fakebrowser.Item) (*fakebrowser.Browser, []domain.Handle) {
	t.Helper()
	b := fakebrowser.New(0, items...)
	require.NoError(t, b.Navigate(context.Background(), "https://example.test/feed"))
	hs, err := b.FindEntries(context.Background())
	require.NoError(t, err)
	return b, hs
}

func TestInteractable_Ready(t *testing.T) {
	b, hs := newFeed(t, fakebrowser.Item{ID: "aaaaa", Title: "A", ChannelName: "c"})
	w := New(Options{Browser: b, Interval: time.Millisecond})

	h, err := w.Interactable(context.Background(), domain.TargetRemoveButton, hs[0], 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "remove:"+hs[0].Key()[len("entry:"):], h.Key())
}

func TestInteractable_TimesOut(t *testing.T) {
	b, hs := newFeed(t, fakebrowser.Item{ID: "aaaaa", Title: "A", ChannelName: "c", Sticky: true})
	w := New(Options{Browser: b, Interval: time.Millisecond})

	_, err := w.Interactable(context.Background(), domain.TargetRemoveButton, hs[0], 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInteractionTimeout))
}

func TestPresent_TimesOutWhenAbsent(t *testing.T) {
	b, _ := newFeed(t)
	w := New(Options{Browser: b, Interval: time.Millisecond})

	_, err := w.Present(context.Background(), domain.TargetReportMarker, nil, 5*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrInteractionTimeout))
}

func TestPresent_Found(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: "https://example.test/@c"})
	require.NoError(t, b.Navigate(context.Background(), "https://example.test/@c/about"))
	w := New(Options{Browser: b, Interval: time.Millisecond})

	hs, err := w.Present(context.Background(), domain.TargetReportMarker, nil, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, hs, 1)
}

func TestHandle(t *testing.T) {
	b, hs := newFeed(t, fakebrowser.Item{ID: "aaaaa", Title: "A", ChannelName: "c"})
	w := New(Options{Browser: b})
	assert.NoError(t, w.Handle(context.Background(), hs[0], time.Second))
}

func TestPoll_CancelledContext(t *testing.T) {
	b, hs := newFeed(t, fakebrowser.Item{ID: "aaaaa", Title: "A", ChannelName: "c", Sticky: true})
	w := New(Options{Browser: b, Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Interactable(ctx, domain.TargetRemoveButton, hs[0], time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_DefaultInterval(t *testing.T) {
	w := New(Options{})
	assert.Equal(t, DefaultInterval, w.interval)
}

// failingFind overrides Find on a fake feed.
type failingFind struct {
	*fakebrowser.Browser
	err   error
	calls int
}

func (f *failingFind) Find(context.Context, domain.Target, domain.Handle) ([]domain.Handle, error) {
	f.calls++
	return nil, f.err
}

func TestPresent_SessionLossStopsAtOnce(t *testing.T) {
	b, _ := newFeed(t)
	lost := &failingFind{Browser: b, err: fmt.Errorf("%w: tab closed", domain.ErrSessionUnavailable)}
	w := New(Options{Browser: lost, Interval: time.Millisecond})

	_, err := w.Present(context.Background(), domain.TargetReportMarker, nil, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionUnavailable)
	assert.NotErrorIs(t, err, domain.ErrInteractionTimeout)
	assert.Equal(t, 1, lost.calls)
}

func TestPresent_TimeoutKeepsCause(t *testing.T) {
	b, _ := newFeed(t)
	flaky := &failingFind{Browser: b, err: fmt.Errorf("%w: detached node", domain.ErrUnexpectedSurface)}
	w := New(Options{Browser: flaky, Interval: time.Millisecond})

	_, err := w.Present(context.Background(), domain.TargetReportMarker, nil, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInteractionTimeout)
	assert.ErrorIs(t, err, domain.ErrUnexpectedSurface)
	assert.Greater(t, flaky.calls, 1)
}

// stallingFind blocks until its context ends.
type stallingFind struct {
	*fakebrowser.Browser
}

func (stallingFind) Find(ctx context.Context, _ domain.Target, _ domain.Handle) ([]domain.Handle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPresent_StalledCallIsBounded(t *testing.T) {
	b, _ := newFeed(t)
	w := New(Options{Browser: stallingFind{Browser: b}, Interval: time.Millisecond})

	start := time.Now()
	_, err := w.Present(context.WithoutCancel(context.Background()), domain.TargetReportMarker, nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrInteractionTimeout)
	assert.Less(t, time.Since(start), time.Second)
}
