package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/watchangel/internal/watch/common/clock"
	"github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/common/wait"
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/gateways/fakebrowser"
)

const chanURL = "https://example.test/@spam"

func newController(b *fakebrowser.Browser, rec *log.Recorder) (*Controller, *clock.MockClock) {
	clk := &clock.MockClock{CurrentTime: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	short := 20 * time.Millisecond
	return New(Options{
		Browser: b,
		Waiter:  wait.New(wait.Options{Browser: b, Interval: time.Millisecond}),
		Timeouts: Timeouts{
			Marker: short, Report: short, Menu: short, Submit: short,
			Continue: short, Toggle: short, Done: short,
		},
		Clock:  clk,
		Logger: rec,
	}), clk
}

func TestBlockChannel_Full(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL})
	rec := log.NewRecorder()
	c, clk := newController(b, rec)

	res := c.BlockChannel(context.Background(), chanURL+"/")
	assert.Equal(t, Full, res.Outcome)
	require.Len(t, res.Actions, 2)

	hide, ok := res.Action(ActionHide)
	require.True(t, ok)
	assert.True(t, hide.OK)
	assert.False(t, hide.Satisfied)
	assert.Equal(t, []Step{StepMenuOpened, StepItemActivated, StepSubmitted, StepDone}, hide.Steps)

	kids, ok := res.Action(ActionKids)
	require.True(t, ok)
	assert.True(t, kids.OK)
	assert.Equal(t, []Step{StepMenuOpened, StepItemActivated, StepContinueConfirmed, StepToggleResolved, StepDone}, kids.Steps)

	ch := b.Channel(chanURL)
	assert.True(t, ch.Hidden)
	assert.True(t, ch.BlockedForKids)
	assert.Equal(t, []string{chanURL + "/about"}, b.Navigations())
	assert.Equal(t, 2*DefaultActionPause, clk.Slept())
	assert.True(t, rec.Has("channel_block_done"))
}

func TestBlockChannel_AlreadyBlocked(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL, Hidden: true, BlockedForKids: true})
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, Full, res.Outcome)
	for _, ar := range res.Actions {
		assert.True(t, ar.Satisfied, ar.Action)
		assert.True(t, ar.OK, ar.Action)
	}
	ch := b.Channel(chanURL)
	assert.True(t, ch.Hidden, "an already hidden channel is not toggled back")
	assert.True(t, ch.BlockedForKids)
	assert.NotContains(t, b.Activations(), "el:7", "toggle not clicked")
}

func TestBlockChannel_MarkerMissingAborts(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL, NoMarker: true})
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, Aborted, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrInteractionTimeout)
	assert.Empty(t, res.Actions)
	assert.Empty(t, b.Activations(), "no action without the info page")
}

func TestBlockChannel_NavigateErrorAborts(t *testing.T) {
	b := fakebrowser.New(0)
	b.NavigateErr = errors.New("session lost")
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, Aborted, res.Outcome)
	assert.Error(t, res.Err)
}

func TestBlockChannel_NoMatch(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL, NoHideItem: true, NoKidsItem: true})
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, NoMatch, res.Outcome)
	assert.Empty(t, res.Actions)
}

func TestBlockChannel_PartialWhenSubmitMissing(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL, NoSubmit: true})
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, Partial, res.Outcome)

	hide, _ := res.Action(ActionHide)
	assert.False(t, hide.OK)
	assert.ErrorIs(t, hide.Err, domain.ErrInteractionTimeout)
	assert.True(t, hide.Reached(StepItemActivated))
	assert.False(t, hide.Reached(StepSubmitted))

	kids, _ := res.Action(ActionKids)
	assert.True(t, kids.OK, "a failed sub-action does not stop the next")
	assert.True(t, b.Channel(chanURL).BlockedForKids)
}

func TestBlockChannel_PartialWhenContinueMissing(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL, NoContinue: true})
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, Partial, res.Outcome)
	kids, _ := res.Action(ActionKids)
	assert.Equal(t, []Step{StepMenuOpened, StepItemActivated}, kids.Steps)
	assert.True(t, b.Channel(chanURL).Hidden)
}

func TestBlockChannel_OnlyKidsItem(t *testing.T) {
	b := fakebrowser.New(0)
	b.AddChannel(&fakebrowser.Channel{URL: chanURL, NoHideItem: true})
	c, _ := newController(b, log.NewRecorder())

	res := c.BlockChannel(context.Background(), chanURL)
	assert.Equal(t, Full, res.Outcome)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionKids, res.Actions[0].Action)
}

func TestUnhideChannel(t *testing.T) {
	tests := []struct {
		name    string
		channel *fakebrowser.Channel
		want    bool
		hidden  bool
	}{
		{"hidden", &fakebrowser.Channel{URL: chanURL, Hidden: true}, true, false},
		{"not hidden", &fakebrowser.Channel{URL: chanURL}, true, false},
		{"no info page", &fakebrowser.Channel{URL: chanURL, Hidden: true, NoMarker: true}, false, true},
		{"submit missing", &fakebrowser.Channel{URL: chanURL, Hidden: true, NoSubmit: true}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fakebrowser.New(0)
			b.AddChannel(tt.channel)
			c, _ := newController(b, log.NewRecorder())
			assert.Equal(t, tt.want, c.UnhideChannel(context.Background(), chanURL))
			assert.Equal(t, tt.hidden, b.Channel(chanURL).Hidden)
		})
	}
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "partial", Partial.String())
	assert.Equal(t, "toggle_resolved", StepToggleResolved.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}
