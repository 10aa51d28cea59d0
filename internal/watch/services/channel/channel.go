// Package channel drives the multi-step workflow on a channel info page
// that hides the channel and blocks it for minors, and the reverse unhide.
//
// Each sub-action is an explicit step machine. Its ActionResult carries the
// trail of steps reached, so a partial run reports exactly where it stopped.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haukened/watchangel/internal/watch/common/clock"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/common/wait"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// Menu labels, matched case-insensitively as substrings of the item text.
const (
	hideLabel   = "hide user from my channel"
	unhideLabel = "unhide user from my channel"
	kidsLabel   = "block channel for kids"
)

// Timeouts bounds every wait of the workflow.
type Timeouts struct {
	Marker   time.Duration
	Report   time.Duration
	Menu     time.Duration
	Submit   time.Duration
	Continue time.Duration
	Toggle   time.Duration
	Done     time.Duration
}

// DefaultTimeouts are applied per zero field.
var DefaultTimeouts = Timeouts{
	Marker:   10 * time.Second,
	Report:   10 * time.Second,
	Menu:     5 * time.Second,
	Submit:   5 * time.Second,
	Continue: 10 * time.Second,
	Toggle:   10 * time.Second,
	Done:     5 * time.Second,
}

// DefaultActionPause separates sub-actions.
const DefaultActionPause = time.Second

func (t Timeouts) withDefaults() Timeouts {
	fill := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&t.Marker, DefaultTimeouts.Marker)
	fill(&t.Report, DefaultTimeouts.Report)
	fill(&t.Menu, DefaultTimeouts.Menu)
	fill(&t.Submit, DefaultTimeouts.Submit)
	fill(&t.Continue, DefaultTimeouts.Continue)
	fill(&t.Toggle, DefaultTimeouts.Toggle)
	fill(&t.Done, DefaultTimeouts.Done)
	return t
}

// Outcome summarises a BlockChannel run.
type Outcome uint8

const (
	// Full: every applicable sub-action succeeded.
	Full Outcome = iota
	// Partial: at least one applicable sub-action failed.
	Partial
	// NoMatch: neither menu item was present.
	NoMatch
	// Aborted: the info page or its menu never became usable.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Full:
		return "full"
	case Partial:
		return "partial"
	case NoMatch:
		return "no_match"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

// Action names a sub-action.
type Action string

const (
	ActionHide Action = "hide"
	ActionKids Action = "block_for_kids"
)

// Step is one reached stage of a sub-action.
type Step uint8

const (
	StepMenuOpened Step = iota + 1
	StepItemActivated
	StepSubmitted
	StepContinueConfirmed
	StepToggleResolved
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepMenuOpened:
		return "menu_opened"
	case StepItemActivated:
		return "item_activated"
	case StepSubmitted:
		return "submitted"
	case StepContinueConfirmed:
		return "continue_confirmed"
	case StepToggleResolved:
		return "toggle_resolved"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("Step(%d)", s)
}

// ActionResult is the trail of one sub-action.
type ActionResult struct {
	Action Action
	Steps  []Step
	// Satisfied is set when the channel was already in the target state.
	Satisfied bool
	OK        bool
	Err       error
}

// Reached reports whether the trail contains s.
func (r ActionResult) Reached(s Step) bool {
	for _, v := range r.Steps {
		if v == s {
			return true
		}
	}
	return false
}

func (r *ActionResult) reach(s Step) { r.Steps = append(r.Steps, s) }

func (r *ActionResult) fail(err error) ActionResult {
	r.Err = err
	return *r
}

// BlockResult is the outcome of BlockChannel.
type BlockResult struct {
	URL     string
	Outcome Outcome
	Actions []ActionResult
	Err     error // set when Aborted
}

// Action returns the result for a, if that sub-action ran.
func (r BlockResult) Action(a Action) (ActionResult, bool) {
	for _, v := range r.Actions {
		if v.Action == a {
			return v, true
		}
	}
	return ActionResult{}, false
}

// Options configures a Controller.
type Options struct {
	Browser     domain.FeedBrowser
	Waiter      *wait.Waiter
	Timeouts    Timeouts
	ActionPause time.Duration // negative disables
	Clock       clock.Clock
	Logger      logpkg.Logger
}

// Controller drives channel info pages.
type Controller struct {
	browser  domain.FeedBrowser
	waiter   *wait.Waiter
	timeouts Timeouts
	pause    time.Duration
	clock    clock.Clock
	logger   logpkg.Logger
}

// New returns a Controller, filling defaults for zero options.
func New(opts Options) *Controller {
	c := &Controller{
		browser:  opts.Browser,
		waiter:   opts.Waiter,
		timeouts: opts.Timeouts.withDefaults(),
		pause:    opts.ActionPause,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if c.waiter == nil {
		c.waiter = wait.New(wait.Options{Browser: opts.Browser})
	}
	switch {
	case c.pause < 0:
		c.pause = 0
	case c.pause == 0:
		c.pause = DefaultActionPause
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.logger == nil {
		c.logger = logpkg.NewNoopLogger()
	}
	return c
}

// menuItem is one rendered report menu entry with its normalised label.
type menuItem struct {
	handle domain.Handle
	label  string
}

func findItem(items []menuItem, needle string) (menuItem, bool) {
	for _, it := range items {
		if strings.Contains(it.label, needle) {
			return it, true
		}
	}
	return menuItem{}, false
}

func aboutURL(url string) string {
	return strings.TrimRight(url, "/") + "/about"
}

// openPage navigates to the channel info page and waits for its marker.
func (c *Controller) openPage(ctx context.Context, url string) error {
	if err := c.browser.Navigate(ctx, aboutURL(url)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if _, err := c.waiter.Present(ctx, domain.TargetReportMarker, nil, c.timeouts.Marker); err != nil {
		return fmt.Errorf("info page: %w", err)
	}
	return nil
}

// openMenu clicks the report button and reads the menu labels.
func (c *Controller) openMenu(ctx context.Context) ([]menuItem, error) {
	btn, err := c.waiter.Interactable(ctx, domain.TargetReportButton, nil, c.timeouts.Report)
	if err != nil {
		return nil, fmt.Errorf("report button: %w", err)
	}
	if err := c.browser.Activate(ctx, btn); err != nil {
		return nil, fmt.Errorf("open report menu: %w", err)
	}
	hs, err := c.waiter.Present(ctx, domain.TargetMenuItem, nil, c.timeouts.Menu)
	if err != nil {
		return nil, fmt.Errorf("report menu: %w", err)
	}
	items := make([]menuItem, 0, len(hs))
	for _, h := range hs {
		text, err := c.browser.Text(ctx, h)
		if err != nil {
			continue
		}
		items = append(items, menuItem{handle: h, label: strings.ToLower(strings.TrimSpace(text))})
	}
	return items, nil
}

// clickTarget waits for target to become interactable and activates it.
func (c *Controller) clickTarget(ctx context.Context, target domain.Target, timeout time.Duration) error {
	h, err := c.waiter.Interactable(ctx, target, nil, timeout)
	if err != nil {
		return err
	}
	return c.browser.Activate(ctx, h)
}

// BlockChannel hides the channel and blocks it for minors. Each sub-action
// runs on a freshly opened menu except the first, which reuses the menu
// opened to probe the labels.
func (c *Controller) BlockChannel(ctx context.Context, url string) BlockResult {
	res := BlockResult{URL: url}
	fields := map[string]any{"channel_url": url}

	if err := c.openPage(ctx, url); err != nil {
		return c.abort(res, fields, err)
	}
	probe, err := c.openMenu(ctx)
	if err != nil {
		return c.abort(res, fields, err)
	}

	type plan struct {
		action Action
		run    func(context.Context, menuItem, ActionResult) ActionResult
		label  string
	}
	var plans []plan
	if _, ok := findItem(probe, hideLabel); ok {
		plans = append(plans, plan{ActionHide, c.hide, hideLabel})
	}
	if _, ok := findItem(probe, kidsLabel); ok {
		plans = append(plans, plan{ActionKids, c.blockForKids, kidsLabel})
	}
	if len(plans) == 0 {
		res.Outcome = NoMatch
		fields["outcome"] = res.Outcome.String()
		c.logger.Warn(fields, "channel_block_done")
		return res
	}

	menu := probe
	for i, p := range plans {
		ar := ActionResult{Action: p.action}
		if i > 0 {
			if menu, err = c.openMenu(ctx); err != nil {
				res.Actions = append(res.Actions, ar.fail(err))
				continue
			}
		}
		ar.reach(StepMenuOpened)
		item, ok := findItem(menu, p.label)
		if !ok {
			res.Actions = append(res.Actions, ar.fail(fmt.Errorf("%w: menu item %q vanished", domain.ErrUnexpectedSurface, p.label)))
			continue
		}
		ar = p.run(ctx, item, ar)
		res.Actions = append(res.Actions, ar)
		c.logAction(url, ar)
		if err := c.clock.Sleep(ctx, c.pause); err != nil {
			break
		}
	}

	res.Outcome = Full
	if len(res.Actions) < len(plans) {
		res.Outcome = Partial
	}
	for _, ar := range res.Actions {
		if !ar.OK {
			res.Outcome = Partial
		}
	}
	fields["outcome"] = res.Outcome.String()
	fields["actions"] = len(res.Actions)
	if res.Outcome == Full {
		c.logger.Info(fields, "channel_block_done")
	} else {
		c.logger.Warn(fields, "channel_block_done")
	}
	return res
}

func (c *Controller) abort(res BlockResult, fields map[string]any, err error) BlockResult {
	res.Outcome = Aborted
	res.Err = err
	fields["outcome"] = res.Outcome.String()
	fields["error"] = err
	c.logger.Warn(fields, "channel_block_done")
	return res
}

func (c *Controller) logAction(url string, ar ActionResult) {
	steps := make([]string, len(ar.Steps))
	for i, s := range ar.Steps {
		steps[i] = s.String()
	}
	fields := map[string]any{
		"channel_url": url,
		"action":      string(ar.Action),
		"steps":       steps,
		"satisfied":   ar.Satisfied,
		"ok":          ar.OK,
	}
	if ar.Err != nil {
		fields["error"] = ar.Err
		c.logger.Warn(fields, "channel_action")
		return
	}
	c.logger.Info(fields, "channel_action")
}

func (c *Controller) hide(ctx context.Context, item menuItem, ar ActionResult) ActionResult {
	if strings.Contains(item.label, unhideLabel) {
		ar.Satisfied = true
		ar.OK = true
		ar.reach(StepDone)
		return ar
	}
	if err := c.browser.Activate(ctx, item.handle); err != nil {
		return ar.fail(fmt.Errorf("activate hide: %w", err))
	}
	ar.reach(StepItemActivated)
	if err := c.clickTarget(ctx, domain.TargetSubmit, c.timeouts.Submit); err != nil {
		return ar.fail(fmt.Errorf("submit: %w", err))
	}
	ar.reach(StepSubmitted)
	ar.reach(StepDone)
	ar.OK = true
	return ar
}

var errToggleLabel = errors.New("unexpected toggle label")

func (c *Controller) blockForKids(ctx context.Context, item menuItem, ar ActionResult) ActionResult {
	if err := c.browser.Activate(ctx, item.handle); err != nil {
		return ar.fail(fmt.Errorf("activate block for kids: %w", err))
	}
	ar.reach(StepItemActivated)
	if err := c.clickTarget(ctx, domain.TargetContinue, c.timeouts.Continue); err != nil {
		return ar.fail(fmt.Errorf("continue: %w", err))
	}
	ar.reach(StepContinueConfirmed)

	hs, err := c.waiter.Present(ctx, domain.TargetToggle, nil, c.timeouts.Toggle)
	if err != nil {
		return ar.fail(fmt.Errorf("toggle: %w", err))
	}
	toggle := hs[0]
	label, err := c.browser.Attribute(ctx, toggle, "aria-label")
	if err != nil {
		return ar.fail(fmt.Errorf("toggle label: %w", err))
	}
	switch l := strings.ToLower(label); {
	case strings.Contains(l, "unblock"):
		ar.Satisfied = true
	case strings.Contains(l, "block"):
		if err := c.waiter.Handle(ctx, toggle, c.timeouts.Submit); err != nil {
			return ar.fail(fmt.Errorf("toggle: %w", err))
		}
		if err := c.browser.Activate(ctx, toggle); err != nil {
			return ar.fail(fmt.Errorf("activate toggle: %w", err))
		}
	default:
		return ar.fail(fmt.Errorf("%w: %w %q", domain.ErrUnexpectedSurface, errToggleLabel, label))
	}
	ar.reach(StepToggleResolved)
	ar.OK = true

	// Dismissing the dialog is best effort; the toggle already took effect.
	if err := c.clickTarget(ctx, domain.TargetDone, c.timeouts.Done); err != nil {
		c.logger.Debug(map[string]any{"error": err}, "done_button_missing")
		return ar
	}
	ar.reach(StepDone)
	return ar
}

// UnhideChannel reverses the hide sub-action. It reports true when the
// channel ends up not hidden, including when it never was.
func (c *Controller) UnhideChannel(ctx context.Context, url string) bool {
	fields := map[string]any{"channel_url": url}
	if err := c.openPage(ctx, url); err != nil {
		fields["error"] = err
		c.logger.Warn(fields, "channel_unhide_failed")
		return false
	}
	items, err := c.openMenu(ctx)
	if err != nil {
		fields["error"] = err
		c.logger.Warn(fields, "channel_unhide_failed")
		return false
	}
	item, ok := findItem(items, unhideLabel)
	if !ok {
		c.logger.Info(fields, "channel_not_hidden")
		return true
	}
	if err := c.browser.Activate(ctx, item.handle); err != nil {
		fields["error"] = err
		c.logger.Warn(fields, "channel_unhide_failed")
		return false
	}
	if err := c.clickTarget(ctx, domain.TargetSubmit, c.timeouts.Submit); err != nil {
		fields["error"] = err
		c.logger.Warn(fields, "channel_unhide_failed")
		return false
	}
	c.logger.Info(fields, "channel_unhidden")
	return true
}
