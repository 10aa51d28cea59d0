// Package cdpbrowser drives a real Chrome session over the DevTools protocol
// and implements domain.FeedBrowser for the watch history page and channel
// info pages. Markup selectors live here and nowhere else.
package cdpbrowser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"

	"github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

const entrySelector = "ytd-video-renderer"

// DefaultTimeout bounds one browser call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var selectors = map[domain.Target]string{
	domain.TargetRemoveButton: `button[aria-label="Remove from watch history"]`,
	domain.TargetReportMarker: `button[aria-label="Report user"]`,
	domain.TargetReportButton: "#flagging-button button",
	domain.TargetMenuItem:     "tp-yt-paper-item",
	domain.TargetSubmit:       `#confirm-button button[aria-label="Submit"]`,
	domain.TargetContinue:     `#confirm-button button[aria-label="Continue"]`,
	domain.TargetToggle:       "ytd-toggle-button-renderer button",
	domain.TargetDone:         `#done-button button[aria-label="Done"]`,
}

func selectorFor(t domain.Target) (string, error) {
	sel, ok := selectors[t]
	if !ok {
		return "", fmt.Errorf("%w: no selector for %s", domain.ErrUnexpectedSurface, t)
	}
	return sel, nil
}

const (
	extractScript = `function() {
	const title = this.querySelector('#video-title');
	const channel = this.querySelector('ytd-channel-name a') || this.querySelector('#channel-name a');
	const thumb = this.querySelector('a#thumbnail');
	let url = thumb ? thumb.getAttribute('href') : '';
	if (!url && title) { url = title.getAttribute('href') || ''; }
	return {
		title: title ? title.textContent.trim() : '',
		url: url || '',
		channel_name: channel ? channel.textContent.trim() : '',
		channel_url: channel ? (channel.href || '') : ''
	};
}`
	interactableScript = `function() {
	if (!this.isConnected || this.disabled) { return false; }
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
}`
	attributeScript   = `function(name) { return this.getAttribute(name) || ''; }`
	textScript        = `function() { return (this.innerText || this.textContent || '').trim(); }`
	scrollIntoScript  = `function() { this.scrollIntoView({block: 'center'}); return true; }`
	scrollBottomPage  = `window.scrollTo(0, document.documentElement.scrollHeight); true`
)

// Options configure the Chrome session.
type Options struct {
	Headless bool
	// UserDataDir points at a profile holding a signed-in session.
	UserDataDir string
	ExecPath    string
	// Timeout bounds every call, page loads included. Zero selects
	// DefaultTimeout.
	Timeout time.Duration
	Logger  log.Logger
}

// Browser is a FeedBrowser bound to one Chrome tab.
type Browser struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	logger      log.Logger
}

type nodeHandle struct {
	node *cdp.Node
}

func (h nodeHandle) Key() string {
	return "node:" + strconv.FormatInt(int64(h.node.BackendNodeID), 10)
}

type rawEntry struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	ChannelName string `json:"channel_name"`
	ChannelURL  string `json:"channel_url"`
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out, chromedp.Flag("headless", opts.Headless))
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// New starts Chrome and opens a tab. Any startup failure is reported as
// domain.ErrSessionUnavailable.
func New(ctx context.Context, opts Options) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger.Info(map[string]any{"headless": opts.Headless, "profile": opts.UserDataDir, "timeout": timeout}, "browser_session_started")
	return &Browser{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc, timeout: timeout, logger: logger}, nil
}

// Close ends the tab and the browser process.
func (b *Browser) Close() error {
	b.cancelTab()
	b.cancelAlloc()
	return nil
}

// run executes actions on the tab, aborting when ctx ends, the session
// ends or the call outlives the browser timeout.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return classify(ctx, b.ctx, runCtx, chromedp.Run(runCtx, actions...))
}

// classify maps a chromedp error onto the domain failure taxonomy. call is
// the bounded context the actions ran under.
func classify(caller, session, call context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case caller.Err() != nil:
		return caller.Err()
	case session.Err() != nil, errors.Is(err, chromedp.ErrInvalidContext):
		return fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	case errors.Is(call.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: browser call: %v", domain.ErrInteractionTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUnexpectedSurface, err)
}

func nodeOf(h domain.Handle) (*cdp.Node, error) {
	nh, ok := h.(nodeHandle)
	if !ok || nh.node == nil {
		return nil, fmt.Errorf("%w: foreign handle %T", domain.ErrUnexpectedSurface, h)
	}
	return nh.node, nil
}

func wrap(nodes []*cdp.Node) []domain.Handle {
	out := make([]domain.Handle, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeHandle{node: n})
	}
	return out
}

// callOn runs fn with the element as this and decodes the result into out.
func (b *Browser) callOn(ctx context.Context, h domain.Handle, fn string, out any, args ...any) error {
	n, err := nodeOf(h)
	if err != nil {
		return err
	}
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(n.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		call := runtime.CallFunctionOn(fn).WithObjectID(obj.ObjectID).WithReturnByValue(true)
		if len(args) > 0 {
			callArgs := make([]*runtime.CallArgument, 0, len(args))
			for _, a := range args {
				raw, err := json.Marshal(a)
				if err != nil {
					return err
				}
				callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
			}
			call = call.WithArguments(callArgs)
		}
		res, exc, err := call.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if out == nil || res == nil {
			return nil
		}
		return json.Unmarshal(res.Value, out)
	}))
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.logger.Debug(map[string]any{"url": url}, "browser_navigate")
	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (b *Browser) FindEntries(ctx context.Context) ([]domain.Handle, error) {
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes(entrySelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return wrap(nodes), nil
}

func (b *Browser) Extract(ctx context.Context, h domain.Handle) (domain.RawEntry, error) {
	var raw rawEntry
	if err := b.callOn(ctx, h, extractScript, &raw); err != nil {
		return domain.RawEntry{}, err
	}
	return domain.RawEntry{
		Title:       raw.Title,
		URL:         raw.URL,
		ChannelName: raw.ChannelName,
		ChannelURL:  raw.ChannelURL,
	}, nil
}

func (b *Browser) AdvanceView(ctx context.Context, last domain.Handle) error {
	if last != nil {
		if err := b.ScrollIntoView(ctx, last); err != nil {
			return err
		}
	}
	var ok bool
	return b.run(ctx, chromedp.Evaluate(scrollBottomPage, &ok))
}

func (b *Browser) Find(ctx context.Context, target domain.Target, scope domain.Handle) ([]domain.Handle, error) {
	sel, err := selectorFor(target)
	if err != nil {
		return nil, err
	}
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if scope != nil {
		n, err := nodeOf(scope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chromedp.FromNode(n))
	}
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	return wrap(nodes), nil
}

func (b *Browser) Interactable(ctx context.Context, h domain.Handle) (bool, error) {
	var ok bool
	if err := b.callOn(ctx, h, interactableScript, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (b *Browser) Activate(ctx context.Context, h domain.Handle) error {
	n, err := nodeOf(h)
	if err != nil {
		return err
	}
	return b.run(ctx, chromedp.MouseClickNode(n))
}

func (b *Browser) Attribute(ctx context.Context, h domain.Handle, name string) (string, error) {
	var v string
	if err := b.callOn(ctx, h, attributeScript, &v, name); err != nil {
		return "", err
	}
	return v, nil
}

func (b *Browser) Text(ctx context.Context, h domain.Handle) (string, error) {
	var v string
	if err := b.callOn(ctx, h, textScript, &v); err != nil {
		return "", err
	}
	return v, nil
}

func (b *Browser) ScrollIntoView(ctx context.Context, h domain.Handle) error {
	return b.callOn(ctx, h, scrollIntoScript, nil)
}

var _ domain.FeedBrowser = (*Browser)(nil)
