// Package fakebrowser is an in-memory FeedBrowser. It renders a paginated
// feed that grows on AdvanceView and removes items when their remove button
// is activated. It also models channel info pages with a report menu whose
// hide, unhide and block-for-kids dialogs mutate per-channel state.
//
// It backs the package tests and the "fake" browser driver used for dry runs
// against a JSON fixture.
package fakebrowser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/haukened/watchangel/internal/watch/domain"
)

// Menu labels rendered on a channel report menu.
const (
	LabelHide   = "Hide user from my channel"
	LabelUnhide = "Unhide user from my channel"
	LabelKids   = "Block channel for kids"
	LabelReport = "Report user"
)

// Item is one feed entry.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ChannelName string `json:"channel_name"`
	ChannelURL  string `json:"channel_url"`
	// URL overrides the default watch URL built from ID.
	URL string `json:"url,omitempty"`
	// Sticky items expose a remove button that never becomes interactable.
	Sticky bool `json:"sticky,omitempty"`
	// Broken items fail extraction.
	Broken bool `json:"broken,omitempty"`

	serial  int
	removed bool
}

// Channel is the state of one channel info page.
type Channel struct {
	URL            string `json:"url"`
	Hidden         bool   `json:"hidden"`
	BlockedForKids bool   `json:"blocked_for_kids"`
	// NoMarker keeps the page from ever rendering.
	NoMarker bool `json:"no_marker,omitempty"`
	// NoHideItem and NoKidsItem drop the respective menu items.
	NoHideItem bool `json:"no_hide_item,omitempty"`
	NoKidsItem bool `json:"no_kids_item,omitempty"`
	// NoSubmit keeps the hide dialog's submit button from rendering.
	NoSubmit bool `json:"no_submit,omitempty"`
	// NoContinue keeps the kids dialog's continue button from rendering.
	NoContinue bool `json:"no_continue,omitempty"`
}

// Fixture is the on-disk form loaded by LoadFixture.
type Fixture struct {
	PageSize int        `json:"page_size"`
	Items    []Item     `json:"items"`
	Channels []*Channel `json:"channels"`
}

type dialog uint8

const (
	dialogNone dialog = iota
	dialogHide
	dialogUnhide
	dialogKids
	dialogKidsToggle
)

type kind uint8

const (
	kindEntry kind = iota
	kindRemove
	kindMarker
	kindReportButton
	kindMenuItem
	kindSubmit
	kindContinue
	kindToggle
	kindDone
)

type handle struct {
	kind   kind
	serial int
	label  string
}

func (h handle) Key() string {
	switch h.kind {
	case kindEntry:
		return "entry:" + strconv.Itoa(h.serial)
	case kindRemove:
		return "remove:" + strconv.Itoa(h.serial)
	case kindMenuItem:
		return "menu:" + h.label
	}
	return fmt.Sprintf("el:%d", h.kind)
}

// Browser is a scriptable in-memory FeedBrowser. Exported fields may be set
// before use; methods are safe for concurrent use.
type Browser struct {
	mu sync.Mutex

	// PageSize is the number of items visible after Navigate and the number
	// added by each AdvanceView. Zero shows everything.
	PageSize int
	// OnAdvance runs under the lock after each AdvanceView.
	OnAdvance func(b *Browser)
	// NavigateErr is returned by every Navigate call when set.
	NavigateErr error

	items    []*Item
	channels map[string]*Channel
	serial   int

	page     string
	visible  int
	menuOpen bool
	dialog   dialog

	// recorded activity
	navigations []string
	removed     []string
	extracts    map[string]int
	activated   []string
}

// New returns a Browser rendering items.
func New(pageSize int, items ...Item) *Browser {
	b := &Browser{
		PageSize: pageSize,
		channels: make(map[string]*Channel),
		extracts: make(map[string]int),
	}
	for _, it := range items {
		b.addLocked(it)
	}
	return b
}

// LoadFixture builds a Browser from a JSON fixture file.
func LoadFixture(path string) (*Browser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	b := New(fx.PageSize, fx.Items...)
	for _, c := range fx.Channels {
		b.AddChannel(c)
	}
	return b, nil
}

// Append adds items to the end of the feed.
func (b *Browser) Append(items ...Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range items {
		b.addLocked(it)
	}
}

// Prepend adds items to the top of the feed, as new watch activity would.
func (b *Browser) Prepend(items ...Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tail := b.items
	b.items = nil
	for _, it := range items {
		b.addLocked(it)
	}
	b.items = append(b.items, tail...)
	if b.visible > 0 {
		b.visible += len(items)
	}
}

func (b *Browser) addLocked(it Item) {
	b.serial++
	it.serial = b.serial
	it.removed = false
	b.items = append(b.items, &it)
}

// AddChannel registers a channel info page, keyed by its URL.
func (b *Browser) AddChannel(c *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[strings.TrimSuffix(c.URL, "/")] = c
}

// Channel returns the registered channel for url.
func (b *Browser) Channel(url string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[strings.TrimSuffix(url, "/")]
}

// RemovedIDs returns the ids removed so far, in removal order.
func (b *Browser) RemovedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}

// RemainingIDs returns the ids still in the feed, in order.
func (b *Browser) RemainingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, it := range b.items {
		if !it.removed {
			out = append(out, it.ID)
		}
	}
	return out
}

// Navigations returns every URL passed to Navigate.
func (b *Browser) Navigations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.navigations...)
}

// Activations returns the keys of every activated handle.
func (b *Browser) Activations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.activated...)
}

// ExtractCount returns how often the handle with key was extracted.
func (b *Browser) ExtractCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.extracts[key]
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations = append(b.navigations, url)
	if b.NavigateErr != nil {
		return b.NavigateErr
	}
	b.page = strings.TrimSuffix(strings.TrimSuffix(url, "/"), "/about")
	b.visible = b.PageSize
	b.menuOpen = false
	b.dialog = dialogNone
	return nil
}

func (b *Browser) channelLocked() *Channel {
	return b.channels[b.page]
}

func (b *Browser) FindEntries(ctx context.Context) ([]domain.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channelLocked() != nil {
		return nil, nil
	}
	var out []domain.Handle
	for _, it := range b.items {
		if b.visible > 0 && len(out) >= b.visible {
			break
		}
		if it.removed {
			continue
		}
		out = append(out, handle{kind: kindEntry, serial: it.serial})
	}
	return out, nil
}

func (b *Browser) itemLocked(serial int) *Item {
	for _, it := range b.items {
		if it.serial == serial {
			return it
		}
	}
	return nil
}

func (b *Browser) Extract(ctx context.Context, h domain.Handle) (domain.RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawEntry{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fh, ok := h.(handle)
	if !ok || fh.kind != kindEntry {
		return domain.RawEntry{}, fmt.Errorf("%w: not an entry handle", domain.ErrUnexpectedSurface)
	}
	b.extracts[fh.Key()]++
	it := b.itemLocked(fh.serial)
	if it == nil || it.removed {
		return domain.RawEntry{}, fmt.Errorf("%w: stale handle %s", domain.ErrUnexpectedSurface, fh.Key())
	}
	if it.Broken {
		return domain.RawEntry{}, fmt.Errorf("%w: item %s has no metadata", domain.ErrExtractionFailure, fh.Key())
	}
	url := it.URL
	if url == "" {
		url = "/watch?v=" + it.ID
	}
	return domain.RawEntry{
		Title:       it.Title,
		URL:         url,
		ChannelName: it.ChannelName,
		ChannelURL:  it.ChannelURL,
	}, nil
}

func (b *Browser) AdvanceView(ctx context.Context, _ domain.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.visible > 0 {
		b.visible += b.PageSize
	}
	if b.OnAdvance != nil {
		b.OnAdvance(b)
	}
	return nil
}

// AppendLocked is Append for use inside OnAdvance.
func (b *Browser) AppendLocked(items ...Item) {
	for _, it := range items {
		b.addLocked(it)
	}
}

func (b *Browser) menuLabelsLocked(c *Channel) []string {
	labels := []string{LabelReport}
	if !c.NoHideItem {
		if c.Hidden {
			labels = append(labels, LabelUnhide)
		} else {
			labels = append(labels, LabelHide)
		}
	}
	if !c.NoKidsItem {
		labels = append(labels, LabelKids)
	}
	return labels
}

func (b *Browser) Find(ctx context.Context, target domain.Target, scope domain.Handle) ([]domain.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if target == domain.TargetRemoveButton {
		fh, ok := scope.(handle)
		if !ok {
			return nil, nil
		}
		if it := b.itemLocked(fh.serial); it != nil && !it.removed {
			return []domain.Handle{handle{kind: kindRemove, serial: fh.serial}}, nil
		}
		return nil, nil
	}

	c := b.channelLocked()
	if c == nil || c.NoMarker {
		return nil, nil
	}
	one := func(k kind) []domain.Handle { return []domain.Handle{handle{kind: k}} }
	switch target {
	case domain.TargetReportMarker:
		return one(kindMarker), nil
	case domain.TargetReportButton:
		return one(kindReportButton), nil
	case domain.TargetMenuItem:
		if !b.menuOpen {
			return nil, nil
		}
		var out []domain.Handle
		for _, l := range b.menuLabelsLocked(c) {
			out = append(out, handle{kind: kindMenuItem, label: l})
		}
		return out, nil
	case domain.TargetSubmit:
		if (b.dialog == dialogHide || b.dialog == dialogUnhide) && !c.NoSubmit {
			return one(kindSubmit), nil
		}
	case domain.TargetContinue:
		if b.dialog == dialogKids && !c.NoContinue {
			return one(kindContinue), nil
		}
	case domain.TargetToggle:
		if b.dialog == dialogKidsToggle {
			return one(kindToggle), nil
		}
	case domain.TargetDone:
		if b.dialog == dialogKidsToggle {
			return one(kindDone), nil
		}
	}
	return nil, nil
}

func (b *Browser) Interactable(ctx context.Context, h domain.Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fh, ok := h.(handle)
	if !ok {
		return false, nil
	}
	switch fh.kind {
	case kindEntry, kindRemove:
		it := b.itemLocked(fh.serial)
		if it == nil || it.removed {
			return false, nil
		}
		return fh.kind == kindEntry || !it.Sticky, nil
	}
	return true, nil
}

var errStale = errors.New("stale handle")

func (b *Browser) Activate(ctx context.Context, h domain.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fh, ok := h.(handle)
	if !ok {
		return fmt.Errorf("%w: foreign handle", domain.ErrUnexpectedSurface)
	}
	b.activated = append(b.activated, fh.Key())

	c := b.channelLocked()
	switch fh.kind {
	case kindRemove:
		it := b.itemLocked(fh.serial)
		if it == nil || it.removed || it.Sticky {
			return fmt.Errorf("%w: %s", domain.ErrUnexpectedSurface, errStale)
		}
		it.removed = true
		b.removed = append(b.removed, it.ID)
	case kindReportButton:
		b.menuOpen = true
	case kindMenuItem:
		b.menuOpen = false
		switch fh.label {
		case LabelHide:
			b.dialog = dialogHide
		case LabelUnhide:
			b.dialog = dialogUnhide
		case LabelKids:
			b.dialog = dialogKids
		}
	case kindSubmit:
		if c != nil {
			c.Hidden = b.dialog == dialogHide
		}
		b.dialog = dialogNone
	case kindContinue:
		b.dialog = dialogKidsToggle
	case kindToggle:
		if c != nil {
			c.BlockedForKids = !c.BlockedForKids
		}
	case kindDone:
		b.dialog = dialogNone
	}
	return nil
}

func (b *Browser) Attribute(ctx context.Context, h domain.Handle, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fh, _ := h.(handle)
	if fh.kind == kindToggle && name == "aria-label" {
		if c := b.channelLocked(); c != nil && c.BlockedForKids {
			return "Unblock", nil
		}
		return "Block", nil
	}
	return "", nil
}

func (b *Browser) Text(ctx context.Context, h domain.Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fh, _ := h.(handle)
	return fh.label, nil
}

func (b *Browser) ScrollIntoView(ctx context.Context, h domain.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fh, ok := h.(handle)
	if !ok {
		return nil
	}
	if it := b.itemLocked(fh.serial); fh.kind == kindEntry && (it == nil || it.removed) {
		return fmt.Errorf("%w: %s", domain.ErrUnexpectedSurface, errStale)
	}
	return nil
}

// Close is a no-op satisfying the session lifecycle of real drivers.
func (b *Browser) Close() error { return nil }

var _ domain.FeedBrowser = (*Browser)(nil)
