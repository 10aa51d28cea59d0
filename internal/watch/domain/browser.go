package domain

import (
	"context"
	"fmt"
)

// Target names an affordance of the remote surface. Selectors and markup
// specifics live in the FeedBrowser adapter, never in the core.
type Target uint8

const (
	// TargetRemoveButton is the per-entry "remove from history" control.
	TargetRemoveButton Target = iota
	// TargetReportMarker is a stable element that appears once a channel
	// info surface has rendered.
	TargetReportMarker
	// TargetReportButton opens the channel report menu.
	TargetReportButton
	// TargetMenuItem matches every item of the open report menu.
	TargetMenuItem
	// TargetSubmit confirms the hide dialog.
	TargetSubmit
	// TargetContinue advances the block-for-minors dialog.
	TargetContinue
	// TargetToggle is the block-for-minors switch; its aria-label says
	// "Block" or "Unblock".
	TargetToggle
	// TargetDone dismisses the block-for-minors dialog.
	TargetDone
)

var targetNames = [...]string{
	TargetRemoveButton: "remove_button",
	TargetReportMarker: "report_marker",
	TargetReportButton: "report_button",
	TargetMenuItem:     "menu_item",
	TargetSubmit:       "submit",
	TargetContinue:     "continue",
	TargetToggle:       "toggle",
	TargetDone:         "done",
}

func (t Target) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}
	return fmt.Sprintf("Target(%d)", t)
}

// FeedBrowser is the automation capability the core drives. Every call
// blocks until the remote action completes. Implementations wrap
// non-context failures in ErrUnexpectedSurface.
type FeedBrowser interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// FindEntries returns handles for the currently rendered feed items
	// in rendering order.
	FindEntries(ctx context.Context) ([]Handle, error)
	// Extract reads the structured fields of one feed item.
	Extract(ctx context.Context, h Handle) (RawEntry, error)
	// AdvanceView requests more content (infinite scroll). last is the
	// last rendered entry, or nil.
	AdvanceView(ctx context.Context, last Handle) error
	// Find returns the current handles for target, below scope when non-nil.
	Find(ctx context.Context, target Target, scope Handle) ([]Handle, error)
	// Interactable reports whether h is rendered and can receive a click.
	Interactable(ctx context.Context, h Handle) (bool, error)
	// Activate clicks h.
	Activate(ctx context.Context, h Handle) error
	// Attribute returns the named attribute of h, or "" if absent.
	Attribute(ctx context.Context, h Handle, name string) (string, error)
	// Text returns the visible text of h.
	Text(ctx context.Context, h Handle) (string, error)
	// ScrollIntoView brings h into the viewport.
	ScrollIntoView(ctx context.Context, h Handle) error
}
