package domain

import (
	"fmt"
	"strings"
)

// Handle is an opaque reference to a rendered element. It is valid only
// within the scan or action session that produced it and must never be
// compared across sessions. Key is stable for the lifetime of the element.
type Handle interface {
	Key() string
}

// RawEntry is what a FeedBrowser extracts from one rendered feed item.
type RawEntry struct {
	Title       string
	URL         string
	ChannelName string
	ChannelURL  string
}

// ContentEntry is one structured feed item.
type ContentEntry struct {
	ID          string
	Title       string
	ChannelName string
	ChannelURL  string
	SourceURL   string
	Handle      Handle
}

// NewContentEntry validates raw and derives the entry id from its URL.
// A missing title, channel name or derivable id yields ErrExtractionFailure.
func NewContentEntry(raw RawEntry, h Handle) (ContentEntry, error) {
	title := strings.TrimSpace(raw.Title)
	channel := strings.TrimSpace(raw.ChannelName)
	if title == "" || channel == "" {
		return ContentEntry{}, fmt.Errorf("%w: title=%q channel=%q", ErrExtractionFailure, title, channel)
	}
	id := VideoIDFromURL(raw.URL)
	if id == "" {
		return ContentEntry{}, fmt.Errorf("%w: no id in url %q", ErrExtractionFailure, raw.URL)
	}
	return ContentEntry{
		ID:          id,
		Title:       title,
		ChannelName: channel,
		ChannelURL:  strings.TrimSpace(raw.ChannelURL),
		SourceURL:   strings.TrimSpace(raw.URL),
		Handle:      h,
	}, nil
}

// MatchedEntry pairs an entry with the blocking Decision that selected it.
type MatchedEntry struct {
	Entry    ContentEntry
	Decision Decision
}

// NewMatchedEntry returns an error if d is not blocking.
func NewMatchedEntry(e ContentEntry, d Decision) (MatchedEntry, error) {
	if !d.Blocked {
		return MatchedEntry{}, fmt.Errorf("entry %q: decision is not blocking", e.ID)
	}
	return MatchedEntry{Entry: e, Decision: d}, nil
}
