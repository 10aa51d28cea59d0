// Package undo reverses channel blocks: channels a user lists in the
// undo file are unhidden on the remote surface and then dropped from both
// the block log and the undo list. A failed unhide is retried on every
// later reconciliation until it succeeds or the undo entry is removed.
package undo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// Unhider reverses a channel hide. channel.Controller implements it.
type Unhider interface {
	UnhideChannel(ctx context.Context, url string) bool
}

// Result counts one reconciliation.
type Result struct {
	// Candidates are undo-listed channels present in the block log or
	// still pending from an earlier failed unhide.
	Candidates int
	Unhidden   int
	Failed     int
	// RecordsDropped counts block log records removed.
	RecordsDropped int
	// Changed is set when both files were rewritten.
	Changed bool
}

// Options configures a Reconciler.
type Options struct {
	Log     domain.BlockLog
	Undo    domain.LineList
	Unhider Unhider
	Logger  logpkg.Logger
}

// Reconciler applies the undo list. It remembers channels whose unhide
// failed, since their block records may be compacted away before the next
// attempt.
type Reconciler struct {
	log     domain.BlockLog
	undo    domain.LineList
	unhider Unhider
	logger  logpkg.Logger

	mu      sync.Mutex
	pending []candidate
}

// New returns a Reconciler. Every option except Logger is required.
func New(opts Options) (*Reconciler, error) {
	if opts.Log == nil || opts.Undo == nil || opts.Unhider == nil {
		return nil, errors.New("undo: log, undo list and unhider are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &Reconciler{log: opts.Log, undo: opts.Undo, unhider: opts.Unhider, logger: logger}, nil
}

// candidate is one undo-listed channel found in the log.
type candidate struct {
	name string // spelling of the first record
	url  string // first non-empty channel url
}

// Reconcile invokes unhide once per undo-listed channel found in the block
// log or left pending by an earlier failure. A success drops every record of
// that channel and its undo entries; a failure keeps both and marks the
// channel pending. The two files are staged and committed together, and
// only when something changed, so repeated runs are idempotent.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result
	undoLines, err := r.undo.Load()
	if err != nil {
		return res, fmt.Errorf("load undo list: %w", err)
	}
	if len(undoLines) == 0 {
		r.pending = nil
		return res, nil
	}
	records, err := r.log.Load()
	if err != nil {
		return res, fmt.Errorf("load block log: %w", err)
	}

	wanted := make(map[string]struct{}, len(undoLines))
	for _, l := range undoLines {
		wanted[domain.ChannelKey(l)] = struct{}{}
	}
	found := make(map[string]*candidate)
	var order []string
	for _, rec := range records {
		key := domain.ChannelKey(rec.ChannelName)
		if _, ok := wanted[key]; !ok || key == "" {
			continue
		}
		c, ok := found[key]
		if !ok {
			c = &candidate{name: rec.ChannelName}
			found[key] = c
			order = append(order, key)
		}
		if c.url == "" {
			c.url = rec.ChannelURL
		}
	}
	for _, p := range r.pending {
		key := domain.ChannelKey(p.name)
		if _, ok := wanted[key]; !ok {
			continue
		}
		if c, ok := found[key]; ok {
			if c.url == "" {
				c.url = p.url
			}
			continue
		}
		p := p
		found[key] = &p
		order = append(order, key)
	}
	res.Candidates = len(order)

	undone := make(map[string]struct{})
	var pending []candidate
	for i, key := range order {
		c := found[key]
		if ctx.Err() != nil {
			for _, k := range order[i:] {
				pending = append(pending, *found[k])
			}
			break
		}
		fields := map[string]any{"channel": c.name, "channel_url": c.url}
		if c.url == "" {
			res.Failed++
			r.logger.Warn(fields, "undo_missing_channel_url")
			continue
		}
		if !r.unhider.UnhideChannel(ctx, c.url) {
			res.Failed++
			pending = append(pending, *c)
			r.logger.Warn(fields, "undo_failed")
			continue
		}
		res.Unhidden++
		undone[key] = struct{}{}
		r.logger.Info(fields, "undo_applied")
	}
	r.pending = pending
	if len(undone) == 0 {
		r.logDone(res)
		return res, nil
	}

	keptRecords := make([]domain.BlockRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := undone[domain.ChannelKey(rec.ChannelName)]; ok {
			res.RecordsDropped++
			continue
		}
		keptRecords = append(keptRecords, rec)
	}
	var keptUndo []string
	for _, l := range undoLines {
		if _, ok := undone[domain.ChannelKey(l)]; !ok {
			keptUndo = append(keptUndo, l)
		}
	}

	if err := r.commit(keptRecords, keptUndo); err != nil {
		return res, err
	}
	res.Changed = true
	r.logDone(res)
	return res, nil
}

// commit stages both rewrites before replacing either file. The log is
// replaced first: a leftover undo entry without records is inert.
func (r *Reconciler) commit(records []domain.BlockRecord, undoLines []string) error {
	stagedLog, err := r.log.StageRewrite(records)
	if err != nil {
		return fmt.Errorf("stage block log: %w", err)
	}
	stagedUndo, err := r.undo.StageRewrite(undoLines)
	if err != nil {
		_ = stagedLog.Discard()
		return fmt.Errorf("stage undo list: %w", err)
	}
	if err := stagedLog.Commit(); err != nil {
		_ = stagedUndo.Discard()
		return fmt.Errorf("commit block log: %w", err)
	}
	if err := stagedUndo.Commit(); err != nil {
		return fmt.Errorf("commit undo list: %w", err)
	}
	return nil
}

func (r *Reconciler) logDone(res Result) {
	r.logger.Info(map[string]any{
		"candidates":      res.Candidates,
		"unhidden":        res.Unhidden,
		"failed":          res.Failed,
		"records_dropped": res.RecordsDropped,
		"pending":         len(r.pending),
	}, "undo_reconciled")
}
