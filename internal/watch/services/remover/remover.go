// Package remover removes matched entries from the feed in mutation-safe
// order and records block actions.
package remover

import (
	"context"
	"sync"
	"time"

	"github.com/haukened/watchangel/internal/watch/common/clock"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/common/wait"
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/services/scanner"
)

// Defaults applied to zero Options fields.
const (
	DefaultButtonTimeout = 5 * time.Second
	DefaultPause         = 1 * time.Second
)

// BlockRecorder persists block actions. blockstate.Store implements it.
type BlockRecorder interface {
	AppendBlockAction(rec domain.BlockRecord) error
}

// Sweeper performs a full feed sweep. scanner.Scanner implements it.
type Sweeper interface {
	Sweep(ctx context.Context, stop func(domain.ContentEntry) bool) (scanner.Result, error)
}

// Matcher keeps the blocked entries. matcher.Pipeline implements it.
type Matcher interface {
	Match(entries []domain.ContentEntry, rs domain.RuleSet) []domain.MatchedEntry
}

// Summary counts the outcome of one removal batch.
type Summary struct {
	Removed  int
	Failed   int
	Skipped  int // whitelisted channels
	Recorded int // block records appended
}

// Options configures an Executor.
type Options struct {
	Browser       domain.FeedBrowser
	Waiter        *wait.Waiter
	Recorder      BlockRecorder
	Sweeper       Sweeper
	Matcher       Matcher
	ButtonTimeout time.Duration
	Pause         time.Duration // after each successful removal; negative disables
	Clock         clock.Clock
	Logger        logpkg.Logger
}

// Executor removes entries. It remembers, for the process lifetime, which
// channels already have a block record so each channel is recorded once.
type Executor struct {
	browser  domain.FeedBrowser
	waiter   *wait.Waiter
	recorder BlockRecorder
	sweeper  Sweeper
	matcher  Matcher
	timeout  time.Duration
	pause    time.Duration
	clock    clock.Clock
	logger   logpkg.Logger

	mu       sync.Mutex
	recorded map[string]struct{}
}

// New returns an Executor, filling defaults for zero options.
func New(opts Options) *Executor {
	e := &Executor{
		browser:  opts.Browser,
		waiter:   opts.Waiter,
		recorder: opts.Recorder,
		sweeper:  opts.Sweeper,
		matcher:  opts.Matcher,
		timeout:  opts.ButtonTimeout,
		pause:    opts.Pause,
		clock:    opts.Clock,
		logger:   opts.Logger,
		recorded: make(map[string]struct{}),
	}
	if e.waiter == nil {
		e.waiter = wait.New(wait.Options{Browser: opts.Browser})
	}
	if e.timeout <= 0 {
		e.timeout = DefaultButtonTimeout
	}
	switch {
	case e.pause < 0:
		e.pause = 0
	case e.pause == 0:
		e.pause = DefaultPause
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.logger == nil {
		e.logger = logpkg.NewNoopLogger()
	}
	return e
}

// MarkRecorded notes channels that already have a persisted block record.
func (e *Executor) MarkRecorded(channels ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range channels {
		if k := domain.ChannelKey(c); k != "" {
			e.recorded[k] = struct{}{}
		}
	}
}

// IsRecorded reports whether channel has a block record.
func (e *Executor) IsRecorded(channel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.recorded[domain.ChannelKey(channel)]
	return ok
}

// claim marks channel recorded and reports whether it was new.
func (e *Executor) claim(channel string) bool {
	k := domain.ChannelKey(channel)
	if k == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.recorded[k]; ok {
		return false
	}
	e.recorded[k] = struct{}{}
	return true
}

func (e *Executor) release(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.recorded, domain.ChannelKey(channel))
}

// RemoveMatched removes matches in reverse discovery order so removals
// never invalidate the handles of entries not yet processed. Entries of
// whitelisted channels are skipped. A failed entry is counted and the
// batch continues.
func (e *Executor) RemoveMatched(ctx context.Context, matches []domain.MatchedEntry, rs domain.RuleSet) Summary {
	var sum Summary
	for i := len(matches) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}
		m := matches[i]
		entry := m.Entry
		fields := map[string]any{"video_id": entry.ID, "channel": entry.ChannelName, "reason": m.Decision.Reason}

		if rs.IsWhitelistedChannel(entry.ChannelName) {
			sum.Skipped++
			e.logger.Info(fields, "removal_skipped_whitelisted")
			continue
		}
		if err := e.removeOne(ctx, entry); err != nil {
			sum.Failed++
			fields["error"] = err
			e.logger.Warn(fields, "removal_failed")
			continue
		}
		sum.Removed++
		e.logger.Info(fields, "entry_removed")

		if e.recordOnce(entry) {
			sum.Recorded++
		}
		if err := e.clock.Sleep(ctx, e.pause); err != nil {
			break
		}
	}
	e.logger.Info(map[string]any{
		"removed":  sum.Removed,
		"failed":   sum.Failed,
		"skipped":  sum.Skipped,
		"recorded": sum.Recorded,
		"total":    len(matches),
	}, "removal_done")
	return sum
}

func (e *Executor) removeOne(ctx context.Context, entry domain.ContentEntry) error {
	if err := e.browser.ScrollIntoView(ctx, entry.Handle); err != nil {
		return err
	}
	btn, err := e.waiter.Interactable(ctx, domain.TargetRemoveButton, entry.Handle, e.timeout)
	if err != nil {
		return err
	}
	return e.browser.Activate(ctx, btn)
}

// RecordBlock appends a block record for entry unless its channel already
// has one. It reports whether a record was written.
func (e *Executor) RecordBlock(entry domain.ContentEntry) bool {
	return e.recordOnce(entry)
}

func (e *Executor) recordOnce(entry domain.ContentEntry) bool {
	if e.recorder == nil || !e.claim(entry.ChannelName) {
		return false
	}
	rec := domain.NewBlockRecord(entry, e.clock.Now())
	if err := e.recorder.AppendBlockAction(rec); err != nil {
		e.release(entry.ChannelName)
		e.logger.Error(map[string]any{"channel": entry.ChannelName, "error": err}, "block_record_failed")
		return false
	}
	return true
}

// PurgeChannel sweeps the whole feed and removes every entry of channel,
// treating the channel as blocked regardless of its current rules. Entries
// whose title matches a whitelist pattern are kept: that rule is checked
// before the forced block.
func (e *Executor) PurgeChannel(ctx context.Context, channel string, rs domain.RuleSet) (Summary, error) {
	res, err := e.sweeper.Sweep(ctx, nil)
	if err != nil {
		return Summary{}, err
	}
	key := domain.ChannelKey(channel)
	var own []domain.ContentEntry
	for _, entry := range res.Entries {
		if domain.ChannelKey(entry.ChannelName) == key {
			own = append(own, entry)
		}
	}
	matches := e.matcher.Match(own, rs.WithBlockedChannels(channel))
	e.logger.Info(map[string]any{"channel": channel, "found": len(own), "matched": len(matches)}, "purge_channel")
	return e.RemoveMatched(ctx, matches, rs), nil
}
