// Package watcher runs the continuous scan and react cycle over the recent
// feed window, and the single cleanup pass.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/watchangel/internal/watch/common/clock"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/repos/blockstate"
	"github.com/haukened/watchangel/internal/watch/repos/rules"
	"github.com/haukened/watchangel/internal/watch/services/channel"
	"github.com/haukened/watchangel/internal/watch/services/decision"
	"github.com/haukened/watchangel/internal/watch/services/remover"
	"github.com/haukened/watchangel/internal/watch/services/scanner"
	"github.com/haukened/watchangel/internal/watch/services/undo"
)

// Defaults applied to zero Options fields.
const (
	DefaultEntryPause = 1 * time.Second
	DefaultSettle     = 3 * time.Second
	DefaultCooldown   = 10 * time.Second
)

// StateLoader reads the reconciled persisted state. blockstate.Store implements it.
type StateLoader interface {
	FromPersistedLogs() (blockstate.Snapshot, error)
}

// RulesLoader reads the static rule lists. rules.Store implements it.
type RulesLoader interface {
	Load() (rules.Lists, error)
}

// ChangeDetector reports rule file changes. rules.Watcher implements it.
type ChangeDetector interface {
	Changed() bool
}

// FeedScanner reads the feed. scanner.Scanner implements it.
type FeedScanner interface {
	Shallow(ctx context.Context) (scanner.Result, error)
	Sweep(ctx context.Context, stop func(domain.ContentEntry) bool) (scanner.Result, error)
}

// Matcher keeps the blocked entries. matcher.Pipeline implements it.
type Matcher interface {
	Match(entries []domain.ContentEntry, rs domain.RuleSet) []domain.MatchedEntry
}

// Remover mutates the feed and records blocks. remover.Executor implements it.
type Remover interface {
	MarkRecorded(channels ...string)
	RecordBlock(entry domain.ContentEntry) bool
	RemoveMatched(ctx context.Context, matches []domain.MatchedEntry, rs domain.RuleSet) remover.Summary
	PurgeChannel(ctx context.Context, channel string, rs domain.RuleSet) (remover.Summary, error)
}

// Blocker runs the channel block workflow. channel.Controller implements it.
type Blocker interface {
	BlockChannel(ctx context.Context, url string) channel.BlockResult
}

// Archiver stores thumbnails of suspicious entries. thumbnail.Client implements it.
type Archiver interface {
	Enabled() bool
	Archive(ctx context.Context, id string) (path string, hash string, err error)
}

// Reconciler applies the undo list. undo.Reconciler implements it.
type Reconciler interface {
	Reconcile(ctx context.Context) (undo.Result, error)
}

// State is the phase the loop is in.
type State int32

const (
	Idle State = iota
	Scanning
	Classifying
	Acting
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Classifying:
		return "classifying"
	case Acting:
		return "acting"
	case Sleeping:
		return "sleeping"
	}
	return fmt.Sprintf("State(%d)", s)
}

// Options configures a Loop. Archiver, Changes and Reconciler are optional.
type Options struct {
	State     StateLoader
	Rules     RulesLoader
	Changes   ChangeDetector
	Languages []string

	Scanner  FeedScanner
	Decider  decision.Decider
	Matcher  Matcher
	Remover  Remover
	Blocker  Blocker
	Archiver Archiver
	Seen     *SeenSet

	// Reconciler runs before every cycle and cleanup pass.
	Reconciler Reconciler

	EntryPause time.Duration // negative disables
	Settle     time.Duration // negative disables
	Cooldown   time.Duration // negative disables
	Clock      clock.Clock
	Logger     logpkg.Logger
}

// CycleStats counts the work of one cycle.
type CycleStats struct {
	Scanned    int
	Skipped    int // already seen
	Purged     int // already blocked channels purged
	Suspicious int
	Removed    int
}

// Loop scans the top of the feed in cycles and reacts to new entries.
type Loop struct {
	opts   Options
	state  atomic.Int32
	lists  *rules.Lists
	seen   *SeenSet
	clock  clock.Clock
	logger logpkg.Logger
}

// New validates opts and returns a Loop.
func New(opts Options) (*Loop, error) {
	if opts.State == nil || opts.Rules == nil || opts.Scanner == nil || opts.Decider == nil ||
		opts.Matcher == nil || opts.Remover == nil || opts.Blocker == nil {
		return nil, errors.New("watcher: state, rules, scanner, decider, matcher, remover and blocker are required")
	}
	l := &Loop{opts: opts, seen: opts.Seen, clock: opts.Clock, logger: opts.Logger}
	if l.seen == nil {
		seen, err := NewSeenSet(DefaultSeenCapacity)
		if err != nil {
			return nil, err
		}
		l.seen = seen
	}
	l.opts.EntryPause = pause(opts.EntryPause, DefaultEntryPause)
	l.opts.Settle = pause(opts.Settle, DefaultSettle)
	l.opts.Cooldown = pause(opts.Cooldown, DefaultCooldown)
	if l.clock == nil {
		l.clock = clock.RealClock{}
	}
	if l.logger == nil {
		l.logger = logpkg.NewNoopLogger()
	}
	return l, nil
}

func pause(v, def time.Duration) time.Duration {
	switch {
	case v < 0:
		return 0
	case v == 0:
		return def
	}
	return v
}

// State returns the current phase.
func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) enter(s State) { l.state.Store(int32(s)) }

// Run cycles until ctx is cancelled. Cancellation is only observed between
// cycles and during the cooldown: a started cycle always runs to its end.
// A failed cycle is logged and the loop continues, unless the browser
// session is gone.
func (l *Loop) Run(ctx context.Context) error {
	defer l.enter(Idle)
	for {
		if ctx.Err() != nil {
			return nil
		}
		id := uuid.NewString()
		stats, err := l.Cycle(context.WithoutCancel(ctx), id)
		fields := map[string]any{
			"cycle":      id,
			"scanned":    stats.Scanned,
			"skipped":    stats.Skipped,
			"purged":     stats.Purged,
			"suspicious": stats.Suspicious,
			"removed":    stats.Removed,
		}
		if err != nil {
			fields["error"] = err
			l.logger.Error(fields, "watch_cycle_failed")
			if errors.Is(err, domain.ErrSessionUnavailable) {
				return err
			}
		} else {
			l.logger.Info(fields, "watch_cycle_done")
		}
		l.enter(Sleeping)
		if err := l.clock.Sleep(ctx, l.opts.Cooldown); err != nil {
			return nil
		}
	}
}

// reconcile applies pending undo entries before the block log is read.
func (l *Loop) reconcile(ctx context.Context, id string) {
	if l.opts.Reconciler == nil {
		return
	}
	if _, err := l.opts.Reconciler.Reconcile(ctx); err != nil {
		l.logger.Warn(map[string]any{"cycle": id, "error": err}, "undo_reconcile_failed")
	}
}

// ruleSet reloads persisted state and, on first use or after a rule file
// change, the static lists.
func (l *Loop) ruleSet() (domain.RuleSet, error) {
	snap, err := l.opts.State.FromPersistedLogs()
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("load block state: %w", err)
	}
	changed := l.opts.Changes != nil && l.opts.Changes.Changed()
	if l.lists == nil || changed {
		lists, err := l.opts.Rules.Load()
		if err != nil {
			if l.lists == nil {
				return domain.RuleSet{}, fmt.Errorf("load rules: %w", err)
			}
			l.logger.Warn(map[string]any{"error": err}, "rules_refresh_failed")
		} else {
			if l.lists != nil {
				l.logger.Info(nil, "rules_refreshed")
			}
			l.lists = &lists
		}
	}
	l.opts.Remover.MarkRecorded(snap.Blocked...)
	return BuildRuleSet(*l.lists, snap, l.opts.Languages), nil
}

// alreadyBlocked reports whether entries of name are removed without
// classification.
func alreadyBlocked(rs domain.RuleSet, name string) bool {
	return rs.IsBlockedChannel(name) && !rs.IsUndoChannel(name) && !rs.IsWhitelistedChannel(name)
}

// Cycle runs one scan and react cycle over the recent feed window.
func (l *Loop) Cycle(ctx context.Context, id string) (CycleStats, error) {
	var stats CycleStats
	l.reconcile(ctx, id)
	rs, err := l.ruleSet()
	if err != nil {
		return stats, err
	}

	l.enter(Scanning)
	res, err := l.opts.Scanner.Shallow(ctx)
	if err != nil {
		return stats, fmt.Errorf("scan feed: %w", err)
	}
	stats.Scanned = len(res.Entries)

	// channels whose entries were already purged in this cycle
	purged := make(map[string]struct{})
	for _, entry := range res.Entries {
		if !l.seen.Add(entry.ID) {
			stats.Skipped++
			continue
		}
		fields := map[string]any{"cycle": id, "video_id": entry.ID, "channel": entry.ChannelName}
		key := domain.ChannelKey(entry.ChannelName)
		if _, done := purged[key]; done {
			continue
		}

		if alreadyBlocked(rs, entry.ChannelName) {
			purged[key] = struct{}{}
			l.enter(Acting)
			l.logger.Info(fields, "channel_already_blocked")
			sum, err := l.opts.Remover.PurgeChannel(ctx, entry.ChannelName, rs)
			if err != nil {
				fields["error"] = err
				l.logger.Warn(fields, "purge_failed")
			}
			stats.Purged++
			stats.Removed += sum.Removed
			l.sleep(ctx, l.opts.EntryPause)
			continue
		}

		l.enter(Classifying)
		d := l.opts.Decider.Decide(rs, entry.Title, entry.ChannelName, entry.SourceURL)
		if !d.IsBlocked() {
			l.logger.Debug(fields, "entry_ok")
			continue
		}
		l.enter(Acting)
		purged[key] = struct{}{}
		stats.Suspicious++
		stats.Removed += l.handleSuspicious(ctx, id, entry, d, rs)
		rs = rs.WithBlockedChannels(entry.ChannelName)
		l.sleep(ctx, l.opts.EntryPause)
	}
	return stats, nil
}

// handleSuspicious records the block, archives the thumbnail, blocks the
// channel and purges its entries. It returns the number of removed entries.
func (l *Loop) handleSuspicious(ctx context.Context, id string, entry domain.ContentEntry, d domain.Decision, rs domain.RuleSet) int {
	fields := map[string]any{
		"cycle":       id,
		"video_id":    entry.ID,
		"channel":     entry.ChannelName,
		"channel_url": entry.ChannelURL,
		"rule":        d.Rule.String(),
		"reason":      d.Reason,
	}
	l.logger.Warn(fields, "suspicious_entry")
	l.opts.Remover.RecordBlock(entry)

	if a := l.opts.Archiver; a != nil && a.Enabled() {
		if _, _, err := a.Archive(ctx, entry.ID); err != nil {
			l.logger.Warn(map[string]any{"video_id": entry.ID, "error": err}, "thumbnail_archive_failed")
		}
	}

	if entry.ChannelURL != "" {
		res := l.opts.Blocker.BlockChannel(ctx, entry.ChannelURL)
		fields["outcome"] = res.Outcome.String()
		l.logger.Info(fields, "channel_blocked")
	} else {
		l.logger.Warn(fields, "channel_url_missing")
	}
	l.sleep(ctx, l.opts.Settle)

	sum, err := l.opts.Remover.PurgeChannel(ctx, entry.ChannelName, rs)
	if err != nil {
		l.logger.Warn(map[string]any{"channel": entry.ChannelName, "error": err}, "purge_failed")
	}
	return sum.Removed
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	_ = l.clock.Sleep(ctx, d)
}

// Cleanup is the single cleanup pass: a full sweep of the feed, matched
// against the current rules, with every match removed.
func (l *Loop) Cleanup(ctx context.Context) (remover.Summary, error) {
	defer l.enter(Idle)
	l.reconcile(ctx, "cleanup")
	rs, err := l.ruleSet()
	if err != nil {
		return remover.Summary{}, err
	}
	l.enter(Scanning)
	res, err := l.opts.Scanner.Sweep(ctx, nil)
	if err != nil {
		return remover.Summary{}, fmt.Errorf("sweep feed: %w", err)
	}
	l.enter(Classifying)
	matches := l.opts.Matcher.Match(res.Entries, rs)
	l.enter(Acting)
	sum := l.opts.Remover.RemoveMatched(ctx, matches, rs)
	l.logger.Info(map[string]any{
		"entries": len(res.Entries),
		"matched": len(matches),
		"removed": sum.Removed,
		"failed":  sum.Failed,
	}, "cleanup_done")
	return sum, nil
}
