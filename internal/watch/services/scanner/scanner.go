// Package scanner implements the FeedScanner: incremental retrieval of the
// rendered feed with per-entry deduplication and convergence detection.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/haukened/watchangel/internal/watch/common/clock"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// Defaults applied to zero Options fields.
const (
	DefaultMaxRounds     = 50
	DefaultMaxIdleRounds = 3
	DefaultPause         = 2 * time.Second
)

// StopReason explains why a sweep ended.
type StopReason uint8

const (
	// Exhausted: MaxIdleRounds consecutive rounds found nothing new.
	Exhausted StopReason = iota
	// TargetFound: the stop predicate matched an entry.
	TargetFound
	// RoundLimit: MaxRounds was reached.
	RoundLimit
	// SingleRound: a shallow scan, which never advances.
	SingleRound
)

func (r StopReason) String() string {
	switch r {
	case Exhausted:
		return "exhausted"
	case TargetFound:
		return "target_found"
	case RoundLimit:
		return "round_limit"
	case SingleRound:
		return "single_round"
	}
	return fmt.Sprintf("StopReason(%d)", r)
}

// Result is the outcome of one scan.
type Result struct {
	// Entries are distinct by id, in discovery order.
	Entries []domain.ContentEntry
	Rounds  int
	Reason  StopReason
	// Failed counts handles whose extraction failed; they are not retried.
	Failed int
}

// Options configures a Scanner.
type Options struct {
	Browser       domain.FeedBrowser
	FeedURL       string // navigated to at the start of every scan when set
	MaxRounds     int
	MaxIdleRounds int
	Pause         time.Duration // between rounds; negative disables
	Clock         clock.Clock
	Logger        logpkg.Logger
}

// Scanner reads the feed. It holds no state between scans.
type Scanner struct {
	browser  domain.FeedBrowser
	feedURL  string
	maxRound int
	maxIdle  int
	pause    time.Duration
	clock    clock.Clock
	logger   logpkg.Logger
}

// New returns a Scanner, filling defaults for zero options.
func New(opts Options) *Scanner {
	s := &Scanner{
		browser:  opts.Browser,
		feedURL:  opts.FeedURL,
		maxRound: opts.MaxRounds,
		maxIdle:  opts.MaxIdleRounds,
		pause:    opts.Pause,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if s.maxRound <= 0 {
		s.maxRound = DefaultMaxRounds
	}
	if s.maxIdle <= 0 {
		s.maxIdle = DefaultMaxIdleRounds
	}
	switch {
	case s.pause < 0:
		s.pause = 0
	case s.pause == 0:
		s.pause = DefaultPause
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = logpkg.NewNoopLogger()
	}
	return s
}

// pass carries the dedup state of one scan.
type pass struct {
	handles map[string]struct{} // raw handle keys already read
	ids     map[string]struct{}
	result  Result
}

func newPass() *pass {
	return &pass{handles: make(map[string]struct{}), ids: make(map[string]struct{})}
}

// round reads the rendered entries once. It returns the number of new
// distinct entries, the last handle seen, and whether stop matched.
func (s *Scanner) round(ctx context.Context, p *pass, stop func(domain.ContentEntry) bool) (int, domain.Handle, bool, error) {
	handles, err := s.browser.FindEntries(ctx)
	if err != nil {
		return 0, nil, false, fmt.Errorf("find entries: %w", err)
	}
	var last domain.Handle
	fresh := 0
	for _, h := range handles {
		last = h
		key := h.Key()
		if _, ok := p.handles[key]; ok {
			continue
		}
		p.handles[key] = struct{}{}

		raw, err := s.browser.Extract(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return fresh, last, false, ctx.Err()
			}
			p.result.Failed++
			s.logger.Debug(map[string]any{"handle": key, "error": err}, "scan_extract_failed")
			continue
		}
		entry, err := domain.NewContentEntry(raw, h)
		if err != nil {
			p.result.Failed++
			s.logger.Debug(map[string]any{"handle": key, "error": err}, "scan_extract_failed")
			continue
		}
		if _, dup := p.ids[entry.ID]; dup {
			continue
		}
		p.ids[entry.ID] = struct{}{}
		p.result.Entries = append(p.result.Entries, entry)
		fresh++
		if stop != nil && stop(entry) {
			return fresh, last, true, nil
		}
	}
	return fresh, last, false, nil
}

func (s *Scanner) open(ctx context.Context) error {
	if s.feedURL == "" {
		return nil
	}
	if err := s.browser.Navigate(ctx, s.feedURL); err != nil {
		return fmt.Errorf("navigate to feed: %w", err)
	}
	return nil
}

// Sweep accumulates distinct entries until MaxIdleRounds consecutive rounds
// add nothing, stop matches an entry, or MaxRounds is reached. The view is
// advanced and the scanner pauses between rounds. stop may be nil.
func (s *Scanner) Sweep(ctx context.Context, stop func(domain.ContentEntry) bool) (Result, error) {
	if err := s.open(ctx); err != nil {
		return Result{}, err
	}
	p := newPass()
	idle := 0
	for p.result.Rounds < s.maxRound {
		p.result.Rounds++
		fresh, last, found, err := s.round(ctx, p, stop)
		if err != nil {
			return p.result, err
		}
		if found {
			p.result.Reason = TargetFound
			s.logDone(p.result)
			return p.result, nil
		}
		if fresh == 0 {
			idle++
		} else {
			idle = 0
		}
		s.logger.Debug(map[string]any{
			"round": p.result.Rounds, "new": fresh, "total": len(p.result.Entries), "idle": idle,
		}, "scan_round")
		if idle >= s.maxIdle {
			p.result.Reason = Exhausted
			s.logDone(p.result)
			return p.result, nil
		}
		if err := s.browser.AdvanceView(ctx, last); err != nil {
			return p.result, fmt.Errorf("advance view: %w", err)
		}
		if err := s.clock.Sleep(ctx, s.pause); err != nil {
			return p.result, err
		}
	}
	p.result.Reason = RoundLimit
	s.logDone(p.result)
	return p.result, nil
}

// Shallow reads the currently rendered entries once without advancing.
func (s *Scanner) Shallow(ctx context.Context) (Result, error) {
	if err := s.open(ctx); err != nil {
		return Result{}, err
	}
	p := newPass()
	p.result.Rounds = 1
	p.result.Reason = SingleRound
	if _, _, _, err := s.round(ctx, p, nil); err != nil {
		return p.result, err
	}
	return p.result, nil
}

func (s *Scanner) logDone(r Result) {
	s.logger.Info(map[string]any{
		"entries": len(r.Entries),
		"rounds":  r.Rounds,
		"failed":  r.Failed,
		"reason":  r.Reason.String(),
	}, "scan_done")
}
