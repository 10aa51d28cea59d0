// Package blockstate holds the persisted block log plus the derived
// blocked-channel set, reconciled against the undo list on load.
package blockstate

import (
	"errors"
	"fmt"

	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// Snapshot is the reconciled persisted state.
type Snapshot struct {
	// Records are the surviving block log records in write order.
	Records []domain.BlockRecord
	// Blocked holds the distinct blocked channel names, first spelling seen.
	Blocked []string
	// Undo, Whitelist and Patterns are the raw plain lists.
	Undo      []string
	Whitelist []string
	Patterns  []string
	// Pruned counts records dropped because their channel is undo-listed.
	Pruned int
}

// IsBlocked reports whether name is in the blocked set (case-insensitive).
func (s Snapshot) IsBlocked(name string) bool {
	key := domain.ChannelKey(name)
	for _, b := range s.Blocked {
		if domain.ChannelKey(b) == key {
			return true
		}
	}
	return false
}

// Apply copies the persisted lists into in. Blocked channels are appended
// to any already present; the other lists are replaced.
func (s Snapshot) Apply(in *domain.RuleSetInput) {
	in.BlockedChannels = append(in.BlockedChannels, s.Blocked...)
	in.WhitelistChannels = append([]string(nil), s.Whitelist...)
	in.WhitelistPatterns = append([]string(nil), s.Patterns...)
	in.UndoChannels = append([]string(nil), s.Undo...)
}

// Options configures a Store. Log is required; nil lists are empty.
type Options struct {
	Log       domain.BlockLog
	Undo      domain.LineList
	Whitelist domain.LineList
	Patterns  domain.LineList
	Logger    logpkg.Logger
}

// Store reads and reconciles the persisted block state.
type Store struct {
	log       domain.BlockLog
	undo      domain.LineList
	whitelist domain.LineList
	patterns  domain.LineList
	logger    logpkg.Logger
}

// New returns a Store over opts.
func New(opts Options) (*Store, error) {
	if opts.Log == nil {
		return nil, errors.New("blockstate: block log is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &Store{
		log:       opts.Log,
		undo:      opts.Undo,
		whitelist: opts.Whitelist,
		patterns:  opts.Patterns,
		logger:    logger,
	}, nil
}

func loadList(l domain.LineList) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	return l.Load()
}

// FromPersistedLogs reads every persisted file and derives
// blocked = logChannels - undoChannels. When the subtraction drops any
// record the log is compacted to the survivors with a write-then-replace.
// A failed compaction is logged; the returned snapshot is still correct.
func (s *Store) FromPersistedLogs() (Snapshot, error) {
	records, err := s.log.Load()
	if err != nil {
		return Snapshot{}, fmt.Errorf("load block log: %w", err)
	}
	var snap Snapshot
	if snap.Undo, err = loadList(s.undo); err != nil {
		return Snapshot{}, fmt.Errorf("load undo list: %w", err)
	}
	if snap.Whitelist, err = loadList(s.whitelist); err != nil {
		return Snapshot{}, fmt.Errorf("load whitelist: %w", err)
	}
	if snap.Patterns, err = loadList(s.patterns); err != nil {
		return Snapshot{}, fmt.Errorf("load whitelist patterns: %w", err)
	}

	undo := make(map[string]struct{}, len(snap.Undo))
	for _, u := range snap.Undo {
		undo[domain.ChannelKey(u)] = struct{}{}
	}

	seen := make(map[string]struct{})
	snap.Records = make([]domain.BlockRecord, 0, len(records))
	for _, rec := range records {
		key := domain.ChannelKey(rec.ChannelName)
		if _, undone := undo[key]; undone && key != "" {
			snap.Pruned++
			continue
		}
		snap.Records = append(snap.Records, rec)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			snap.Blocked = append(snap.Blocked, rec.ChannelName)
		}
	}

	if snap.Pruned > 0 {
		if err := s.compact(snap.Records); err != nil {
			s.logger.Error(map[string]any{"error": err, "pruned": snap.Pruned}, "block_log_compact_failed")
		} else {
			s.logger.Info(map[string]any{"pruned": snap.Pruned, "kept": len(snap.Records)}, "block_log_compacted")
		}
	}
	s.logger.Debug(map[string]any{
		"records": len(snap.Records),
		"blocked": len(snap.Blocked),
		"undo":    len(snap.Undo),
	}, "block_state_loaded")
	return snap, nil
}

func (s *Store) compact(survivors []domain.BlockRecord) error {
	staged, err := s.log.StageRewrite(survivors)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// AppendBlockAction appends rec unconditionally; deduplication happens on read.
func (s *Store) AppendBlockAction(rec domain.BlockRecord) error {
	if err := s.log.Append(rec); err != nil {
		return fmt.Errorf("append block action: %w", err)
	}
	s.logger.Info(map[string]any{"channel": rec.ChannelName, "video_id": rec.ID}, "block_action_logged")
	return nil
}
