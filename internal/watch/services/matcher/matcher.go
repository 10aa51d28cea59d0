// Package matcher implements the MatchPipeline: classify distinct entries
// and keep only the objectionable ones.
package matcher

import (
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/services/decision"
)

// Pipeline applies a Decider to scanned entries.
type Pipeline struct {
	decider decision.Decider
	logger  logpkg.Logger
}

// New returns a Pipeline deciding with d.
func New(d decision.Decider, logger logpkg.Logger) *Pipeline {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &Pipeline{decider: d, logger: logger}
}

// Match deduplicates entries by id (first occurrence kept), decides each
// against rs and returns the blocked ones in input order. Channel-level
// suppression such as whitelisting at removal time is left to the caller.
func (p *Pipeline) Match(entries []domain.ContentEntry, rs domain.RuleSet) []domain.MatchedEntry {
	seen := make(map[string]struct{}, len(entries))
	var out []domain.MatchedEntry
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}

		d := p.decider.Decide(rs, e.Title, e.ChannelName, e.SourceURL)
		m, err := domain.NewMatchedEntry(e, d)
		if err != nil {
			continue
		}
		p.logger.Debug(map[string]any{
			"video_id": e.ID,
			"channel":  e.ChannelName,
			"rule":     d.Rule.String(),
			"reason":   d.Reason,
		}, "entry_matched")
		out = append(out, m)
	}
	p.logger.Info(map[string]any{"entries": len(seen), "matched": len(out)}, "match_done")
	return out
}
