package watcher

import (
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/repos/blockstate"
	"github.com/haukened/watchangel/internal/watch/repos/rules"
)

// BuildRuleSet merges the static rule lists with the reconciled persisted
// state. The static channel blacklist and the log-derived blocked set are
// combined; the whitelist, patterns and undo list come from the snapshot.
// An empty languages list keeps the default allowed languages.
func BuildRuleSet(lists rules.Lists, snap blockstate.Snapshot, languages []string) domain.RuleSet {
	in := domain.RuleSetInput{
		Keywords:         lists.Keywords,
		Phrases:          lists.Phrases,
		BlockedChannels:  append([]string(nil), lists.BlockedChannels...),
		AllowedLanguages: languages,
	}
	snap.Apply(&in)
	return domain.NewRuleSet(in)
}
