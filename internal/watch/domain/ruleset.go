package domain

import (
	"strings"
	"sync/atomic"
)

// DefaultAllowedLanguages lists the ISO 639-1 codes accepted when no
// explicit language allow-list is configured.
var DefaultAllowedLanguages = []string{"de", "en", "ja"}

var ruleSetRevision atomic.Uint64

// ChannelKey normalizes a channel name for case-insensitive set membership.
func ChannelKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RuleSetInput carries the raw lists a RuleSet is built from. Order matters
// only for Keywords, Phrases and WhitelistPatterns, which are matched in the
// order given.
type RuleSetInput struct {
	Keywords          []string
	Phrases           []string
	BlockedChannels   []string
	WhitelistChannels []string
	WhitelistPatterns []string
	UndoChannels      []string
	AllowedLanguages  []string
}

// RuleSet is the immutable configuration governing classification.
// All string comparisons are case-insensitive; values are stored lower-cased.
// Construct with NewRuleSet. The zero value blocks nothing and allows the
// default languages.
type RuleSet struct {
	keywords          []string
	phrases           []string
	whitelistPatterns []string
	blocked           map[string]struct{}
	whitelist         map[string]struct{}
	undo              map[string]struct{}
	languages         map[string]struct{}
	revision          uint64
}

// NewRuleSet builds a RuleSet from in. Blank entries are dropped and
// duplicates collapse to their first occurrence. An empty AllowedLanguages
// selects DefaultAllowedLanguages.
func NewRuleSet(in RuleSetInput) RuleSet {
	langs := in.AllowedLanguages
	if len(orderedLower(langs)) == 0 {
		langs = DefaultAllowedLanguages
	}
	return RuleSet{
		keywords:          orderedLower(in.Keywords),
		phrases:           orderedLower(in.Phrases),
		whitelistPatterns: orderedLower(in.WhitelistPatterns),
		blocked:           keySet(in.BlockedChannels),
		whitelist:         keySet(in.WhitelistChannels),
		undo:              keySet(in.UndoChannels),
		languages:         keySet(langs),
		revision:          ruleSetRevision.Add(1),
	}
}

// WithBlockedChannels returns a copy of rs with names added to the blocked
// channel set. rs itself is unchanged.
func (rs RuleSet) WithBlockedChannels(names ...string) RuleSet {
	blocked := make(map[string]struct{}, len(rs.blocked)+len(names))
	for k := range rs.blocked {
		blocked[k] = struct{}{}
	}
	for _, n := range names {
		if k := ChannelKey(n); k != "" {
			blocked[k] = struct{}{}
		}
	}
	out := rs
	out.blocked = blocked
	out.revision = ruleSetRevision.Add(1)
	return out
}

// Revision is a process-unique number identifying this RuleSet value.
// Derived copies get a new revision.
func (rs RuleSet) Revision() uint64 { return rs.revision }

// Keywords returns the lower-cased keywords in configured order.
func (rs RuleSet) Keywords() []string { return append([]string(nil), rs.keywords...) }

// Phrases returns the lower-cased phrases in configured order.
func (rs RuleSet) Phrases() []string { return append([]string(nil), rs.phrases...) }

// WhitelistPatterns returns the lower-cased whitelist substrings in configured order.
func (rs RuleSet) WhitelistPatterns() []string {
	return append([]string(nil), rs.whitelistPatterns...)
}

func (rs RuleSet) IsWhitelistedChannel(name string) bool { return has(rs.whitelist, name) }
func (rs RuleSet) IsBlockedChannel(name string) bool     { return has(rs.blocked, name) }
func (rs RuleSet) IsUndoChannel(name string) bool        { return has(rs.undo, name) }

// IsAllowedLanguage reports whether code is in the allowed language set.
// The zero RuleSet falls back to DefaultAllowedLanguages.
func (rs RuleSet) IsAllowedLanguage(code string) bool {
	if rs.languages == nil {
		for _, l := range DefaultAllowedLanguages {
			if l == ChannelKey(code) {
				return true
			}
		}
		return false
	}
	return has(rs.languages, code)
}

// BlockedCount returns the number of distinct blocked channels.
func (rs RuleSet) BlockedCount() int { return len(rs.blocked) }

func has(set map[string]struct{}, name string) bool {
	if len(set) == 0 {
		return false
	}
	_, ok := set[ChannelKey(name)]
	return ok
}

func keySet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := ChannelKey(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func orderedLower(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		k := ChannelKey(v)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
