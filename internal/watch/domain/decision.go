package domain

import (
	"fmt"
	"strings"
)

// RuleKind identifies which classification rule produced a Decision.
type RuleKind uint8

const (
	// RuleNone is the default allow outcome; no rule matched.
	RuleNone RuleKind = iota
	// RuleMix blocks aggregation/mix titles and playlist URLs.
	RuleMix
	// RuleWhitelistChannel allows an exact whitelisted channel.
	RuleWhitelistChannel
	// RuleWhitelistPattern allows a whitelist substring in channel or title.
	RuleWhitelistPattern
	// RuleUndo allows a channel that was manually unblocked.
	RuleUndo
	// RuleScript blocks Arabic-script channel names or titles.
	RuleScript
	// RuleLanguage blocks text identified as a language outside the allowed set.
	RuleLanguage
	// RuleBlacklist blocks an exact blacklisted channel.
	RuleBlacklist
	// RulePhrase blocks a configured phrase in the title.
	RulePhrase
	// RuleKeyword blocks a configured keyword in the title.
	RuleKeyword
)

var ruleKindNames = [...]string{
	RuleNone:             "none",
	RuleMix:              "mix",
	RuleWhitelistChannel: "whitelist_channel",
	RuleWhitelistPattern: "whitelist_pattern",
	RuleUndo:             "undo",
	RuleScript:           "script",
	RuleLanguage:         "language",
	RuleBlacklist:        "blacklist",
	RulePhrase:           "phrase",
	RuleKeyword:          "keyword",
}

// String returns a stable string representation of the rule kind.
func (k RuleKind) String() string {
	if int(k) < len(ruleKindNames) {
		return ruleKindNames[k]
	}
	return fmt.Sprintf("RuleKind(%d)", k)
}

// ParseRuleKind converts a string into a RuleKind (case-insensitive).
func ParseRuleKind(s string) (RuleKind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, name := range ruleKindNames {
		if name == want {
			return RuleKind(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported RuleKind: %q", s)
}

// Decision is the verdict of the rule engine for one entry.
// Pure value type, no identity.
type Decision struct {
	Blocked bool     // true if the entry is objectionable
	Reason  string   // human-readable justification, empty on default allow
	Rule    RuleKind // rule that decided the outcome
}

// IsBlocked is a convenience accessor.
func (d Decision) IsBlocked() bool { return d.Blocked }

// Allow returns a non-blocking decision produced by rule.
func Allow(rule RuleKind, reason string) Decision {
	return Decision{Blocked: false, Reason: reason, Rule: rule}
}

// Block returns a blocking decision produced by rule.
func Block(rule RuleKind, reason string) Decision {
	return Decision{Blocked: true, Reason: reason, Rule: rule}
}

// EmptyDecision returns the default allow decision with no reason.
func EmptyDecision() Decision { return Decision{Blocked: false, Rule: RuleNone} }
