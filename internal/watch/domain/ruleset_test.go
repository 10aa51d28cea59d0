package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRuleSet_NormalizesAndDedups(t *testing.T) {
	rs := NewRuleSet(RuleSetInput{
		Keywords:          []string{" Prank ", "prank", "", "Scam"},
		Phrases:           []string{"Don't Recommend Channel"},
		BlockedChannels:   []string{"BadChan"},
		WhitelistChannels: []string{"  GoodChan  "},
		WhitelistPatterns: []string{"Science", "  "},
		UndoChannels:      []string{"Foo"},
	})

	assert.Equal(t, []string{"prank", "scam"}, rs.Keywords())
	assert.Equal(t, []string{"don't recommend channel"}, rs.Phrases())
	assert.Equal(t, []string{"science"}, rs.WhitelistPatterns())
	assert.True(t, rs.IsBlockedChannel("badchan"))
	assert.True(t, rs.IsWhitelistedChannel("GOODCHAN"))
	assert.True(t, rs.IsUndoChannel("foo"))
	assert.False(t, rs.IsBlockedChannel("goodchan"))
	assert.Equal(t, 1, rs.BlockedCount())
}

func TestNewRuleSet_DefaultLanguages(t *testing.T) {
	rs := NewRuleSet(RuleSetInput{})
	for _, l := range []string{"de", "en", "ja"} {
		assert.True(t, rs.IsAllowedLanguage(l), l)
	}
	assert.False(t, rs.IsAllowedLanguage("fr"))

	custom := NewRuleSet(RuleSetInput{AllowedLanguages: []string{"FR"}})
	assert.True(t, custom.IsAllowedLanguage("fr"))
	assert.False(t, custom.IsAllowedLanguage("en"))
}

func TestRuleSet_ZeroValue(t *testing.T) {
	var rs RuleSet
	assert.False(t, rs.IsBlockedChannel("x"))
	assert.True(t, rs.IsAllowedLanguage("en"))
	assert.Empty(t, rs.Keywords())
}

func TestRuleSet_WithBlockedChannelsIsCopy(t *testing.T) {
	base := NewRuleSet(RuleSetInput{BlockedChannels: []string{"a"}})
	derived := base.WithBlockedChannels("B", " ")

	assert.True(t, derived.IsBlockedChannel("a"))
	assert.True(t, derived.IsBlockedChannel("b"))
	assert.False(t, base.IsBlockedChannel("b"))
	assert.Equal(t, 2, derived.BlockedCount())
	assert.NotEqual(t, base.Revision(), derived.Revision())
}

func TestRuleSet_RevisionsAreUnique(t *testing.T) {
	a := NewRuleSet(RuleSetInput{})
	b := NewRuleSet(RuleSetInput{})
	assert.NotEqual(t, a.Revision(), b.Revision())
}

func TestRuleSet_AccessorsReturnCopies(t *testing.T) {
	rs := NewRuleSet(RuleSetInput{Keywords: []string{"x"}})
	kw := rs.Keywords()
	kw[0] = "mutated"
	assert.Equal(t, []string{"x"}, rs.Keywords())
}
