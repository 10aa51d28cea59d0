package decision

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haukened/watchangel/internal/watch/domain"
)

// fixedLang always reports code, counting calls.
type fixedLang struct {
	code  string
	err   error
	calls int
}

func (f *fixedLang) Identify(string) (string, error) {
	f.calls++
	return f.code, f.err
}

func engineWith(code string) (*Engine, *fixedLang) {
	l := &fixedLang{code: code}
	return New(Options{Identifier: l}), l
}

func TestDecide_Order(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{
		Keywords:          []string{"prank"},
		Phrases:           []string{"don't recommend channel"},
		BlockedChannels:   []string{"BadChan", "Undone"},
		WhitelistChannels: []string{"GoodChan"},
		WhitelistPatterns: []string{"science"},
		UndoChannels:      []string{"undone"},
	})
	e, _ := engineWith("en")

	cases := []struct {
		name    string
		title   string
		channel string
		url     string
		blocked bool
		rule    domain.RuleKind
		reason  string
	}{
		{"mix title", "Best Mix 2024", "GoodChan", "", true, domain.RuleMix, "mix or playlist"},
		{"mixtape false positive kept", "my mixtape", "x", "", true, domain.RuleMix, "mix or playlist"},
		{"playlist url", "song", "x", "/watch?v=abcde&list=RDabcde", true, domain.RuleMix, "mix or playlist"},
		{"radio url", "song", "x", "/watch?v=abcde&start_radio=1", true, domain.RuleMix, "mix or playlist"},
		{"whitelist beats keyword", "prank video", "goodchan", "", false, domain.RuleWhitelistChannel, "whitelisted"},
		{"pattern in channel", "prank", "Science Hub", "", false, domain.RuleWhitelistPattern, "whitelisted pattern: science"},
		{"pattern in title", "SCIENCE prank", "x", "", false, domain.RuleWhitelistPattern, "whitelisted pattern: science"},
		{"undo beats blacklist", "anything", "UNDONE", "", false, domain.RuleUndo, "manually unblocked"},
		{"arabic channel", "hello", "قناة", "", true, domain.RuleScript, "arabic channel name"},
		{"arabic title", "مرحبا بكم", "x", "", true, domain.RuleScript, "arabic title"},
		{"blacklist", "cooking", "badchan", "", true, domain.RuleBlacklist, "explicitly blocked channel"},
		{"phrase before keyword", "prank: I don't recommend channel X", "x", "", true, domain.RulePhrase, "matched phrase: don't recommend channel"},
		{"keyword", "Epic PRANK", "x", "", true, domain.RuleKeyword, "matched keyword: prank"},
		{"default", "cooking pasta", "x", "", false, domain.RuleNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Decide(rs, tc.title, tc.channel, tc.url)
			assert.Equal(t, tc.blocked, d.Blocked)
			assert.Equal(t, tc.rule, d.Rule)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestDecide_WhitelistDominatesKeywords(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{
		Keywords:          []string{"a", "e", "o", "prank"},
		Phrases:           []string{"scam"},
		WhitelistChannels: []string{"Trusted"},
	})
	e, _ := engineWith("fr")
	for _, title := range []string{"prank scam", "totally a scam prank compilation", "o"} {
		assert.False(t, e.Decide(rs, title, "trusted", "").Blocked, title)
	}
}

func TestDecide_PhraseProperty(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{Phrases: []string{"don't recommend channel"}})
	e, _ := engineWith("en")
	d := e.Decide(rs, "I don't recommend channel X", "someone", "")
	assert.True(t, d.Blocked)
	assert.Contains(t, d.Reason, "don't recommend channel")
}

func TestDecide_ArabicOnlyTitleIndependentOfIdentifier(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{})
	for _, lang := range []LanguageIdentifier{
		&fixedLang{code: "en"},
		&fixedLang{err: errors.New("down")},
		Whatlang{},
	} {
		e := New(Options{Identifier: lang})
		d := e.Decide(rs, "مرحبا", "chan", "")
		assert.True(t, d.Blocked)
		assert.Equal(t, "arabic title", d.Reason)
	}
}

func TestDecide_ShortTitlesNeverTripLanguage(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{})
	e, lang := engineWith("fr")
	for _, title := range []string{"Bonjour", "Bonjour mes", "🎉🎉 bonjour mes 🎉", "a b c d"} {
		d := e.Decide(rs, title, "x", "")
		assert.False(t, d.Blocked, title)
	}
	assert.Equal(t, 0, lang.calls, "identifier never consulted for short text")
}

func TestDecide_UnsupportedLanguage(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{})
	e, _ := engineWith("fr")
	d := e.Decide(rs, "bonjour tout le monde", "x", "")
	assert.True(t, d.Blocked)
	assert.Equal(t, domain.RuleLanguage, d.Rule)
	assert.Equal(t, "unsupported title language", d.Reason)

	d = e.Decide(rs, "hi", "Les Amis Du Monde", "")
	assert.Equal(t, "unsupported channel language", d.Reason)
}

func TestDecide_EnglishRemap(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{})
	for _, code := range []string{"so", "tl", "zu", "cy", "id"} {
		e, _ := engineWith(code)
		assert.False(t, e.Decide(rs, "what a great day", "x", "").Blocked, code)
		assert.True(t, e.Decide(rs, "hello world tonight", "x", "").Blocked, "no latin a: %s stays", code)
	}
}

func TestDecide_IdentifierFailureFallsBackToScript(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{})
	e := New(Options{Identifier: IdentifierFunc(func(string) (string, error) {
		return "", ErrUndetectable
	})})
	assert.False(t, e.Decide(rs, "some long english title", "x", "").Blocked)
}

func TestDecide_AllowedLanguagesConfigurable(t *testing.T) {
	rs := domain.NewRuleSet(domain.RuleSetInput{AllowedLanguages: []string{"fr"}})
	e, _ := engineWith("fr")
	assert.False(t, e.Decide(rs, "bonjour tout le monde", "x", "").Blocked)
}

func TestWhatlang_Identify(t *testing.T) {
	code, err := Whatlang{}.Identify("Der schnelle braune Fuchs springt über den faulen Hund und läuft davon")
	assert.NoError(t, err)
	assert.Equal(t, "de", code)
}

func TestHeuristics(t *testing.T) {
	assert.Equal(t, "ab", stripAstral("a😀b"))
	assert.False(t, detectable("ab c d"), "too few letters")
	assert.True(t, detectable("abc def ghi"))
	assert.True(t, hasArabic("x\u0750"), "Arabic Supplement")
	assert.False(t, hasArabic(strings.Repeat("x", 10)))
	assert.Equal(t, "en", remapEnglish("so", "A B"))
	assert.Equal(t, "fr", remapEnglish("fr", "a"))
}
