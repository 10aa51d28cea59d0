// Package decision classifies one feed entry against a RuleSet with an
// ordered, first-match rule chain.
package decision

import (
	"strings"

	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// Decider classifies an entry. Engine and Cached implement it.
type Decider interface {
	Decide(rs domain.RuleSet, title, channelName, sourceURL string) domain.Decision
}

// Options configures an Engine.
type Options struct {
	// Identifier names the language of a text. Nil selects Whatlang.
	Identifier LanguageIdentifier
	Logger     logpkg.Logger
}

// Engine is stateless apart from its collaborators; it never mutates
// persisted state.
type Engine struct {
	lang   LanguageIdentifier
	logger logpkg.Logger
}

// New returns an Engine.
func New(opts Options) *Engine {
	lang := opts.Identifier
	if lang == nil {
		lang = Whatlang{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &Engine{lang: lang, logger: logger}
}

// Decide evaluates the rules in priority order; the first match wins.
//
//  1. mix title or playlist URL: block
//  2. whitelisted channel: allow
//  3. whitelist pattern in channel name or title: allow
//  4. undo-listed channel: allow (beats a stale blacklist entry)
//  5. Arabic script in channel name, then title: block
//  6. unsupported language in channel name, then title: block
//  7. blacklisted channel: block
//  8. phrase, then keyword, in title: block
//  9. allow with no reason
func (e *Engine) Decide(rs domain.RuleSet, title, channelName, sourceURL string) domain.Decision {
	name := domain.ChannelKey(channelName)
	lowerTitle := strings.ToLower(strings.TrimSpace(title))

	if isMix(lowerTitle, sourceURL) {
		return domain.Block(domain.RuleMix, "mix or playlist")
	}
	if rs.IsWhitelistedChannel(name) {
		return domain.Allow(domain.RuleWhitelistChannel, "whitelisted")
	}
	for _, p := range rs.WhitelistPatterns() {
		if strings.Contains(name, p) || strings.Contains(lowerTitle, p) {
			return domain.Allow(domain.RuleWhitelistPattern, "whitelisted pattern: "+p)
		}
	}
	if rs.IsUndoChannel(name) {
		return domain.Allow(domain.RuleUndo, "manually unblocked")
	}
	if hasArabic(channelName) {
		return domain.Block(domain.RuleScript, "arabic channel name")
	}
	if hasArabic(title) {
		return domain.Block(domain.RuleScript, "arabic title")
	}
	if e.unsupportedLanguage(rs, channelName) {
		return domain.Block(domain.RuleLanguage, "unsupported channel language")
	}
	if e.unsupportedLanguage(rs, title) {
		return domain.Block(domain.RuleLanguage, "unsupported title language")
	}
	if rs.IsBlockedChannel(name) {
		return domain.Block(domain.RuleBlacklist, "explicitly blocked channel")
	}
	for _, p := range rs.Phrases() {
		if strings.Contains(lowerTitle, p) {
			return domain.Block(domain.RulePhrase, "matched phrase: "+p)
		}
	}
	for _, k := range rs.Keywords() {
		if strings.Contains(lowerTitle, k) {
			return domain.Block(domain.RuleKeyword, "matched keyword: "+k)
		}
	}
	return domain.EmptyDecision()
}

// unsupportedLanguage reports whether text is confidently in a language
// outside the allowed set. Short text is never flagged. When the identifier
// fails only the Arabic script check applies.
func (e *Engine) unsupportedLanguage(rs domain.RuleSet, text string) bool {
	cleaned := stripAstral(text)
	if !detectable(cleaned) {
		return false
	}
	code, err := e.lang.Identify(cleaned)
	if err != nil {
		e.logger.Debug(map[string]any{"text": cleaned, "error": err}, "language_identify_failed")
		return hasArabic(text)
	}
	code = remapEnglish(code, cleaned)
	e.logger.Debug(map[string]any{"text": cleaned, "lang": code}, "language_detected")
	return !rs.IsAllowedLanguage(code)
}

var _ Decider = (*Engine)(nil)
