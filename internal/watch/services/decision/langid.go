package decision

import (
	"errors"

	"github.com/abadojack/whatlanggo"
)

// ErrUndetectable is returned by a LanguageIdentifier that cannot name a language.
var ErrUndetectable = errors.New("language undetectable")

// LanguageIdentifier names the language of a text as an ISO 639-1 code.
type LanguageIdentifier interface {
	Identify(text string) (string, error)
}

// Whatlang identifies languages with whatlanggo's trigram model.
type Whatlang struct{}

// Identify returns the ISO 639-1 code of the most likely language of text.
func (Whatlang) Identify(text string) (string, error) {
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return "", ErrUndetectable
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", ErrUndetectable
	}
	return code, nil
}

// IdentifierFunc adapts a function to LanguageIdentifier.
type IdentifierFunc func(text string) (string, error)

func (f IdentifierFunc) Identify(text string) (string, error) { return f(text) }
