// Package text prepares synthesis input for the generative engine.
//
// The engine is sensitive to ragged whitespace and typographic
// punctuation, so input is reduced to a single-line, plainly punctuated
// form before it reaches the model.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const whitespaceRegexPattern = `\s+`

// Typographic characters folded to their plain equivalents.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Preparer normalizes synthesis text.
type Preparer struct {
	whitespacePattern *regexp.Regexp
	typographReplacer *strings.Replacer
}

// NewPreparer creates a preparer with compiled patterns and replacers.
func NewPreparer() *Preparer {
	return &Preparer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		typographReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Prepare collapses whitespace, folds typographic punctuation, and ensures
// a terminal sentence ending. Empty input stays empty.
func (p *Preparer) Prepare(input string) string {
	if input == "" {
		return input
	}

	cleaned := p.whitespacePattern.ReplaceAllString(input, " ")
	cleaned = p.typographReplacer.Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)

	return ensureSentenceEnding(cleaned)
}

// ensureSentenceEnding appends a period when the text does not already end
// with sentence punctuation.
func ensureSentenceEnding(input string) string {
	if input == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(input)
	if !unicode.IsPunct(lastChar) {
		return input + "."
	}

	switch lastChar {
	case '.', '!', '?':
		return input
	default:
		return input + "."
	}
}
