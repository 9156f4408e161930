// Package moderation screens display names and chat text for prohibited
// terms, contact details and flooding before they reach another participant.
package moderation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// AnonymousName replaces display names that fail screening.
const AnonymousName = "Anonymous"

// MaxNameChars is the longest display name kept; longer names are cut.
const MaxNameChars = 32

// FilterResult describes the outcome of a Check.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched term or spam check name
	Message string // shown to the sender
}

const blockedKeywordMessage = "Message contains prohibited content"

// defaultTerms is the built-in blocklist. Single words match whole tokens,
// multi-word terms match consecutive tokens.
var defaultTerms = []string{
	"kys",
	"kill yourself",
	"go die",
	"hang yourself",
	"send nudes",
	"show nudes",
	"child porn",
	"cp links",
	"heil hitler",
	"bomb threat",
	"rape you",
}

// Filter matches text against a blocklist and the spam patterns. It is
// read-only after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases [][]string
}

// NewFilter returns a Filter with the built-in blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms returns a Filter that blocks exactly terms. Blank terms
// are ignored.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		fields := strings.Fields(strings.ToLower(term))
		switch len(fields) {
		case 0:
		case 1:
			f.words[fields[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, fields)
		}
	}
	return f
}

// Check screens text. Blocklist hits win over spam patterns.
func (f *Filter) Check(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}
	lower := strings.ToLower(text)

	if term, ok := f.match(tokenizePlain(lower)); ok {
		return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term, Message: blockedKeywordMessage}
	}

	leet := tokenizeLeet(lower)
	for i, tok := range leet {
		leet[i] = normalizeLeet(tok)
	}
	if term, ok := f.match(leet); ok {
		return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term, Message: blockedKeywordMessage}
	}

	return f.checkSpamPatterns(text)
}

// CheckInterests returns the interests that pass Check, in order.
func (f *Filter) CheckInterests(interests []string) []string {
	clean := make([]string, 0, len(interests))
	for _, interest := range interests {
		if !f.Check(interest).Blocked {
			clean = append(clean, interest)
		}
	}
	return clean
}

// ScreenName returns the display name to show for name: trimmed, cut to
// MaxNameChars, or AnonymousName when it is empty or fails Check.
func (f *Filter) ScreenName(name string) string {
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) {
		return AnonymousName
	}
	if utf8.RuneCountInString(name) > MaxNameChars {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameChars]))
	}
	if name == "" || f.Check(name).Blocked {
		return AnonymousName
	}
	return name
}

func (f *Filter) match(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return tok, true
		}
	}
	for _, phrase := range f.phrases {
		if containsSequence(tokens, phrase) {
			return strings.Join(phrase, " "), true
		}
	}
	return "", false
}

func containsSequence(tokens, seq []string) bool {
	for i := 0; i+len(seq) <= len(tokens); i++ {
		found := true
		for j := range seq {
			if tokens[i+j] != seq[j] {
				found = false
				break
			}
		}
		if found {
			return true
		}
	}
	return false
}

// tokenizePlain splits on anything that is not a letter or digit.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits on whitespace only, so symbols standing in for letters
// stay inside their token. Sentence punctuation at the edges is dropped.
func tokenizeLeet(text string) []string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, `.,?;:"'()`); f != "" {
			out = append(out, f)
		}
	}
	return out
}

var leetReplacer = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
	"!", "i",
)

func normalizeLeet(s string) string {
	return leetReplacer.Replace(s)
}
