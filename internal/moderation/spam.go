package moderation

import (
	"regexp"
	"strings"
)

// Spam kinds reported in FilterResult.Term when a spam check blocks a
// message.
const (
	SpamURL           = "url"
	SpamPhone         = "phone"
	SpamEmail         = "email"
	SpamContactHandle = "contact_handle"
	SpamCharFlood     = "char_flood"
	SpamWordFlood     = "word_flood"
)

const (
	charFloodRun = 5
	wordFloodRun = 3
)

// Patterns for contact details that move a conversation off the platform.
// Bare domains need a path so "v2.0" or "3.14" do not count as links; phone
// numbers must stand alone so short numbers inside a sentence pass.
var (
	linkRe   = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)
	phoneRe  = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9-]+(\.[a-z0-9-]+)*\.[a-z]{2,}`)
	handleRe = regexp.MustCompile(`(?i)\b(add|follow|dm|message)\s+me\s+(on|at)\s+(snap(chat)?|insta(gram)?|telegram|whatsapp|kik|discord)\b`)
)

type spamRule struct {
	kind    string
	message string
	match   func(text string) bool
}

// spamRules run in order; the first match decides the result.
var spamRules = []spamRule{
	{SpamURL, "Links can't be shared in chat", linkRe.MatchString},
	{SpamPhone, "Keep phone numbers to yourself", phoneRe.MatchString},
	{SpamEmail, "Email addresses can't be shared in chat", emailRe.MatchString},
	{SpamContactHandle, "Social handles can't be shared in chat", handleRe.MatchString},
	{SpamCharFlood, "Too many repeated characters", func(text string) bool {
		return hasRun([]rune(text), charFloodRun)
	}},
	{SpamWordFlood, "Too many repeated words", func(text string) bool {
		return hasRun(strings.Fields(strings.ToLower(text)), wordFloodRun)
	}},
}

// hasRun reports whether items holds n equal neighbours in a row.
func hasRun[T comparable](items []T, n int) bool {
	run := 0
	for i := range items {
		if i > 0 && items[i] == items[i-1] {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, r := range spamRules {
		if r.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: r.kind, Message: r.message}
		}
	}
	return FilterResult{}
}
