package pairing

import "strings"

// Scoring weights.
const (
	IndustryWeight = 50
	LanguageWeight = 30
	InterestWeight = 5
)

// levelPoints is indexed by the distance between two experience levels.
var levelPoints = [...]int{20, 10, 5}

// ExperienceLevels is the fixed ranking experience distance is measured on.
var ExperienceLevels = []string{
	"Student/Entry Level",
	"Junior (1-3 years)",
	"Mid-level (3-7 years)",
	"Senior (7+ years)",
	"Executive/Leadership",
	"Entrepreneur",
}

// Preferences is a participant's matching profile.
type Preferences struct {
	Industry  string
	Language  string
	Level     string
	Interests []string
}

// NormalizePreferences returns a cleaned copy of p: fields are trimmed and
// interests are de-duplicated in their original order. It returns nil when
// p is nil or lacks an industry or a language; such participants have no
// snapshot and are only ever paired by the fallback scan. An unknown level is
// kept and scores nothing.
func NormalizePreferences(p *Preferences) *Preferences {
	if p == nil {
		return nil
	}
	out := &Preferences{
		Industry: strings.TrimSpace(p.Industry),
		Language: strings.TrimSpace(p.Language),
		Level:    strings.TrimSpace(p.Level),
	}
	if out.Industry == "" || out.Language == "" {
		return nil
	}

	seen := make(map[string]struct{}, len(p.Interests))
	for _, tag := range p.Interests {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out.Interests = append(out.Interests, tag)
	}
	return out
}

// LevelRank returns the position of level in ExperienceLevels, or -1.
func LevelRank(level string) int {
	for i, l := range ExperienceLevels {
		if l == level {
			return i
		}
	}
	return -1
}

// Score rates how well two preference sets fit. It is symmetric for
// normalized inputs and depends on nothing but its arguments.
func Score(a, b Preferences) int {
	score := 0
	if a.Industry == b.Industry {
		score += IndustryWeight
	}
	if a.Language == b.Language {
		score += LanguageWeight
	}

	ra, rb := LevelRank(a.Level), LevelRank(b.Level)
	if ra >= 0 && rb >= 0 {
		d := ra - rb
		if d < 0 {
			d = -d
		}
		if d < len(levelPoints) {
			score += levelPoints[d]
		}
	}

	score += InterestWeight * len(SharedInterests(a.Interests, b.Interests))
	return score
}

// SharedInterests returns the tags of a that also appear in b, in a's order.
func SharedInterests(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(b))
	for _, tag := range b {
		set[tag] = struct{}{}
	}
	var shared []string
	for _, tag := range a {
		if _, ok := set[tag]; ok {
			shared = append(shared, tag)
		}
	}
	return shared
}
