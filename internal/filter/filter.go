// Package filter decides whether a clip is likely in the target language.
//
// The decision is a best-effort heuristic over a clip title, its creator name
// and the broadcaster's channel description. It is not a language detection
// model: weak or missing signals resolve to inclusion.
package filter

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

// Rules holds the replaceable tables the heuristic runs on.
type Rules struct {
	// LocaleIndicators are matched as substrings of the lowercased broadcaster description.
	LocaleIndicators []string
	// ExcludePatterns reject a clip when any matches the lowercased title.
	ExcludePatterns []*regexp.Regexp
	// IndicatorWords are counted as substrings of the lowercased title.
	IndicatorWords []string
	// MinIndicatorCount indicator words make the title conclusive on its own.
	MinIndicatorCount int
	// CreatorNamePattern marks creator names that, with one indicator word, are conclusive.
	CreatorNamePattern *regexp.Regexp
}

// nonLetter is a word boundary that also holds for non-ASCII letters.
const nonLetter = `[^\p{L}\p{N}_]`

// EnglishRules returns the rules for English clips.
func EnglishRules() Rules {
	return Rules{
		LocaleIndicators: []string{"english", "usa", "america", "canada", "uk", "australia"},
		ExcludePatterns: []*regexp.Regexp{
			// Japanese, CJK ideographs, Hangul
			regexp.MustCompile(`[\x{3040}-\x{309f}\x{30a0}-\x{30ff}\x{4e00}-\x{9faf}\x{ac00}-\x{d7af}]`),
			// Cyrillic
			regexp.MustCompile(`[\x{0400}-\x{04ff}]`),
			// Arabic
			regexp.MustCompile(`[\x{0600}-\x{06ff}]`),
			// Thai
			regexp.MustCompile(`[\x{0e00}-\x{0e7f}]`),
			regexp.MustCompile(`(?:^|` + nonLetter + `)(?:que|como|para|con|una|les|des|der|die|das|und|кто|что|как|где)(?:$|` + nonLetter + `)`),
		},
		IndicatorWords: []string{
			"the", "and", "with", "when", "what", "how", "why", "this", "that",
			"funny", "epic", "insane", "crazy", "best", "worst", "first", "last",
			"reaction", "moment", "highlight", "fail", "win", "clutch", "play",
			"game", "stream", "chat", "viewer", "donate", "sub", "follow",
		},
		MinIndicatorCount:  2,
		CreatorNamePattern: regexp.MustCompile(`^[a-zA-Z0-9_]+$`),
	}
}

var supported = []language.Tag{language.English}

var matcher = language.NewMatcher(supported)

// RulesFor returns the rules for tag. Regional variants match their base language.
func RulesFor(tag language.Tag) (Rules, error) {
	_, idx, conf := matcher.Match(tag)
	if conf < language.High {
		return Rules{}, errs.Newf(errs.ErrValidation, "no content filter rules for language %q", tag.String())
	}
	switch supported[idx] {
	case language.English:
		return EnglishRules(), nil
	}
	return Rules{}, errs.Newf(errs.ErrValidation, "no content filter rules for language %q", tag.String())
}

// Filter applies Rules. It keeps no state and is safe for concurrent use.
type Filter struct {
	rules Rules
}

func New(rules Rules) *Filter {
	return &Filter{rules: rules}
}

// IsLikelyTargetLanguage runs the ordered checks; the first conclusive one wins.
// b may be nil when no broadcaster metadata is known.
func (f *Filter) IsLikelyTargetLanguage(clip twitch.Clip, b *twitch.Broadcaster) bool {
	if b != nil {
		desc := strings.ToLower(b.Description)
		for _, indicator := range f.rules.LocaleIndicators {
			if strings.Contains(desc, indicator) {
				return true
			}
		}
	}

	title := strings.ToLower(clip.Title)
	for _, pattern := range f.rules.ExcludePatterns {
		if pattern.MatchString(title) {
			return false
		}
	}

	count := f.indicatorCount(title)
	if count >= f.rules.MinIndicatorCount {
		return true
	}

	if count >= 1 && f.rules.CreatorNamePattern != nil &&
		f.rules.CreatorNamePattern.MatchString(strings.ToLower(clip.CreatorName)) {
		return true
	}

	return true
}

// indicatorCount counts distinct indicator words contained in title.
func (f *Filter) indicatorCount(title string) int {
	count := 0
	for _, word := range f.rules.IndicatorWords {
		if strings.Contains(title, word) {
			count++
		}
	}
	return count
}
