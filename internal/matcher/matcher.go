package matcher

import (
	"regexp"
	"strings"
)

// Verdict classifies a message
type Verdict int

const (
	NoHit Verdict = iota
	BannedWordHit
	SevereHit
	LinkHit
)

func (v Verdict) String() string {
	switch v {
	case BannedWordHit:
		return "banned_word"
	case SevereHit:
		return "severe"
	case LinkHit:
		return "link"
	default:
		return "clean"
	}
}

// NeedsApproval reports whether the verdict is routed to the owner
func (v Verdict) NeedsApproval() bool {
	return v == SevereHit || v == LinkHit
}

// Reason is the human-readable reason shown on approval prompts
func (v Verdict) Reason() string {
	switch v {
	case SevereHit:
		return "Severe trigger detected"
	case LinkHit:
		return "Link detected"
	default:
		return ""
	}
}

// LinkPattern recognizes http and https URLs
var LinkPattern = regexp.MustCompile(`(?i)https?://\S+`)

// Rules holds the mutable sets a message is checked against.
// It is owned by the bot and shared with whatever mutates it.
type Rules struct {
	Banned *WordSet
	Severe *WordSet
	Link   *regexp.Regexp
}

// NewRules builds rules from initial banned words and severe triggers
func NewRules(banned, severe []string) *Rules {
	return &Rules{
		Banned: NewWordSet(banned...),
		Severe: NewWordSet(severe...),
		Link:   LinkPattern,
	}
}

// Result is the outcome of Classify. Match holds the phrase or URL that hit.
type Result struct {
	Verdict Verdict
	Match   string
}

// Classify checks text in fixed precedence: banned word, severe trigger, link.
func Classify(text string, rules *Rules) Result {
	if rules == nil {
		return Result{Verdict: NoHit}
	}
	lowered := strings.ToLower(text)

	if rules.Banned != nil {
		if w, ok := rules.Banned.FindIn(lowered); ok {
			return Result{Verdict: BannedWordHit, Match: w}
		}
	}
	if rules.Severe != nil {
		if w, ok := rules.Severe.FindIn(lowered); ok {
			return Result{Verdict: SevereHit, Match: w}
		}
	}
	link := rules.Link
	if link == nil {
		link = LinkPattern
	}
	if u := link.FindString(lowered); u != "" {
		return Result{Verdict: LinkHit, Match: u}
	}
	return Result{Verdict: NoHit}
}
