// Package classify maps free-form crew messages to a demo-request intent and
// extracts the item under discussion.
package classify

import (
	"regexp"
	"strings"
)

// Intent is the classification result for one message.
type Intent struct {
	// IsRemovalRequest reports whether the message asks to remove or demo
	// something.
	IsRemovalRequest bool

	// Item is the extracted item name. Never empty; defaults to "item".
	Item string
}

var (
	intentRe = regexp.MustCompile(`(?i)\b(remove|demo|cabinet|vanity|tear[\s-]?out|approval|approve)\b`)

	// "remove the lower cabinets" -> "the lower cabinets"; capture stops at
	// sentence punctuation so trailing requests don't bleed into the item.
	removeRe = regexp.MustCompile(`(?i)\bremove\s+([^.,!?\n]+)`)

	literalRe = regexp.MustCompile(`(?i)\b(vanity|cabinet)\b`)

	// Slack user/channel mention markup, e.g. <@U123> or <#C456|general>.
	mentionRe = regexp.MustCompile(`<[@#][^>]+>`)
)

// Classify inspects raw message text. It never fails: the returned Item is
// always a usable string.
func Classify(text string) Intent {
	intent := Intent{
		IsRemovalRequest: intentRe.MatchString(text),
		Item:             "item",
	}

	if m := removeRe.FindStringSubmatch(text); m != nil {
		if item := cleanItem(m[1]); item != "" {
			intent.Item = item
			return intent
		}
	}
	if m := literalRe.FindString(text); m != "" {
		intent.Item = strings.ToLower(m)
	}
	return intent
}

func cleanItem(s string) string {
	s = mentionRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
