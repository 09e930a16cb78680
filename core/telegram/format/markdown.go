package format

import (
	"fmt"
	"regexp"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

var (
	mdV1Re     = regexp.MustCompile("([_*`\\[])")
	mdV2Re     = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!\\])`)
	mdV2CodeRe = regexp.MustCompile("([`\\\\])")
	mdV2LinkRe = regexp.MustCompile(`([)\\])`)
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
// For V2, entityType "code"/"pre" and "text_link" use the narrower escaping
// Telegram expects inside those entities.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		switch entityType {
		case "code", "pre":
			return mdV2CodeRe.ReplaceAllString(text, `\$1`), nil
		case "text_link":
			return mdV2LinkRe.ReplaceAllString(text, `\$1`), nil
		}
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}
