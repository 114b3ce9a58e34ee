package feedback

import (
	"regexp"
	"strings"
)

var (
	reListBullet   = regexp.MustCompile(`\n\s*[-*+]\s`)
	reHeading      = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	reExtraNewline = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown strips markdown decoration from model free text so it can be
// shown as plain text. List bullets after a newline become "• " and heading
// markers are removed only at the start of a line.
func CleanMarkdown(s string) string {
	if s == "" {
		return ""
	}
	s = reListBullet.ReplaceAllString(s, "\n• ")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = reHeading.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = reExtraNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// StripCodeFence removes an optional markdown code fence (```json ... ```)
// wrapped around a model reply.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		// Drop the info string ("json", "JSON", ...) up to the first newline.
		if i := strings.IndexByte(rest, '\n'); i >= 0 && !strings.ContainsAny(rest[:i], "{[") {
			rest = rest[i+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		s = rest
	}
	if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
