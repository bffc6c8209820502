package pipeline

import (
	"regexp"
	"strings"
)

// markdownLink matches [label](url). Labels may be empty, targets may not.
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)

var markupStripper = strings.NewReplacer(
	"**", "",
	"*", "",
	"__", "",
	"```", "",
	"`", "",
)

// CleanAnswer normalizes model output for plain-text display.
//
// Markdown links are rewritten to "label: url" so both the text and
// the target survive, then emphasis and code markers are stripped.
// Single underscores are left alone because card and set identifiers
// use them literally.
func CleanAnswer(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1: $2")
	s = markupStripper.Replace(s)
	return strings.TrimSpace(s)
}
