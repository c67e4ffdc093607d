package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/llj0824/weibo-research-guanghua/internal/selector"
)

// DefaultHistoryFallback is substituted when a group does not use history
// or the user has none.
const DefaultHistoryFallback = "No history was provided."

// Token names recognized in templates, written as {name}.
const (
	TokenUserName    = "user_name"
	TokenPostContent = "post_content"
	TokenUserHistory = "user_history"
)

// Render substitutes {token} placeholders in template with the given values.
// All occurrences of a token are replaced; tokens missing from values are
// left literal so a malformed template is visible in the output rather than
// silently dropped. Tokens are applied in sorted order so output is stable
// even when a substituted value itself contains a token.
func Render(template string, values map[string]string) string {
	tokens := make([]string, 0, len(values))
	for token := range values {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	out := template
	for _, token := range tokens {
		out = strings.ReplaceAll(out, "{"+token+"}", values[token])
	}
	return out
}

// RenderHistory formats historical posts one per line, newest first. An empty
// history renders the fallback text.
func RenderHistory(posts []selector.Post, fallback string) string {
	if fallback == "" {
		fallback = DefaultHistoryFallback
	}
	if len(posts) == 0 {
		return fallback
	}
	lines := make([]string, 0, len(posts))
	for _, p := range posts {
		lines = append(lines, fmt.Sprintf("- (On %s) User posted: \"%s\"",
			p.PublishTime.Format("2006-01-02"), p.Content))
	}
	return strings.Join(lines, "\n")
}
