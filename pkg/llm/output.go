package llm

import "strings"

// StripCodeFences removes a surrounding markdown code fence, which models
// often add around JSON output.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.ContainsAny(text[:i], "{[\"") {
		text = text[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
