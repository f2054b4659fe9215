package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	leadingTitleRE = regexp.MustCompile(`(?i)^\s*(subject|title)\s*[:\-]\s*(.+?)\s*$`)
)

const (
	maxHistoryMessages = 24
	maxHistoryChars    = 1600
)

var contentRecoveryMarkers = []string{
	"here it is:",
	"draft:",
	"linkedin post draft:",
}

// extractFirstJSONObject returns the first balanced-looking `{...}`
// substring of text: the first `{` through the last `}`, greedy. This
// mirrors the regex `\{.*\}` with DOTALL rather than a true brace-matcher,
// matching the prototype's (imperfect but good-enough) behavior.
func extractFirstJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func safeTruncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// formatHistory renders the trailing window of history into the flat
// "role: content" block the prompt template embeds.
func formatHistory(history []HistoryMessage) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	tail := history
	if len(tail) > maxHistoryMessages {
		tail = tail[len(tail)-maxHistoryMessages:]
	}
	var lines []string
	for _, msg := range tail {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role != "user" && role != "assistant" {
			role = "user"
		}
		content := clip(msg.Content, maxHistoryChars)
		if content != "" {
			lines = append(lines, role+": "+content)
		}
	}
	if len(lines) == 0 {
		return "(no prior messages)"
	}
	return strings.Join(lines, "\n")
}

// synthesizeFallbackDraft builds the terminal draft returned when every
// repair attempt has been exhausted.
func synthesizeFallbackDraft(assistantMessage string) *DraftOut {
	body := "Summary:\n- [Main point]\n- [Next step]\n"
	if strings.TrimSpace(assistantMessage) != "" {
		body = "Assistant response:\n" + strings.TrimSpace(assistantMessage) + "\n\n---\n\n" + body
	}
	return &DraftOut{Title: "Conversation notes", Content: body}
}

// normalizeTitleContent promotes a leading "Subject:"/"Title:" line into
// draft.Title when title is empty or redundantly repeats it, dropping that
// line from content.
func normalizeTitleContent(draft *DraftOut) *DraftOut {
	title := strings.TrimSpace(draft.Title)
	content := draft.Content
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return draft
	}

	firstIdx := 0
	for firstIdx < len(lines) && strings.TrimSpace(lines[firstIdx]) == "" {
		firstIdx++
	}
	if firstIdx >= len(lines) {
		return draft
	}

	m := leadingTitleRE.FindStringSubmatch(lines[firstIdx])
	if m == nil {
		return draft
	}
	extracted := strings.TrimSpace(m[2])
	if extracted == "" {
		return draft
	}

	if title == "" {
		title = extracted
	}

	if strings.EqualFold(title, extracted) {
		remainder := append(append([]string{}, lines[:firstIdx]...), lines[firstIdx+1:]...)
		for len(remainder) > 0 && strings.TrimSpace(remainder[0]) == "" {
			remainder = remainder[1:]
		}
		content = strings.TrimSpace(strings.Join(remainder, "\n"))
	}

	draft.Title = title
	draft.Content = content
	return draft
}

// recoverContentFromAssistantMessage scans assistantMessage for one of the
// leading content-recovery markers and returns everything after the first
// hit, or the full trimmed message if none hit.
func recoverContentFromAssistantMessage(assistantMessage string) string {
	text := strings.TrimSpace(assistantMessage)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	start := -1
	for _, marker := range contentRecoveryMarkers {
		idx := strings.Index(lower, marker)
		if idx != -1 {
			start = idx + len(marker)
			break
		}
	}
	if start == -1 {
		return text
	}
	return strings.TrimSpace(text[start:])
}

// parseDraftResponse parses raw provider output into a DraftResponse,
// extracting a balanced JSON substring first when the trimmed text isn't
// already bare `{...}`. Returns nil (no error) when parsing fails or the
// top-level value isn't a JSON object — the caller drives the repair loop.
func parseDraftResponse(raw string) *DraftResponse {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if !(strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")) {
		if extracted := extractFirstJSONObject(text); extracted != "" {
			text = extracted
		}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	if obj == nil {
		return nil
	}

	resp := &DraftResponse{}
	if am, ok := obj["assistant_message"]; ok {
		var s string
		if err := json.Unmarshal(am, &s); err == nil {
			resp.AssistantMessage = s
		}
	}

	if raw, ok := obj["draft"]; ok {
		var d DraftOut
		if err := json.Unmarshal(raw, &d); err == nil {
			resp.Draft = &d
		}
	}

	if raw, ok := obj["tool_plan"]; ok {
		var tp ToolPlanOut
		if err := json.Unmarshal(raw, &tp); err == nil {
			resp.ToolPlan = &tp
		}
	}

	return resp
}
