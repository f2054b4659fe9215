package chat

import (
	"net/url"
	"regexp"
	"strings"
)

var urlRE = regexp.MustCompile(`(?i)https?://[^\s)]+`)

// normalizeSearchQuery mirrors the prototype's _normalize_search_query: it
// strips a leading imperative ("open ", "find ", "please search ", ...) and
// softens a couple of possessive/profile phrasings that read awkwardly in a
// search box.
func normalizeSearchQuery(query string) string {
	q := strings.TrimSpace(query)
	prefixes := []string{
		"open ", "find ", "search ", "look up ",
		"please open ", "please find ", "please search ",
	}
	lowered := strings.ToLower(q)
	for _, p := range prefixes {
		if strings.HasPrefix(lowered, p) {
			q = strings.TrimSpace(q[len(p):])
			break
		}
	}
	q = strings.ReplaceAll(q, "'s linkedin", " linkedin")
	q = strings.ReplaceAll(q, " profile", " ")
	return strings.Join(strings.Fields(q), " ")
}

// sanitizeURL trims wrapping punctuation/brackets and trailing sentence
// punctuation, then accepts only absolute http(s) URLs with a host.
func sanitizeURL(raw string) (string, bool) {
	s := strings.Trim(raw, " \t\n")
	s = strings.Trim(s, `<>[](){}"'`)
	s = strings.TrimRight(s, ".,;:!?")
	s = strings.Trim(s, `<>[](){}"'`)
	if s == "" {
		return "", false
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}
	return s, true
}

// isLinkedInProfileURL reports whether url points at a LinkedIn member
// profile page, as opposed to a company page, search results, or any other
// linkedin.com path.
func isLinkedInProfileURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	path := strings.ToLower(parsed.Path)
	return strings.Contains(host, "linkedin.com") && strings.HasPrefix(path, "/in/")
}

// toolAction is the normalizer's working representation of one planned
// action; it round-trips to/from the llm package's wire shape via
// actionsFromWire/toolPlanMap.
type toolAction struct {
	Tool   string
	Params map[string]any
}

// normalizeToolPlan mirrors the prototype's _normalize_tool_plan: it
// sanitises every open_links URL list, discards a model-guessed LinkedIn
// profile slug the user never supplied, and substitutes a search instead.
func normalizeToolPlan(userMessage string, actions []toolAction) []toolAction {
	if len(actions) == 0 {
		return nil
	}

	userHasExplicitURL := urlRE.MatchString(userMessage)
	normalizedQuery := normalizeSearchQuery(userMessage)
	hasBrowserSearch := false
	for _, a := range actions {
		if a.Tool == "browser_search" {
			hasBrowserSearch = true
			break
		}
	}

	var out []toolAction
	for _, action := range actions {
		if action.Tool != "open_links" {
			out = append(out, action)
			continue
		}
		rawURLs, _ := action.Params["urls"].([]any)
		var sanitized []string
		seen := map[string]bool{}
		for _, ru := range rawURLs {
			s, ok := ru.(string)
			if !ok {
				continue
			}
			su, ok := sanitizeURL(s)
			if !ok || seen[su] {
				continue
			}
			seen[su] = true
			sanitized = append(sanitized, su)
		}
		if len(sanitized) == 0 {
			continue
		}

		if !userHasExplicitURL && anyLinkedInProfile(sanitized) {
			if normalizedQuery != "" && !hasBrowserSearch {
				out = append(out, toolAction{
					Tool: "browser_search",
					Params: map[string]any{
						"query":       normalizedQuery,
						"max_results": 5,
						"headless":    true,
					},
				})
				hasBrowserSearch = true
			}
			if normalizedQuery != "" {
				sanitized = []string{googleSearchURL(normalizedQuery)}
			}
		}

		if len(sanitized) > 10 {
			sanitized = sanitized[:10]
		}
		out = append(out, toolAction{
			Tool:   "open_links",
			Params: map[string]any{"urls": toAnySlice(sanitized)},
		})
	}
	return out
}

func anyLinkedInProfile(urls []string) bool {
	for _, u := range urls {
		if isLinkedInProfileURL(u) {
			return true
		}
	}
	return false
}

func googleSearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// fallbackToolPlan mirrors the prototype's _fallback_tool_plan: it only
// fires when normalization left the model's own plan with no actions, and
// only trusts URLs the user typed themselves.
func fallbackToolPlan(userMessage, assistantMessage string) []toolAction {
	text := strings.ToLower(userMessage + "\n" + assistantMessage)
	userURLs := dedupeStrings(urlRE.FindAllString(userMessage, -1))

	if len(userURLs) > 0 && containsAny(text, "open", "browser", "link") {
		if len(userURLs) > 10 {
			userURLs = userURLs[:10]
		}
		return []toolAction{{
			Tool:   "open_links",
			Params: map[string]any{"urls": toAnySlice(userURLs)},
		}}
	}

	query := strings.TrimSpace(userMessage)
	if containsAny(text, "open", "find", "search", "profile", "page") && query != "" {
		normalizedQuery := normalizeSearchQuery(query)
		actions := []toolAction{{
			Tool: "browser_search",
			Params: map[string]any{
				"query":       normalizedQuery,
				"max_results": 5,
				"headless":    true,
			},
		}}
		if containsAny(text, "open", "browser", "link") {
			actions = append(actions, toolAction{
				Tool:   "open_links",
				Params: map[string]any{"urls": []any{googleSearchURL(normalizedQuery)}},
			})
		}
		return actions
	}
	return nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func dedupeStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
