// Package browsersearch implements the browser_search tool: a Google
// results search driven through a real headless Chrome instance via
// chromedp, rather than a bare HTTP scrape (see searchweb).
package browsersearch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

const schemaJSON = `{
	"type": "object",
	"required": ["query"],
	"additionalProperties": false,
	"properties": {
		"query": {"type": "string", "minLength": 2, "maxLength": 300},
		"max_results": {"type": "integer", "minimum": 1, "maximum": 10, "default": 5},
		"headless": {"type": "boolean", "default": true}
	}
}`

var searchPrefixes = []string{
	"please open ", "please find ", "please search ",
	"open ", "find ", "search ", "look up ",
}

// Tool is the browser_search tool. Risk MEDIUM: it drives a live browser
// process even though it performs no write actions.
type Tool struct {
	schema *jsonschema.Schema
}

// New builds the browser_search tool.
func New() *Tool {
	compiled, err := jsonschema.CompileString("browser_search_schema", schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("browsersearch: compile schema: %v", err))
	}
	return &Tool{schema: compiled}
}

func (t *Tool) Name() string          { return "browser_search" }
func (t *Tool) Risk() domain.RiskTier { return domain.RiskMedium }

func (t *Tool) Validate(input map[string]any) error {
	if err := t.schema.Validate(input); err != nil {
		return localflowerr.Validation("browser_search: invalid input: %v", err)
	}
	return nil
}

type foundLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Run launches a fresh Chrome instance (headless unless headless is false)
// for each call, navigates to the Google
// results page for a normalized query, and collects anchor hrefs pointing
// off of google.com.
func (t *Tool) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, _ := input["query"].(string)
	maxResults := 5
	if v, ok := input["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}
	headless := true
	if v, ok := input["headless"].(bool); ok {
		headless = v
	}
	normalized := normalizeQuery(query)

	searchURL := fmt.Sprintf(
		"https://www.google.com/search?q=%s&num=%d&hl=en&pws=0&safe=active",
		url.QueryEscape(normalized), maxResults,
	)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", headless))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelTimeout := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancelTimeout()

	var links []foundLink
	err := chromedp.Run(runCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(extractAnchorsJS, &links),
	)
	if err != nil {
		return nil, localflowerr.Upstream("browser_search: chrome session failed: %v", err)
	}

	results := make([]map[string]string, 0, maxResults)
	seen := make(map[string]bool)
	for _, link := range links {
		target := resolveTarget(link.Href)
		if target == "" || seen[target] {
			continue
		}
		host := ""
		if parsed, err := url.Parse(target); err == nil {
			host = strings.ToLower(parsed.Hostname())
		}
		if strings.HasSuffix(host, "google.com") || strings.HasSuffix(host, "googleusercontent.com") {
			continue
		}
		seen[target] = true
		title := strings.TrimSpace(link.Text)
		if title == "" {
			title = host
		}
		results = append(results, map[string]string{"title": title, "url": target})
		if len(results) >= maxResults {
			break
		}
	}

	return map[string]any{
		"query":            query,
		"normalized_query": normalized,
		"engine":           "google",
		"results":          results,
	}, nil
}

const extractAnchorsJS = `
Array.from(document.querySelectorAll("a")).map(a => ({
	href: a.getAttribute("href") || "",
	text: (a.innerText || "").trim(),
}))
`

func normalizeQuery(query string) string {
	q := strings.TrimSpace(query)
	lowered := strings.ToLower(q)
	for _, p := range searchPrefixes {
		if strings.HasPrefix(lowered, p) {
			q = strings.TrimSpace(q[len(p):])
			break
		}
	}
	q = strings.ReplaceAll(q, "'s linkedin", " linkedin")
	q = strings.ReplaceAll(q, " profile", " ")
	return strings.Join(strings.Fields(q), " ")
}

func resolveTarget(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/url?") {
		parsed, err := url.Parse(href)
		if err != nil {
			return ""
		}
		q := parsed.Query().Get("q")
		if strings.HasPrefix(q, "http") {
			return q
		}
		return ""
	}
	abs, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base, _ := url.Parse("https://www.google.com")
	resolved := base.ResolveReference(abs)
	if strings.HasPrefix(resolved.String(), "http") {
		return resolved.String()
	}
	return ""
}
