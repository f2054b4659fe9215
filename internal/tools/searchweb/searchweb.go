// Package searchweb implements the search_web tool: an unauthenticated
// Google results scrape via plain HTTP, no browser engine involved.
package searchweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

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
		"allowed_domains": {
			"type": "array",
			"maxItems": 20,
			"items": {"type": "string"}
		}
	}
}`

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Tool is the search_web tool. Risk LOW: read-only network access.
type Tool struct {
	schema     *jsonschema.Schema
	httpClient *http.Client
}

// New builds the search_web tool with a bounded-timeout HTTP client.
func New() *Tool {
	compiled, err := jsonschema.CompileString("search_web_schema", schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("searchweb: compile schema: %v", err))
	}
	return &Tool{
		schema:     compiled,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Tool) Name() string          { return "search_web" }
func (t *Tool) Risk() domain.RiskTier { return domain.RiskLow }

func (t *Tool) Validate(input map[string]any) error {
	if err := t.schema.Validate(input); err != nil {
		return localflowerr.Validation("search_web: invalid input: %v", err)
	}
	return nil
}

// Run scrapes Google's results page for query, filters by allowed_domains
// if given, and returns up to max_results {title, url} pairs.
func (t *Tool) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, _ := input["query"].(string)
	maxResults := 5
	if v, ok := input["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}
	var allowedDomains []string
	if raw, ok := input["allowed_domains"].([]any); ok {
		for _, d := range raw {
			if s, ok := d.(string); ok && strings.TrimSpace(s) != "" {
				allowedDomains = append(allowedDomains, strings.ToLower(strings.Trim(s, ".")))
			}
		}
	}

	searchURL := fmt.Sprintf(
		"https://www.google.com/search?q=%s&num=%d&hl=en&pws=0&safe=active",
		url.QueryEscape(query), maxResults,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, localflowerr.Internal("search_web: build request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, localflowerr.Upstream("search_web: request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, localflowerr.Upstream("search_web: upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, localflowerr.Upstream("search_web: read response: %v", err)
	}

	links := extractGoogleLinks(string(body))
	results := make([]map[string]string, 0, maxResults)
	for _, link := range links {
		if !domainAllowed(link, allowedDomains) {
			continue
		}
		host := link
		if parsed, err := url.Parse(link); err == nil && parsed.Hostname() != "" {
			host = parsed.Hostname()
		}
		results = append(results, map[string]string{"title": host, "url": link})
		if len(results) >= maxResults {
			break
		}
	}

	return map[string]any{"query": query, "results": results}, nil
}

// extractGoogleLinks tokenizes the results page with golang.org/x/net/html
// rather than regexing raw markup, so a malformed or re-ordered attribute
// list doesn't silently drop hits: every <a href="/url?q=...&..."> anchor
// is visited regardless of what other attributes surround href.
func extractGoogleLinks(body string) []string {
	var links []string
	seen := make(map[string]bool)

	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data != "a" {
				continue
			}
			href := attrValue(tok, "href")
			if href == "" || !strings.HasPrefix(href, "/url?") {
				continue
			}
			parsed, err := url.Parse(href)
			if err != nil {
				continue
			}
			q := parsed.Query().Get("q")
			if q == "" || !strings.HasPrefix(q, "http") || seen[q] {
				continue
			}
			seen[q] = true
			links = append(links, q)
		}
	}
}

func attrValue(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func domainAllowed(link string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.Trim(parsed.Hostname(), "."))
	if host == "" {
		return false
	}
	for _, d := range allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
