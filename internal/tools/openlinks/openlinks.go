// Package openlinks implements the open_links tool: opening a bounded list
// of URLs in the user's default browser.
package openlinks

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

const schemaJSON = `{
	"type": "object",
	"required": ["urls"],
	"additionalProperties": false,
	"properties": {
		"urls": {
			"type": "array",
			"minItems": 1,
			"maxItems": 20,
			"items": {"type": "string", "format": "uri"}
		}
	}
}`

// Tool is the open_links tool. Risk LOW: it has no destructive side effect
// beyond launching a local browser window.
type Tool struct {
	schema *jsonschema.Schema
	opener func(string) error
}

// New builds the open_links tool using the OS's default URL opener.
func New() *Tool {
	compiled, err := jsonschema.CompileString("open_links_schema", schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("openlinks: compile schema: %v", err))
	}
	return &Tool{schema: compiled, opener: openBrowser}
}

func (t *Tool) Name() string          { return "open_links" }
func (t *Tool) Risk() domain.RiskTier { return domain.RiskLow }

func (t *Tool) Validate(input map[string]any) error {
	if err := t.schema.Validate(input); err != nil {
		return localflowerr.Validation("open_links: invalid input: %v", err)
	}
	return nil
}

// Run opens each URL in validated.urls via the platform browser launcher,
// skipping (not failing on) malformed entries that somehow survived schema
// validation's format check.
func (t *Tool) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	raw, _ := input["urls"].([]any)
	opened := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		parsed, err := url.Parse(s)
		if err != nil || parsed.Scheme == "" {
			continue
		}
		if err := t.opener(s); err != nil {
			return nil, localflowerr.Internal("open_links: open %s: %v", s, err)
		}
		opened = append(opened, s)
	}
	return map[string]any{"opened": opened}, nil
}

func openBrowser(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}
