// Package browserauto implements the browser_automation tool: a scripted
// sequence of goto/click/fill/press/wait_for steps driven through chromedp.
package browserauto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

const schemaJSON = `{
	"type": "object",
	"required": ["actions"],
	"additionalProperties": false,
	"properties": {
		"start_url": {"type": "string", "format": "uri"},
		"headless": {"type": "boolean", "default": true},
		"dry_run": {"type": "boolean", "default": true},
		"actions": {
			"type": "array",
			"minItems": 1,
			"maxItems": 20,
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"additionalProperties": false,
				"properties": {
					"id": {"type": "string", "minLength": 1, "maxLength": 64},
					"type": {"type": "string", "enum": ["goto", "click", "fill", "press", "wait_for"]},
					"selector": {"type": "string", "maxLength": 500},
					"value": {"type": "string", "maxLength": 4000},
					"url": {"type": "string", "format": "uri"},
					"timeout_ms": {"type": "integer", "minimum": 100, "maximum": 120000, "default": 10000}
				}
			}
		}
	}
}`

// Tool is the browser_automation tool. Risk HIGH: it can submit forms and
// drive navigation on behalf of the user.
type Tool struct {
	schema *jsonschema.Schema
}

// New builds the browser_automation tool.
func New() *Tool {
	compiled, err := jsonschema.CompileString("browser_automation_schema", schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("browserauto: compile schema: %v", err))
	}
	return &Tool{schema: compiled}
}

func (t *Tool) Name() string          { return "browser_automation" }
func (t *Tool) Risk() domain.RiskTier { return domain.RiskHigh }

func (t *Tool) Validate(input map[string]any) error {
	if err := t.schema.Validate(input); err != nil {
		return localflowerr.Validation("browser_automation: invalid input: %v", err)
	}
	return validateActionShapes(input)
}

// validateActionShapes mirrors the original prototype's per-action
// model_validator: goto needs a url, click/fill/wait_for need a selector,
// fill/press need a value. JSON Schema alone can't express these
// cross-field "when type == X" constraints cleanly.
func validateActionShapes(input map[string]any) error {
	raw, _ := input["actions"].([]any)
	for _, item := range raw {
		action, ok := item.(map[string]any)
		if !ok {
			continue
		}
		actionType, _ := action["type"].(string)
		selector, _ := action["selector"].(string)
		_, hasValue := action["value"]
		_, hasURL := action["url"]

		switch actionType {
		case "goto":
			if !hasURL {
				return localflowerr.Validation("browser_automation: goto action requires url")
			}
		case "click", "wait_for":
			if strings.TrimSpace(selector) == "" {
				return localflowerr.Validation("browser_automation: %s action requires selector", actionType)
			}
		case "fill":
			if strings.TrimSpace(selector) == "" {
				return localflowerr.Validation("browser_automation: fill action requires selector")
			}
			if !hasValue {
				return localflowerr.Validation("browser_automation: fill action requires value")
			}
		case "press":
			if !hasValue {
				return localflowerr.Validation("browser_automation: press action requires value")
			}
		}
	}
	return nil
}

type stepLog struct {
	Event string `json:"event,omitempty"`
	ID    string `json:"id,omitempty"`
	Type  string `json:"type,omitempty"`
	URL   string `json:"url"`
}

// Run executes validated.actions in order. When dry_run is true (the
// default) it returns the plan unexecuted — no browser is launched.
func (t *Tool) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	dryRun := true
	if v, ok := input["dry_run"].(bool); ok {
		dryRun = v
	}
	actionsRaw, _ := input["actions"].([]any)

	if dryRun {
		startURL, _ := input["start_url"].(string)
		var startURLOut any
		if startURL != "" {
			startURLOut = startURL
		}
		return map[string]any{
			"dry_run":   true,
			"start_url": startURLOut,
			"actions":   actionsRaw,
		}, nil
	}

	headless := true
	if v, ok := input["headless"].(bool); ok {
		headless = v
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", headless))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelTimeout := context.WithTimeout(browserCtx, 2*time.Minute)
	defer cancelTimeout()

	var steps []stepLog
	var currentURL string

	if startURL, ok := input["start_url"].(string); ok && startURL != "" {
		if err := chromedp.Run(runCtx, chromedp.Navigate(startURL), chromedp.Location(&currentURL)); err != nil {
			return nil, localflowerr.Upstream("browser_automation: navigate start_url: %v", err)
		}
		steps = append(steps, stepLog{Event: "start_url", URL: currentURL})
	}

	for _, item := range actionsRaw {
		action, _ := item.(map[string]any)
		id, _ := action["id"].(string)
		actionType, _ := action["type"].(string)
		selector, _ := action["selector"].(string)
		value, _ := action["value"].(string)
		actionURL, _ := action["url"].(string)
		timeoutMs := 10000
		if v, ok := action["timeout_ms"].(float64); ok && v > 0 {
			timeoutMs = int(v)
		}
		actionCtx, cancel := context.WithTimeout(runCtx, time.Duration(timeoutMs)*time.Millisecond)

		var err error
		switch actionType {
		case "goto":
			err = chromedp.Run(actionCtx, chromedp.Navigate(actionURL))
		case "click":
			err = chromedp.Run(actionCtx, chromedp.Click(selector, chromedp.ByQuery))
		case "fill":
			err = chromedp.Run(actionCtx,
				chromedp.Clear(selector, chromedp.ByQuery),
				chromedp.SendKeys(selector, value, chromedp.ByQuery),
			)
		case "press":
			err = chromedp.Run(actionCtx, chromedp.KeyEvent(value))
		case "wait_for":
			err = chromedp.Run(actionCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
		default:
			err = fmt.Errorf("unknown action type: %s", actionType)
		}
		cancel()
		if err != nil {
			return nil, localflowerr.Upstream("browser_automation: step %s (%s): %v", id, actionType, err)
		}

		_ = chromedp.Run(runCtx, chromedp.Location(&currentURL))
		steps = append(steps, stepLog{ID: id, Type: actionType, URL: currentURL})
	}

	return map[string]any{
		"dry_run":   false,
		"final_url": currentURL,
		"steps":     steps,
	}, nil
}
