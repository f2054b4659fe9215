package httpapi

import "encoding/json"

// decodeResultJSON parses a stored canonical-JSON payload back into a map
// for the API response. An empty string (no result yet) decodes to nil.
func decodeResultJSON(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
