package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haasonsaas/localflow/internal/localflowerr"
)

// decodeJSONRequest mirrors the teacher's decodeJSONRequest: body-size-capped,
// unknown-field-rejecting JSON decode.
func decodeJSONRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return localflowerr.Validation("request body too large")
		}
		return localflowerr.Validation("malformed request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorEnvelope is the fixed shape from §6: {detail, error_code, errors?}.
type errorEnvelope struct {
	Detail    string   `json:"detail"`
	ErrorCode string   `json:"error_code"`
	Errors    []string `json:"errors,omitempty"`
}

// writeError maps err onto the fixed error_code/status table (§7). Any
// error that isn't a *localflowerr.Error is treated as INTERNAL_ERROR.
func writeError(w http.ResponseWriter, err error) {
	lfErr, ok := localflowerr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Detail:    err.Error(),
			ErrorCode: string(localflowerr.KindInternal),
		})
		return
	}
	writeJSON(w, lfErr.Kind.StatusCode(), errorEnvelope{
		Detail:    lfErr.Message,
		ErrorCode: lfErr.Code(),
	})
}
