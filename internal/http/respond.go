package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeFailure sends the API's failure envelope. code is a stable
// machine-readable error identifier; details is optional human context.
func writeFailure(w http.ResponseWriter, status int, code string, details any) {
	payload := map[string]any{
		"success": false,
		"error":   code,
	}
	if details != nil {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}
