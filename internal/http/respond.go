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

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// svgHeaders marks a response as an SVG image that must never be cached.
// Badges are embedded in READMEs and have to reflect the current count.
func svgHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "image/svg+xml")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Expires", "0")
}
