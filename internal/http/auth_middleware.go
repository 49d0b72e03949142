package httpx

import (
	"crypto/subtle"
	"net/http"
)

// requireKey guards dashboard and API routes with the configured API key,
// passed as the apiKey query parameter. A development deployment with no
// key configured skips the check so the dashboard works locally.
func (r *Router) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.checkKey(req) {
			r.logger.Warn("api key rejected", "path", req.URL.Path)
			writeError(w, http.StatusForbidden, "valid apiKey query parameter required")
			return
		}
		next(w, req)
	}
}

func (r *Router) checkKey(req *http.Request) bool {
	if r.apiKey == "" {
		return r.devMode
	}
	supplied := req.URL.Query().Get("apiKey")
	return len(supplied) == len(r.apiKey) &&
		subtle.ConstantTimeCompare([]byte(supplied), []byte(r.apiKey)) == 1
}
