package http

import (
	stdhttp "net/http"
)

// HealthHandler reports basic liveness for the credit service.
func HealthHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok", "service": "credit-engine"})
}
