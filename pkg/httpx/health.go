package httpx

import "net/http"

// HealthHandler returns the shared liveness handler used by the probe
// binaries. It answers /health and /healthz regardless of transport.
func HealthHandler(version string) HandlerFunc {
	body := []byte(`{"status":"ok","version":"` + version + `"}`)
	return func(w ResponseWriter, r *Request) {
		switch r.Path {
		case "/health", "/healthz":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}
