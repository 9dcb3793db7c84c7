// Package api assembles the HTTP surface: the /v1 archive endpoints
// plus the operational endpoints (health, metrics, docs, viewer).
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"retrospect/pkg/api/handlers"
	"retrospect/pkg/archive"
	"retrospect/pkg/contacts"
	"retrospect/pkg/convert"
	"retrospect/pkg/mediacache"
	"retrospect/pkg/sensor"
)

// Deps carries the shared components the handlers serve from.
type Deps struct {
	Archive   *archive.Store
	Contacts  *contacts.Resolver
	Cache     *mediacache.Cache
	Converter *convert.Converter
	Prewarm   *convert.Queue
	Gate      *sensor.Gate
	Version   string
}

// Router builds the full route table.
func Router(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", readyzHandler(d)).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs"))).Methods(http.MethodGet)
	r.PathPrefix("/viewer/").Handler(http.StripPrefix("/viewer/", http.FileServer(http.Dir("./viewer"))))

	v1 := r.PathPrefix("/v1").Subrouter()
	(&handlers.Conversations{Archive: d.Archive, Contacts: d.Contacts}).Register(v1)
	(&handlers.Messages{Archive: d.Archive, Contacts: d.Contacts, Prewarm: d.Prewarm}).Register(v1)
	(&handlers.Attachments{Archive: d.Archive, Cache: d.Cache, Converter: d.Converter, Gate: d.Gate}).Register(v1)

	return r
}

// healthzHandler reports process liveness.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// readyzHandler reports whether the archive and cache are open and
// serving.
func readyzHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if d.Archive == nil || !d.Archive.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"archive not ready"}`))
			return
		}
		if d.Cache != nil && !d.Cache.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"cache not ready"}`))
			return
		}
		ver := d.Version
		if ver == "" {
			ver = "dev"
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
	}
}
