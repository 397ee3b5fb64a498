package observer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodeforge/actorframe/actor"
)

// HTTPServer exposes Server's operations as JSON over chi, plus
// /metrics, bound only when cluster.Config.Observer.HTTPAddr is
// non-empty (§4.14, §6). Routing follows the corpus's chi.NewRouter /
// r.Get / r.Post / promhttp-mounting idiom; this surface carries none
// of that corpus's auth or rate-limiting middleware, which is out of
// scope here.
type HTTPServer struct {
	obs     *Server
	metrics *Metrics
	router  chi.Router
}

// NewHTTPServer builds the router. metricsPath defaults to "/metrics"
// when empty.
func NewHTTPServer(obs *Server, metricsPath string) *HTTPServer {
	reg := prometheus.NewRegistry()
	h := &HTTPServer{obs: obs, metrics: NewMetrics(reg)}

	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Route("/observer", func(r chi.Router) {
		r.Get("/snapshot", h.handleSnapshot)
		r.Get("/tree", h.handleTree)
		r.Post("/processes/{id}/stop", h.handleStop)
	})
	r.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	h.router = r
	return h
}

// Handler returns the mux for embedding in an http.Server.
func (h *HTTPServer) Handler() http.Handler { return h.router }

func (h *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.obs.Snapshot()
	h.metrics.Update(snap)
	writeJSON(w, http.StatusOK, snap)
}

func (h *HTTPServer) handleTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.obs.ProcessTree())
}

func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid process id", http.StatusBadRequest)
		return
	}
	reason := r.URL.Query().Get("reason")
	if err := h.obs.StopProcess(actor.ServerRef{ID: actor.ServerId(id)}, reason); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
