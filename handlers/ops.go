package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/coinflip-labs/coinflip/pkg/rewrite"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

// OpsRouter serves the sidecar listener: health, Prometheus metrics,
// and the active ruleset. Set EXPOSE_RULESET=false to withhold the
// ruleset endpoint.
func OpsRouter(reg *prometheus.Registry, rules rewrite.RuleSet) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/ruleset", func(w http.ResponseWriter, _ *http.Request) {
		if os.Getenv("EXPOSE_RULESET") == "false" {
			http.Error(w, "Ruleset Disabled", http.StatusForbidden)
			return
		}

		body, err := yaml.Marshal(rules)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(body)
	})

	return r
}
