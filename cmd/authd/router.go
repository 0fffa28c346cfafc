package main

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/internal/obs"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func buildRouter(engine *authcore.Engine, reg *prometheus.Registry, cfg httpapi.Config, logger *zap.Logger, health map[string]obs.HealthCheck) http.Handler {
	reg.MustRegister(promexport.NewCollector(engine))

	r := mux.NewRouter()
	httpapi.New(engine, cfg, logger).Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)
	r.Handle("/healthz", obs.HealthHandler(500*time.Millisecond, health)).Methods(http.MethodGet)
	return r
}
