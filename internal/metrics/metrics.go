// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the daemon's counters and gauges. The core
// never depends on metrics being scraped; the HTTP listener is optional.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/midimind/internal/logging"
)

// Registry holds every midimind metric.
type Registry struct {
	reg *prometheus.Registry

	SeqEvents       *prometheus.CounterVec
	Connects        *prometheus.CounterVec
	Disconnects     prometheus.Counter
	ObservedChanges prometheus.Counter
	Commands        *prometheus.CounterVec
	Resets          *prometheus.CounterVec

	ActivePorts       prometheus.Gauge
	ActiveConnections prometheus.Gauge
	ProfileRules      prometheus.Gauge
	ObservedRules     prometheus.Gauge
}

// NewRegistry creates and registers all metrics.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.SeqEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "midimind_seq_events_total",
		Help: "Sequencer announcement events handled, by type.",
	}, []string{"type"})

	r.Connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "midimind_connects_total",
		Help: "Subscriptions established by the daemon, by rule provenance.",
	}, []string{"source"})

	r.Disconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "midimind_disconnects_total",
		Help: "Subscriptions removed by the daemon.",
	})

	r.ObservedChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "midimind_observed_changes_total",
		Help: "Mutations of the observed rule list.",
	})

	r.Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "midimind_commands_total",
		Help: "Control commands dispatched, by command.",
	}, []string{"command"})

	r.Resets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "midimind_resets_total",
		Help: "Connection resets performed, by kind.",
	}, []string{"kind"})

	r.ActivePorts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "midimind_active_ports",
		Help: "Ports currently tracked in the port map.",
	})

	r.ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "midimind_active_connections",
		Help: "Connections the daemon believes are subscribed.",
	})

	r.ProfileRules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "midimind_profile_rules",
		Help: "Rules in the loaded profile.",
	})

	r.ObservedRules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "midimind_observed_rules",
		Help: "Rules in the observed list.",
	})

	r.reg.MustRegister(
		r.SeqEvents, r.Connects, r.Disconnects, r.ObservedChanges,
		r.Commands, r.Resets,
		r.ActivePorts, r.ActiveConnections, r.ProfileRules, r.ObservedRules,
	)
	return r
}

// Serve starts the metrics/health HTTP listener on addr. It runs in its
// own goroutine and never interferes with the event loop.
func (r *Registry) Serve(addr string) {
	log := logging.WithComponent("metrics")

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listener failed", "err", err)
		}
	}()
}

// Gather exposes the underlying registry for tests.
func (r *Registry) Gather() prometheus.Gatherer { return r.reg }
