package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	pm2Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmbridge",
			Subsystem: "pm2",
			Name:      "commands_total",
			Help:      "Number of pm2 CLI invocations by operation and exit code.",
		}, []string{"op", "code"},
	)
	pm2CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pmbridge",
			Subsystem: "pm2",
			Name:      "command_duration_seconds",
			Help:      "Wall time spent waiting for pm2 CLI invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"},
	)
	groupChildren = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pmbridge",
			Subsystem: "group",
			Name:      "children",
			Help:      "Current number of cached children per group.",
		}, []string{"group"},
	)
	groupResyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmbridge",
			Subsystem: "group",
			Name:      "resyncs_total",
			Help:      "Number of full cache rebuilds from the pm2 listing.",
		}, []string{"group"},
	)
	groupStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmbridge",
			Subsystem: "group",
			Name:      "starts_total",
			Help:      "Number of confirmed child starts.",
		}, []string{"group"},
	)
	groupStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmbridge",
			Subsystem: "group",
			Name:      "stops_total",
			Help:      "Number of confirmed child stops.",
		}, []string{"group"},
	)
	groupRemovals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmbridge",
			Subsystem: "group",
			Name:      "removals_total",
			Help:      "Number of confirmed child removals.",
		}, []string{"group"},
	)
	groupAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmbridge",
			Subsystem: "group",
			Name:      "alerts_total",
			Help:      "Number of alerts raised per group.",
		}, []string{"group"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{pm2Commands, pm2CommandDuration, groupChildren, groupResyncs, groupStarts, groupStops, groupRemovals, groupAlerts}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveCommand(op string, exitCode int, spawned bool, seconds float64) {
	if !regOK.Load() {
		return
	}
	code := strconv.Itoa(exitCode)
	if !spawned {
		code = "spawn_error"
	}
	pm2Commands.WithLabelValues(op, code).Inc()
	pm2CommandDuration.WithLabelValues(op).Observe(seconds)
}

func IncResync(group string) {
	if regOK.Load() {
		groupResyncs.WithLabelValues(group).Inc()
	}
}

func SetChildren(group string, n int) {
	if regOK.Load() {
		groupChildren.WithLabelValues(group).Set(float64(n))
	}
}

func IncStart(group string) {
	if regOK.Load() {
		groupStarts.WithLabelValues(group).Inc()
	}
}

func IncStop(group string) {
	if regOK.Load() {
		groupStops.WithLabelValues(group).Inc()
	}
}

func IncRemove(group string) {
	if regOK.Load() {
		groupRemovals.WithLabelValues(group).Inc()
	}
}

func IncAlert(group string) {
	if regOK.Load() {
		groupAlerts.WithLabelValues(group).Inc()
	}
}
