package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "requests_total",
			Help:      "Total number of API requests, by status class.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight API requests.",
		},
		[]string{"op"},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "token_refresh_total",
			Help:      "Token refresh round trips, by result.",
		},
		[]string{"result"},
	)

	RealtimeConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "realtime_connects_total",
			Help:      "Realtime connection attempts, by role and result.",
		},
		[]string{"role", "result"},
	)

	RealtimeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "realtime_connected",
			Help:      "1 while the realtime channel for a role is connected.",
		},
		[]string{"role"},
	)

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "snapshots_total",
			Help:      "Proximity snapshots processed.",
		},
		[]string{"role"},
	)

	DeparturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "departures_total",
			Help:      "Departure transitions detected.",
		},
		[]string{"role"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and commit).",
		},
		[]string{"version", "commit"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(RequestsTotal, RequestDuration, InFlight, RefreshTotal,
		RealtimeConnects, RealtimeState, SnapshotsTotal, DeparturesTotal, buildInfo, uptime)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup with ldflags-provided values.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// StatusClass turns an HTTP status into a label such as "2xx". Zero means no
// response was received.
func StatusClass(status int) string {
	if status == 0 {
		return "network"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ObserveRequest records one finished client request under op.
func ObserveRequest(op string, status int, start time.Time) {
	RequestsTotal.WithLabelValues(op, StatusClass(status)).Inc()
	RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
