package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	"github.com/armon/go-metrics/prometheus"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "preconf"

// SetupTelemetry registers the global metrics sinks, in memory for SIGUSR1 dumps and prometheus for scraping
func SetupTelemetry() error {
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)

	promSink, err := prometheus.NewPrometheusSinkFrom(prometheus.PrometheusOpts{
		Name:       "preconf_prometheus_sink",
		Expiration: 0,
	})
	if err != nil {
		return err
	}

	metricsConf := metrics.DefaultConfig(metricsNamespace)
	metricsConf.EnableHostname = false

	_, err = metrics.NewGlobal(metricsConf, metrics.FanoutSink{
		inm, promSink,
	})

	return err
}

// MetricsServer serves the prometheus metrics
type MetricsServer struct {
	logger   hclog.Logger
	listener net.Listener
	server   *http.Server
}

func NewMetricsServer(logger hclog.Logger, addr *net.TCPAddr) (*MetricsServer, error) {
	lis, err := net.Listen("tcp", addr.String())
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		logger:   logger,
		listener: lis,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) Addr() net.Addr {
	return m.listener.Addr()
}

// Serve blocks until the server is closed
func (m *MetricsServer) Serve() error {
	m.logger.Info("prometheus server started", "addr", m.listener.Addr())

	if err := m.server.Serve(m.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (m *MetricsServer) Close(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func incTickFailureMetric() {
	metrics.IncrCounter([]string{"node", "tick_failures"}, 1)
}

func measureTickMetric(start time.Time) {
	metrics.MeasureSince([]string{"node", "tick"}, start)
}
