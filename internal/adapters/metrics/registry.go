package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector of the service behind one registry
type Metrics struct {
	registry *prometheus.Registry

	Dispatch *DispatchMetricsCollector
	HTTP     *HTTPMetricsCollector
}

// New creates and registers all collectors
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Dispatch: NewDispatchMetricsCollector(),
		HTTP:     NewHTTPMetricsCollector(),
	}

	if err := m.Dispatch.Register(m.registry); err != nil {
		return nil, err
	}
	if err := m.HTTP.Register(m.registry); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
