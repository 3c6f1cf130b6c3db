package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "scrapco"
	subsystem = "dispatch"
)

// DispatchMetricsCollector counts dispatch outcomes
type DispatchMetricsCollector struct {
	offersSent     prometheus.Counter
	offersAccepted prometheus.Counter
	offersRejected prometheus.Counter
	offersExpired  prometheus.Counter
	dispatchGaveUp prometheus.Counter
}

// NewDispatchMetricsCollector creates the dispatch outcome counters
func NewDispatchMetricsCollector() *DispatchMetricsCollector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &DispatchMetricsCollector{
		offersSent:     counter("offers_sent_total", "Offers delivered to vendor backends"),
		offersAccepted: counter("offers_accepted_total", "Offers accepted by vendors"),
		offersRejected: counter("offers_rejected_total", "Offers rejected by vendors"),
		offersExpired:  counter("offers_expired_total", "Offers that timed out unanswered"),
		dispatchGaveUp: counter("give_ups_total", "Dispatch runs that exhausted all candidates"),
	}
}

// Register registers all counters with the registry
func (c *DispatchMetricsCollector) Register(registry *prometheus.Registry) error {
	for _, collector := range []prometheus.Collector{
		c.offersSent,
		c.offersAccepted,
		c.offersRejected,
		c.offersExpired,
		c.dispatchGaveUp,
	} {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// OfferSent records a delivered offer
func (c *DispatchMetricsCollector) OfferSent() { c.offersSent.Inc() }

// OfferAccepted records a vendor acceptance
func (c *DispatchMetricsCollector) OfferAccepted() { c.offersAccepted.Inc() }

// OfferRejected records a vendor rejection
func (c *DispatchMetricsCollector) OfferRejected() { c.offersRejected.Inc() }

// OfferExpired records an offer timeout
func (c *DispatchMetricsCollector) OfferExpired() { c.offersExpired.Inc() }

// GaveUp records a dispatch run ending in NO_VENDOR_AVAILABLE
func (c *DispatchMetricsCollector) GaveUp() { c.dispatchGaveUp.Inc() }
