// Package metrics holds the Prometheus counters for the invitation lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "betainvite"

// Issue kinds used as the "kind" label on InvitationsIssued.
const (
	KindSingleUse = "single_use"
	KindMultiUse  = "multi_use"
)

// Metrics groups every counter the services update. A nil *Metrics is valid
// and records nothing, so services and tests can leave it unset.
type Metrics struct {
	InvitationsIssued   *prometheus.CounterVec
	InvitationsConsumed prometheus.Counter
	InvitationsSwept    prometheus.Counter

	WaitlistInvited          prometheus.Counter
	WaitlistDeliveryFailures prometheus.Counter
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InvitationsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invitations_issued_total",
				Help:      "Total number of invitation keys created",
			},
			[]string{"kind"},
		),
		InvitationsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_consumed_total",
			Help:      "Total number of single-use keys redeemed by a registrant",
		}),
		InvitationsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_swept_total",
			Help:      "Total number of expired invitation keys deleted",
		}),
		WaitlistInvited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_invited_total",
			Help:      "Total number of waiting list entries sent an invitation",
		}),
		WaitlistDeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_delivery_failures_total",
			Help:      "Total number of invitation emails that could not be sent",
		}),
	}
}

func (m *Metrics) KeyIssued(kind string) {
	if m == nil {
		return
	}
	m.InvitationsIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) KeyConsumed() {
	if m == nil {
		return
	}
	m.InvitationsConsumed.Inc()
}

func (m *Metrics) KeysSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InvitationsSwept.Add(float64(n))
}

func (m *Metrics) EntryInvited() {
	if m == nil {
		return
	}
	m.WaitlistInvited.Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.WaitlistDeliveryFailures.Inc()
}
