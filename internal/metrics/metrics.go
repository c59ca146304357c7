// Package metrics holds the Prometheus collectors for the connectivity core.
//
// Collectors live on a private registry so tests can build as many
// independent sets as they like. Every method is safe on a nil *Metrics,
// which lets components run without instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inkclock"

// Metrics is the set of collectors exported on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	stateTransitions  *prometheus.CounterVec
	radioState        *prometheus.GaugeVec
	brokerAcquires    *prometheus.CounterVec
	brokerReleases    prometheus.Counter
	brokerHeld        prometheus.Gauge
	watchdogStops     prometheus.Counter
	dhcpReplies       *prometheus.CounterVec
	dnsAnswers        prometheus.Counter
	droppedDatagrams  *prometheus.CounterVec
	provisionAttempts *prometheus.CounterVec
	sleeps            prometheus.Counter
	timeSyncs         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		stateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wifi_state_transitions_total",
			Help:      "Connection state transitions by source and target state.",
		}, []string{"from", "to"}),
		radioState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wifi_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		brokerAcquires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_acquires_total",
			Help:      "Network access requests by result.",
		}, []string{"result"}),
		brokerReleases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_releases_total",
			Help:      "Network access releases.",
		}),
		brokerHeld: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_held",
			Help:      "1 while a task holds network access.",
		}),
		watchdogStops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_idle_stops_total",
			Help:      "Radio stops triggered by the idle watchdog.",
		}),
		dhcpReplies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captive_dhcp_replies_total",
			Help:      "DHCP replies sent by message type.",
		}, []string{"type"}),
		dnsAnswers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captive_dns_answers_total",
			Help:      "Hijacked DNS answers sent.",
		}),
		droppedDatagrams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captive_dropped_datagrams_total",
			Help:      "Datagrams dropped as malformed or unsupported.",
		}, []string{"service"}),
		provisionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_attempts_total",
			Help:      "Credential submissions by result.",
		}, []string{"result"}),
		sleeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sleeps_total",
			Help:      "Deep sleep entries.",
		}),
		timeSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_syncs_total",
			Help:      "Wall clock sync attempts by result.",
		}, []string{"result"}),
	}
}

// ObserveTransition counts a state change and updates the state gauge.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(from, to).Inc()
	m.radioState.WithLabelValues(from).Set(0)
	m.radioState.WithLabelValues(to).Set(1)
}

// ObserveAcquire counts an acquire outcome: "ok", "timeout" or "unavailable".
func (m *Metrics) ObserveAcquire(result string) {
	if m == nil {
		return
	}
	m.brokerAcquires.WithLabelValues(result).Inc()
	if result == "ok" {
		m.brokerHeld.Set(1)
	}
}

// ObserveRelease counts a release.
func (m *Metrics) ObserveRelease() {
	if m == nil {
		return
	}
	m.brokerReleases.Inc()
	m.brokerHeld.Set(0)
}

// ObserveWatchdogStop counts an idle stop.
func (m *Metrics) ObserveWatchdogStop() {
	if m == nil {
		return
	}
	m.watchdogStops.Inc()
}

// ObserveDHCPReply counts an OFFER or ACK.
func (m *Metrics) ObserveDHCPReply(msgType string) {
	if m == nil {
		return
	}
	m.dhcpReplies.WithLabelValues(msgType).Inc()
}

// ObserveDNSAnswer counts a hijacked answer.
func (m *Metrics) ObserveDNSAnswer() {
	if m == nil {
		return
	}
	m.dnsAnswers.Inc()
}

// ObserveDropped counts a dropped datagram for service ("dhcp" or "dns").
func (m *Metrics) ObserveDropped(service string) {
	if m == nil {
		return
	}
	m.droppedDatagrams.WithLabelValues(service).Inc()
}

// ObserveProvision counts a credential submission outcome.
func (m *Metrics) ObserveProvision(result string) {
	if m == nil {
		return
	}
	m.provisionAttempts.WithLabelValues(result).Inc()
}

// ObserveSleep counts a sleep entry.
func (m *Metrics) ObserveSleep() {
	if m == nil {
		return
	}
	m.sleeps.Inc()
}

// ObserveTimeSync counts a sync attempt: "ok" or "error".
func (m *Metrics) ObserveTimeSync(result string) {
	if m == nil {
		return
	}
	m.timeSyncs.WithLabelValues(result).Inc()
}
