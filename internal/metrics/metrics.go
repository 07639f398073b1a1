// Package metrics defines the prometheus collectors a session reports to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netmanager"

// Drop reasons used with MessagesDropped.
const (
	DropUnhandled = "unhandled"
	DropMalformed = "malformed"
	DropSendError = "send_error"
)

// Metrics holds every collector of a session.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	TotalConnections  prometheus.Counter
	Players           prometheus.Gauge

	SceneChanges      *prometheus.CounterVec
	SceneLoadDuration prometheus.Histogram

	MessagesReceived *prometheus.CounterVec
	MessagesBuffered prometheus.Gauge
	MessagesDropped  *prometheus.CounterVec

	PlayersSpawned prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses the default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connections the server currently holds",
		}),
		TotalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of connections accepted by the server",
		}),
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Number of valid player slots over all server connections",
		}),
		SceneChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scene_changes_total",
			Help:      "Scene loads issued, by side",
		}, []string{"side"}),
		SceneLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scene_load_duration_seconds",
			Help:      "Time between issuing a scene load and observing its completion",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Control-plane and gameplay messages received, by type",
		}, []string{"type"}),
		MessagesBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_buffered",
			Help:      "Messages waiting on the client for a scene load to finish",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped, by reason",
		}, []string{"reason"}),
		PlayersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_spawned_total",
			Help:      "Player objects created by the server",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.TotalConnections,
		m.Players,
		m.SceneChanges,
		m.SceneLoadDuration,
		m.MessagesReceived,
		m.MessagesBuffered,
		m.MessagesDropped,
		m.PlayersSpawned,
	)
	return m
}

func (m *Metrics) RecordConnection() {
	m.TotalConnections.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) RecordDisconnection() {
	m.ActiveConnections.Dec()
}

// RecordSceneChange counts a load issued by the server or a client.
func (m *Metrics) RecordSceneChange(server bool) {
	side := "client"
	if server {
		side = "server"
	}
	m.SceneChanges.WithLabelValues(side).Inc()
}

func (m *Metrics) RecordSceneLoad(seconds float64) {
	m.SceneLoadDuration.Observe(seconds)
}

func (m *Metrics) RecordMessage(msgType string) {
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordDrop(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}
