// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_hub_connections",
		Help: "Number of live realtime connections",
	})

	HubRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_hub_rooms",
		Help: "Number of rooms with at least one joined connection",
	})

	HubEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_hub_events_published_total",
		Help: "Domain events handed to the hub, by event type",
	}, []string{"type"})

	HubDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_hub_deliveries_total",
		Help: "Frames queued to individual connections",
	})

	HubDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_hub_dropped_total",
		Help: "Frames not delivered, by reason",
	}, []string{"reason"})

	RelayPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_publish_failures_total",
		Help: "Events that could not be forwarded to the other nodes",
	})

	EngineOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_engine_operations_total",
		Help: "Engine operations by name and result kind",
	}, []string{"operation", "result"})

	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_attempts_total",
		Help: "Register, login and refresh attempts by result",
	}, []string{"action", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
