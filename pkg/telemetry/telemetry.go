// Package telemetry registers the engine's and relay's prometheus
// collectors. Binaries expose them via promhttp; library consumers that
// never scrape simply pay for a few atomic counters.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts messages handed to a connected transport,
	// labeled by transport variant ("network" or "local").
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_messages_sent_total",
		Help: "Messages handed to a connected transport.",
	}, []string{"transport"})

	// MessagesReceived counts inbound messages applied to a log, labeled
	// by path ("history", "live", "broadcast", "fallback").
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_messages_received_total",
		Help: "Inbound messages applied to the visible log.",
	}, []string{"source"})

	// MessagesDeduplicated counts inbound messages dropped by the ledger.
	MessagesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_deduplicated_total",
		Help: "Inbound messages discarded as already seen.",
	})

	// OutboxQueued counts sends deferred while disconnected.
	OutboxQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_outbox_queued_total",
		Help: "Sends queued while no transport was connected.",
	})

	// OutboxReplayed counts queued sends replayed on reconnect.
	OutboxReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_outbox_replayed_total",
		Help: "Queued sends replayed after a connected transition.",
	})

	// Notifications counts raised unread notifications.
	Notifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_notifications_total",
		Help: "Unread notifications raised for inbound messages.",
	})

	// RelayConnections tracks live websocket clients per room.
	RelayConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatsync_relay_connections",
		Help: "Connected relay clients per room.",
	}, []string{"room"})

	// RelayMessages counts messages fanned out by the relay.
	RelayMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_relay_messages_total",
		Help: "Messages accepted and fanned out by the relay.",
	})

	// RelayRateLimited counts frames rejected by the relay limiter.
	RelayRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_relay_rate_limited_total",
		Help: "Relay frames dropped by per-client rate limiting.",
	})
)

// RegisterStoreDiskUsage exposes the durable store's on-disk footprint as
// a gauge. Call once per process with the opened store's DiskUsage.
func RegisterStoreDiskUsage(usage func() uint64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatsync_store_disk_bytes",
		Help: "On-disk size of the durable store directory.",
	}, func() float64 { return float64(usage()) }))
}
