// Package metrics defines all Prometheus metrics for dhcpcore.
// All metrics use the "dhcpcore_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dhcpcore"

// --- DHCP Packet Metrics ---

var (
	// PacketsReceived counts DHCP packets received by message type.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total DHCP packets received, by message type.",
	}, []string{"msg_type"})

	// PacketsSent counts DHCP packets sent by message type.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP packets sent, by message type.",
	}, []string{"msg_type"})

	// PacketErrors counts packet processing errors.
	PacketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_errors_total",
		Help:      "Total packet processing errors, by type.",
	}, []string{"type"})

	// PacketProcessingDuration tracks DHCP packet handling latency.
	PacketProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "packet_processing_duration_seconds",
		Help:      "DHCP packet processing duration in seconds.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"msg_type"})

	// RateLimited counts packets dropped by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_rate_limited_total",
		Help:      "Total packets dropped by the rate limiter.",
	})
)

// --- Lease Metrics ---

var (
	// Leases is a gauge of lease table records by status.
	Leases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leases",
		Help:      "Number of lease table records, by status.",
	}, []string{"status"})

	// LeaseOperations counts lease state transitions.
	LeaseOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_operations_total",
		Help:      "Total lease operations, by type (offer, ack, renew, nak, release, decline, expire, reclaim).",
	}, []string{"operation"})

	// QuarantinedAddresses is a gauge of declined addresses held out of the pool.
	QuarantinedAddresses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quarantined_addresses",
		Help:      "Number of declined addresses currently held out of the pool.",
	})
)

// --- Pool Metrics ---

var (
	// PoolSize is the total IPs in the pool.
	PoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_size",
		Help:      "Total number of IPs in the pool.",
	}, []string{"pool"})

	// PoolAllocated is the allocated IPs in the pool.
	PoolAllocated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_allocated",
		Help:      "Number of allocated IPs in the pool.",
	}, []string{"pool"})

	// PoolUtilization is the utilization percentage of the pool.
	PoolUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_utilization_percent",
		Help:      "Pool utilization as a percentage.",
	}, []string{"pool"})

	// PoolExhausted counts pool exhaustion events.
	PoolExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_exhausted_total",
		Help:      "Total times the pool was exhausted during allocation.",
	}, []string{"pool"})
)

// --- Client Metrics ---

var (
	// ClientState is 1 for the current state of each client interface, 0 otherwise.
	ClientState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_state",
		Help:      "Current client state per interface (1 = active state).",
	}, []string{"interface", "state"})

	// ClientTransitions counts client state machine transitions.
	ClientTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_transitions_total",
		Help:      "Total client state transitions, by target state.",
	}, []string{"interface", "state"})

	// ClientRetransmissions counts retransmitted client messages.
	ClientRetransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_retransmissions_total",
		Help:      "Total client retransmissions, by message type.",
	}, []string{"interface", "msg_type"})
)

// --- Event Bus Metrics ---

var (
	// EventsPublished counts events published to the bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total events published, by type.",
	}, []string{"type"})

	// EventBufferDrops counts events dropped because a buffer was full.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to full buffer.",
	})

	// HookExecutions counts hook script executions by result.
	HookExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_executions_total",
		Help:      "Total hook executions, by type and result.",
	}, []string{"hook_type", "result"})

	// HookDuration tracks hook execution latency.
	HookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hook_execution_duration_seconds",
		Help:      "Hook execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
	}, []string{"hook_type"})
)

// --- Server Info ---

var (
	// ServerInfo exposes the build version as a label.
	ServerInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_info",
		Help:      "Server build information.",
	}, []string{"version"})

	// ServerStartTime is the Unix time the daemon started.
	ServerStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_start_time_seconds",
		Help:      "Unix timestamp of daemon start.",
	})
)
