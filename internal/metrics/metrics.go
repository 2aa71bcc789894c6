// Package metrics defines all Prometheus metrics for dhcpsentry. All
// metrics use the "dhcpsentry_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dhcpsentry"

var (
	// PacketsObserved counts inbound DHCP packets by message type.
	PacketsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_observed_total",
		Help:      "Total DHCP packets observed, by message type.",
	}, []string{"msg_type"})

	// PacketDecodeErrors counts datagrams that failed to decode.
	PacketDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_decode_errors_total",
		Help:      "Total inbound datagrams dropped for failing to decode.",
	})

	// PacketProcessingDuration tracks end-to-end pipeline latency per packet.
	PacketProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "packet_processing_duration_seconds",
		Help:      "Time from packet decode to broadcast publish, in seconds.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})
)

var (
	// SMBProbesTotal counts SMB probe attempts by outcome. "refused" covers
	// every non-success result, including a connect timeout; there is no
	// separate timeout outcome.
	SMBProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "smb_probes_total",
		Help:      "Total SMB probes attempted, by outcome (success, refused, error).",
	}, []string{"outcome"})

	// SMBCacheHits counts detector cache hits that avoided a new SMB dial.
	SMBCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "smb_cache_hits_total",
		Help:      "Total hybrid-detector cache hits that skipped a live SMB probe.",
	})

	// SMBCacheMisses counts detector cache misses that triggered a dial.
	SMBCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "smb_cache_misses_total",
		Help:      "Total hybrid-detector cache misses that triggered a live SMB probe.",
	})

	// ReachabilityChecks counts ICMP reachability pre-checks by outcome.
	ReachabilityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reachability_checks_total",
		Help:      "Total reachability pre-checks, by outcome (reachable, unreachable, unavailable).",
	}, []string{"outcome"})
)

var (
	// HistorySize is a gauge of entries currently held in the history ring.
	HistorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_size",
		Help:      "Number of requests currently held in the in-memory history ring.",
	})

	// UniqueMACs is a gauge of distinct MAC addresses observed.
	UniqueMACs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unique_macs",
		Help:      "Number of distinct MAC addresses observed since startup.",
	})

	// BroadcastDrops counts broadcast-hub publishes dropped for a full
	// subscriber channel; a publish with no subscribers is not counted.
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_drops_total",
		Help:      "Total broadcast publishes dropped because a subscriber channel was full.",
	})

	// StoreWriteErrors counts persistence failures, by sink (jsonlog, sqlite).
	StoreWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_write_errors_total",
		Help:      "Total persistence write failures, by sink.",
	}, []string{"sink"})
)
