// Package metrics — метрики Prometheus узла синхронизации.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	BroadcastsSentN        = "randsync_broadcasts_sent_total"
	BroadcastsSentH        = "The total number of sync broadcasts handed to the radio"
	BroadcastFailuresN     = "randsync_broadcast_failures_total"
	BroadcastFailuresH     = "The total number of broadcasts that failed or found the radio busy"
	FramesReceivedN        = "randsync_frames_received_total"
	FramesReceivedH        = "The total number of sync messages received"
	FramesRejectedN        = "randsync_frames_rejected_total"
	FramesRejectedH        = "The total number of malformed frames or messages ignored"
	UnsynchronizablePeersN = "randsync_unsynchronizable_peers_total"
	UnsynchronizablePeersH = "The total number of exchanges rejected because the peer clock diverged too far"
	EventsDroppedN         = "randsync_events_dropped_total"
	EventsDroppedH         = "The total number of events dropped on a full event queue"
	OffsetCorrectionsN     = "randsync_offset_corrections_total"
	OffsetCorrectionsH     = "The total number of offset corrections applied"
	SkewCorrectionsN       = "randsync_skew_corrections_total"
	SkewCorrectionsH       = "The total number of skew period updates applied"
	OffsetN                = "randsync_offset_ticks"
	OffsetH                = "Current signed micro-offset in ticks"
	SkewPeriodN            = "randsync_skew_period_ticks"
	SkewPeriodH            = "Current skew correction period in ticks"
	HighWordN              = "randsync_high_word"
	HighWordH              = "Current high word of the raw logical clock"
	SyncModeN              = "randsync_sync_mode"
	SyncModeH              = "Current sync mode as its opcode byte"
	PeerDriftN             = "randsync_peer_drift_ppm"
	PeerDriftH             = "Estimated drift of the local clock relative to a peer, from monitoring samples"
)

// Node — набор метрик одного узла.
type Node struct {
	BroadcastsSent        prometheus.Counter
	BroadcastFailures     prometheus.Counter
	FramesReceived        prometheus.Counter
	FramesRejected        prometheus.Counter
	UnsynchronizablePeers prometheus.Counter
	EventsDropped         prometheus.Counter
	OffsetCorrections     prometheus.Counter
	SkewCorrections       prometheus.Counter
	Offset                prometheus.Gauge
	SkewPeriod            prometheus.Gauge
	HighWord              prometheus.Gauge
	SyncMode              prometheus.Gauge
	PeerDrift             *prometheus.GaugeVec
}

// New регистрирует метрики в reg; при reg == nil метрики работают без регистрации.
func New(reg prometheus.Registerer) *Node {
	f := promauto.With(reg)
	return &Node{
		BroadcastsSent: f.NewCounter(prometheus.CounterOpts{
			Name: BroadcastsSentN,
			Help: BroadcastsSentH,
		}),
		BroadcastFailures: f.NewCounter(prometheus.CounterOpts{
			Name: BroadcastFailuresN,
			Help: BroadcastFailuresH,
		}),
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: FramesReceivedN,
			Help: FramesReceivedH,
		}),
		FramesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: FramesRejectedN,
			Help: FramesRejectedH,
		}),
		UnsynchronizablePeers: f.NewCounter(prometheus.CounterOpts{
			Name: UnsynchronizablePeersN,
			Help: UnsynchronizablePeersH,
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: EventsDroppedN,
			Help: EventsDroppedH,
		}),
		OffsetCorrections: f.NewCounter(prometheus.CounterOpts{
			Name: OffsetCorrectionsN,
			Help: OffsetCorrectionsH,
		}),
		SkewCorrections: f.NewCounter(prometheus.CounterOpts{
			Name: SkewCorrectionsN,
			Help: SkewCorrectionsH,
		}),
		Offset: f.NewGauge(prometheus.GaugeOpts{
			Name: OffsetN,
			Help: OffsetH,
		}),
		SkewPeriod: f.NewGauge(prometheus.GaugeOpts{
			Name: SkewPeriodN,
			Help: SkewPeriodH,
		}),
		HighWord: f.NewGauge(prometheus.GaugeOpts{
			Name: HighWordN,
			Help: HighWordH,
		}),
		SyncMode: f.NewGauge(prometheus.GaugeOpts{
			Name: SyncModeN,
			Help: SyncModeH,
		}),
		PeerDrift: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: PeerDriftN,
			Help: PeerDriftH,
		}, []string{"peer"}),
	}
}
