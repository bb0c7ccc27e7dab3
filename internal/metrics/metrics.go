// SPDX-License-Identifier: MIT
// Package metrics provides Prometheus counters for the bridge and the server
// notification channel.
//
// Counters for a stream are resolved once at spawn time. Incrementing a
// resolved counter is a lock-free atomic add, which makes it the only
// diagnostic the real-time callback is allowed to emit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	periods = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "bridge",
		Name:      "periods_total",
		Help:      "Process periods handled by the bridge",
	}, []string{"client"})

	oversizedPeriods = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "bridge",
		Name:      "oversized_periods_total",
		Help:      "Periods whose frame count exceeded the negotiated maximum",
	}, []string{"client"})

	shortWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "bridge",
		Name:      "short_output_writes_total",
		Help:      "Output channels whose buffer length differed from the period length",
	}, []string{"client"})

	midiInDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "bridge",
		Name:      "midi_in_dropped_total",
		Help:      "Incoming MIDI events dropped by a controller buffer",
	}, []string{"client"})

	midiOutErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "bridge",
		Name:      "midi_out_write_errors_total",
		Help:      "Outgoing MIDI events the server refused",
	}, []string{"client"})

	processPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "bridge",
		Name:      "process_panics_total",
		Help:      "Panics recovered from the application process function",
	}, []string{"client"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtio",
		Subsystem: "server",
		Name:      "notifications_total",
		Help:      "Server notifications received, by kind",
	}, []string{"client", "kind"})
)

// Bridge holds the counters of one stream.
type Bridge struct {
	client string

	Periods          prometheus.Counter
	OversizedPeriods prometheus.Counter
	ShortWrites      prometheus.Counter
	MidiInDropped    prometheus.Counter
	MidiOutErrors    prometheus.Counter
	ProcessPanics    prometheus.Counter
}

// ForClient resolves the bridge counters for a client name.
func ForClient(client string) *Bridge {
	return &Bridge{
		client:           client,
		Periods:          periods.WithLabelValues(client),
		OversizedPeriods: oversizedPeriods.WithLabelValues(client),
		ShortWrites:      shortWrites.WithLabelValues(client),
		MidiInDropped:    midiInDropped.WithLabelValues(client),
		MidiOutErrors:    midiOutErrors.WithLabelValues(client),
		ProcessPanics:    processPanics.WithLabelValues(client),
	}
}

// Snapshot is a point-in-time copy of the bridge counters.
type Snapshot struct {
	Periods          uint64
	OversizedPeriods uint64
	ShortWrites      uint64
	MidiInDropped    uint64
	MidiOutErrors    uint64
	ProcessPanics    uint64
}

// Snapshot reads the current counter values.
func (b *Bridge) Snapshot() Snapshot {
	return Snapshot{
		Periods:          Value(b.Periods),
		OversizedPeriods: Value(b.OversizedPeriods),
		ShortWrites:      Value(b.ShortWrites),
		MidiInDropped:    Value(b.MidiInDropped),
		MidiOutErrors:    Value(b.MidiOutErrors),
		ProcessPanics:    Value(b.ProcessPanics),
	}
}

// Sub returns the per-field difference s - prev.
func (s Snapshot) Sub(prev Snapshot) Snapshot {
	return Snapshot{
		Periods:          s.Periods - prev.Periods,
		OversizedPeriods: s.OversizedPeriods - prev.OversizedPeriods,
		ShortWrites:      s.ShortWrites - prev.ShortWrites,
		MidiInDropped:    s.MidiInDropped - prev.MidiInDropped,
		MidiOutErrors:    s.MidiOutErrors - prev.MidiOutErrors,
		ProcessPanics:    s.ProcessPanics - prev.ProcessPanics,
	}
}

// Delete removes the client's series once its stream is gone.
func (b *Bridge) Delete() {
	periods.DeleteLabelValues(b.client)
	oversizedPeriods.DeleteLabelValues(b.client)
	shortWrites.DeleteLabelValues(b.client)
	midiInDropped.DeleteLabelValues(b.client)
	midiOutErrors.DeleteLabelValues(b.client)
	processPanics.DeleteLabelValues(b.client)
	notifications.DeletePartialMatch(prometheus.Labels{"client": b.client})
}

// Notification counts one server notification of the given kind.
func Notification(client, kind string) {
	notifications.WithLabelValues(client, kind).Inc()
}

// NotificationCount returns how many notifications of a kind were counted.
func NotificationCount(client, kind string) uint64 {
	return Value(notifications.WithLabelValues(client, kind))
}

// Value reads a counter through its protobuf representation.
func Value(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}
