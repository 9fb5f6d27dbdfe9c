package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nhbvault/core/events"
)

// EventMetrics counts emitted vault events by type.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventOnce    sync.Once
	eventMetrics *EventMetrics
)

// Events returns the process-wide event counters.
func Events() *EventMetrics {
	eventOnce.Do(func() {
		eventMetrics = &EventMetrics{
			emitted: counter("events", "emitted_total", "Vault events by type.", "type"),
		}
		prometheus.MustRegister(eventMetrics.emitted)
	})
	return eventMetrics
}

// Record counts one event. Blank types are labelled "unknown".
func (m *EventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	label := strings.ToLower(strings.TrimSpace(eventType))
	if label == "" {
		label = "unknown"
	}
	m.emitted.WithLabelValues(label).Inc()
}

// LogEmitter logs every event at Info with its attributes in key order and
// counts it by type.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements events.Emitter.
func (e LogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().Record(evt.EventType())
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	payload := evt.Event()
	keys := make([]string, 0, len(payload.Attributes))
	for key := range payload.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, slog.String(key, payload.Attributes[key]))
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "vault event", append([]slog.Attr{slog.String("type", payload.Type)}, attrs...)...)
}
