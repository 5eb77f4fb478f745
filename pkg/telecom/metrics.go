package telecom

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отброшенных событий
const (
	dropNoSink        = "no_sink"
	dropNotListening  = "not_listening"
	dropUnknownCall   = "unknown_call"
	dropDetachedVideo = "detached_video"
	dropSinkPanic     = "sink_panic"
)

// Виды аномалий
const (
	anomalyDuplicateAdd   = "duplicate_add"
	anomalyVideoMismatch  = "video_mismatch"
	anomalyAnchorConflict = "anchor_conflict"
	anomalyCallbackPanic  = "callback_panic"
	anomalyLateCallback   = "late_callback"
)

// Metrics Prometheus метрики трекера. Nil *Metrics допустим и ничего не пишет.
type Metrics struct {
	callsTotal    prometheus.Counter
	callsActive   prometheus.Gauge
	videoActive   prometheus.Gauge
	eventsPosted  *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
}

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	// Namespace префикс метрик
	Namespace string
	// Subsystem подсистема метрик
	Subsystem string
	// Registerer куда регистрировать метрики. nil означает prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace: "telecom",
		Subsystem: "tracker",
	}
}

// NewMetrics создает и регистрирует метрики
func NewMetrics(config *MetricsConfig) (*Metrics, error) {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		callsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "calls_total",
			Help:      "Total number of calls added to the registry",
		}),
		callsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "calls_active",
			Help:      "Number of calls currently tracked",
		}),
		videoActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "video_sessions_active",
			Help:      "Number of attached video sessions",
		}),
		eventsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "events_posted_total",
			Help:      "Events forwarded to the event sink",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "events_dropped_total",
			Help:      "Events not forwarded to the event sink",
		}, []string{"reason"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "anomalies_total",
			Help:      "Protocol mismatches and callback ordering anomalies",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.callsTotal, m.callsActive, m.videoActive,
		m.eventsPosted, m.eventsDropped, m.anomalies,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("регистрация метрик: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) callAdded() {
	if m == nil {
		return
	}
	m.callsTotal.Inc()
	m.callsActive.Inc()
}

func (m *Metrics) callRemoved() {
	if m == nil {
		return
	}
	m.callsActive.Dec()
}

func (m *Metrics) videoAttached() {
	if m == nil {
		return
	}
	m.videoActive.Inc()
}

func (m *Metrics) videoDetached() {
	if m == nil {
		return
	}
	m.videoActive.Dec()
}

func (m *Metrics) eventPosted(name string) {
	if m == nil {
		return
	}
	m.eventsPosted.WithLabelValues(name).Inc()
}

func (m *Metrics) eventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) anomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}
