package eventsink

import (
	"context"
	"log/slog"

	"github.com/arzzra/call_tracker/pkg/telecom"
)

// LogSink пишет каждое событие в лог
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

var _ telecom.EventSink = (*LogSink)(nil)

// NewLogSink создает LogSink. События пишутся на уровне level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		logger: logger.With(slog.String("component", "event_log")),
		level:  level,
	}
}

// PostEvent реализует telecom.EventSink
func (s *LogSink) PostEvent(name string, payload any) {
	s.logger.Log(context.Background(), s.level, "event",
		slog.String("event", name),
		slog.Any("payload", payload))
}

// Multi передает каждое событие всем получателям по порядку.
// Паника одного получателя не мешает остальным.
type Multi struct {
	sinks  []telecom.EventSink
	logger *slog.Logger
}

var _ telecom.EventSink = (*Multi)(nil)

// NewMulti создает веер из получателей. nil получатели пропускаются.
func NewMulti(sinks ...telecom.EventSink) *Multi {
	m := &Multi{logger: slog.Default().With(slog.String("component", "event_multi"))}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// PostEvent реализует telecom.EventSink
func (m *Multi) PostEvent(name string, payload any) {
	for _, s := range m.sinks {
		m.post(s, name, payload)
	}
}

func (m *Multi) post(s telecom.EventSink, name string, payload any) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("panic в получателе событий",
				slog.String("event", name),
				slog.Any("panic", p))
		}
	}()
	s.PostEvent(name, payload)
}
