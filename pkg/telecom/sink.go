package telecom

import (
	"log/slog"
	"sync/atomic"
)

// EventSink внешний получатель событий. PostEvent не должен блокироваться.
// payload всегда одно из: string, []string, map[string]any, целое, nil.
type EventSink interface {
	PostEvent(name string, payload any)
}

// EventSinkFunc адаптер функции к EventSink
type EventSinkFunc func(name string, payload any)

// PostEvent вызывает f
func (f EventSinkFunc) PostEvent(name string, payload any) {
	f(name, payload)
}

type sinkRef struct {
	sink EventSink
}

// dispatcher общий для роутеров звонков и видео канал в EventSink.
// Sink может быть подключен позже создания роутеров.
type dispatcher struct {
	sink    atomic.Pointer[sinkRef]
	metrics *Metrics
	logger  *slog.Logger
}

func (d *dispatcher) setSink(sink EventSink) {
	if sink == nil {
		d.sink.Store(nil)
		return
	}
	d.sink.Store(&sinkRef{sink: sink})
}

func (d *dispatcher) post(name string, payload any) {
	ref := d.sink.Load()
	if ref == nil {
		d.metrics.eventDropped(dropNoSink)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("panic в EventSink, событие отброшено",
				slog.String("event", name),
				slog.Any("panic", p))
			d.metrics.eventDropped(dropSinkPanic)
		}
	}()

	ref.sink.PostEvent(name, payload)
	d.metrics.eventPosted(name)
}

func eventPayload(callID, event string, data any) map[string]any {
	return map[string]any{
		"CallId": callID,
		"Event":  event,
		"Data":   data,
	}
}
