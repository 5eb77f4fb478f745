package telecom

import (
	"log/slog"
)

// AttachOutcome результат обработки уведомления о дескрипторе видео
type AttachOutcome int

const (
	// AttachNoop пустой дескриптор при отсутствии сессии
	AttachNoop AttachOutcome = iota
	// AttachCreated создана новая VideoRecord
	AttachCreated
	// AttachDuplicate повторное уведомление с тем же дескриптором
	AttachDuplicate
	// AttachMismatch другой дескриптор при подключенной сессии, отклонено
	AttachMismatch
	// AttachDetached сессия отключена
	AttachDetached
)

func (o AttachOutcome) String() string {
	switch o {
	case AttachNoop:
		return "noop"
	case AttachCreated:
		return "created"
	case AttachDuplicate:
		return "duplicate"
	case AttachMismatch:
		return "mismatch"
	case AttachDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// VideoEventRouter пересылает события видео сессий в EventSink.
//
// Подключение и отключение сессии выполняются под мьютексом реестра,
// поэтому два callback'а одного звонка не могут создать две VideoRecord.
// Замена дескриптора без промежуточного nil считается ProtocolMismatch:
// существующая сессия сохраняется.
type VideoEventRouter struct {
	registry *CallRegistry
	events   *dispatcher
	metrics  *Metrics
	logger   *slog.Logger
}

// Attach обрабатывает уведомление о дескрипторе видео звонка id.
// video == nil означает отключение сессии.
func (v *VideoEventRouter) Attach(id string, video VideoCall) (AttachOutcome, error) {
	v.registry.mu.Lock()
	defer v.registry.mu.Unlock()

	rec, ok := v.registry.calls[id]
	if !ok {
		// аномалию опоздавшего callback учитывает dispatch
		return AttachNoop, errUnknownCall(id)
	}
	outcome := v.attachLocked(rec, video)
	if outcome == AttachMismatch {
		return outcome, errVideoMismatch(id)
	}
	return outcome, nil
}

// attachLocked вызывается под мьютексом реестра
func (v *VideoEventRouter) attachLocked(rec *CallRecord, video VideoCall) AttachOutcome {
	switch {
	case rec.video == nil && video == nil:
		return AttachNoop

	case rec.video == nil:
		vr := newVideoRecord(rec.id, video)
		vr.callback = &videoCallback{router: v, record: vr}
		video.RegisterCallback(vr.callback)
		rec.video = vr
		v.metrics.videoAttached()
		v.logger.Info("видео сессия подключена", slog.String("call_id", rec.id))
		return AttachCreated

	case video == nil:
		v.detachLocked(rec)
		return AttachDetached

	case rec.video.video == video:
		return AttachDuplicate

	default:
		v.logger.Warn("получен другой дескриптор видео без отключения текущего, сохраняем текущий",
			slog.String("call_id", rec.id))
		v.metrics.anomaly(anomalyVideoMismatch)
		return AttachMismatch
	}
}

// detachLocked отключает видео сессию звонка, если она есть.
// Вызывается под мьютексом реестра.
func (v *VideoEventRouter) detachLocked(rec *CallRecord) {
	vr := rec.video
	if vr == nil {
		return
	}
	rec.video = nil
	vr.markDetached()
	vr.video.UnregisterCallback(vr.callback)
	v.metrics.videoDetached()
	v.logger.Info("видео сессия отключена", slog.String("call_id", rec.id))
}

// StartListening включает пересылку событий видео сессии звонка id
func (v *VideoEventRouter) StartListening(id string, kinds VideoEventKind) error {
	return v.registry.setVideoMask(id, kinds, true)
}

// StopListening выключает пересылку событий видео сессии звонка id
func (v *VideoEventRouter) StopListening(id string, kinds VideoEventKind) error {
	return v.registry.setVideoMask(id, kinds, false)
}

// StartListeningByName то же, что StartListening, по имени события
func (v *VideoEventRouter) StartListeningByName(id, event string) error {
	kind, err := ParseVideoEventKind(event)
	if err != nil {
		return err
	}
	return v.StartListening(id, kind)
}

// StopListeningByName то же, что StopListening, по имени события
func (v *VideoEventRouter) StopListeningByName(id, event string) error {
	kind, err := ParseVideoEventKind(event)
	if err != nil {
		return err
	}
	return v.StopListening(id, kind)
}

func (v *VideoEventRouter) dispatch(vr *VideoRecord, kind VideoEventKind, data func() any) {
	defer v.recoverCallback(vr.callID, kind.String())

	if vr.Detached() {
		v.metrics.eventDropped(dropDetachedVideo)
		return
	}
	if cur, ok := v.registry.Video(vr.callID); !ok || cur != vr {
		v.metrics.eventDropped(dropDetachedVideo)
		return
	}
	if !vr.Listening(kind) {
		v.metrics.eventDropped(dropNotListening)
		return
	}
	v.events.post(kind.EventName(), eventPayload(vr.callID, kind.String(), data()))
}

func (v *VideoEventRouter) recoverCallback(id, what string) {
	if p := recover(); p != nil {
		v.logger.Error("panic в обработке видео callback, уведомление отброшено",
			slog.String("call_id", id),
			slog.String("event", what),
			slog.Any("panic", p))
		v.metrics.anomaly(anomalyCallbackPanic)
	}
}

// videoCallback регистрируется на дескрипторе видео. После отключения
// сессии становится инертным.
type videoCallback struct {
	router *VideoEventRouter
	record *VideoRecord
}

func (c *videoCallback) OnSessionModifyRequestReceived(request VideoProfile) {
	c.router.dispatch(c.record, VideoEventSessionModifyRequest, func() any { return request.toMap() })
}

func (c *videoCallback) OnSessionModifyResponseReceived(status VideoSessionStatus, requested, response VideoProfile) {
	c.router.dispatch(c.record, VideoEventSessionModifyResponse, func() any {
		return map[string]any{
			"Status":           status.String(),
			"RequestedProfile": requested.toMap(),
			"ResponseProfile":  response.toMap(),
		}
	})
}

func (c *videoCallback) OnCallSessionEvent(event VideoSessionEvent) {
	c.router.dispatch(c.record, VideoEventSessionEvent, func() any { return event.String() })
}

func (c *videoCallback) OnPeerDimensionsChanged(width, height int) {
	c.router.dispatch(c.record, VideoEventPeerDimensionsChanged, func() any {
		return map[string]any{"Width": width, "Height": height}
	})
}

func (c *videoCallback) OnVideoQualityChanged(quality VideoQuality) {
	c.router.dispatch(c.record, VideoEventVideoQualityChanged, func() any { return quality.String() })
}

func (c *videoCallback) OnCallDataUsageChanged(bytes int64) {
	c.router.dispatch(c.record, VideoEventDataUsageChanged, func() any { return bytes })
}

func (c *videoCallback) OnCameraCapabilitiesChanged(caps CameraCapabilities) {
	c.router.dispatch(c.record, VideoEventCameraCapabilitiesChanged, func() any { return caps.toMap() })
}
