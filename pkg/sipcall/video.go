package sipcall

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/call_tracker/pkg/telecom"
)

// pendingModify re-INVITE удаленной стороны, ожидающий ответа приложения
type pendingModify struct {
	req       *sip.Request
	respond   responder
	requested telecom.VideoProfile
	timer     *time.Timer
}

// Video видео сессия SIP звонка
type Video struct {
	call *Call

	mu         sync.Mutex
	callbacks  []telecom.VideoCallback
	state      telecom.VideoState
	quality    telecom.VideoQuality
	camera     string
	peerWidth  int
	peerHeight int
	pending    *pendingModify
}

var _ telecom.VideoCall = (*Video)(nil)

func newVideo(call *Call, state telecom.VideoState) *Video {
	return &Video{
		call:    call,
		state:   state,
		quality: telecom.VideoQualityDefault,
	}
}

// State текущее согласованное состояние видео
func (v *Video) State() telecom.VideoState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Video) setState(state telecom.VideoState) {
	v.mu.Lock()
	v.state = state
	v.mu.Unlock()
}

func (v *Video) profile() telecom.VideoProfile {
	v.mu.Lock()
	defer v.mu.Unlock()
	return telecom.VideoProfile{State: v.state, Quality: v.quality}
}

func (v *Video) RegisterCallback(cb telecom.VideoCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !slices.Contains(v.callbacks, cb) {
		v.callbacks = append(v.callbacks, cb)
	}
}

func (v *Video) UnregisterCallback(cb telecom.VideoCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := slices.Index(v.callbacks, cb); i >= 0 {
		v.callbacks = slices.Delete(v.callbacks, i, i+1)
	}
}

func (v *Video) notify(fn func(cb telecom.VideoCallback)) {
	v.mu.Lock()
	cbs := slices.Clone(v.callbacks)
	v.mu.Unlock()
	for _, cb := range cbs {
		fn(cb)
	}
}

// SendSessionModifyRequest предлагает удаленной стороне новое состояние
// видео через re-INVITE. Результат приходит в OnSessionModifyResponseReceived.
func (v *Video) SendSessionModifyRequest(request telecom.VideoProfile) error {
	c := v.call
	c.mu.Lock()
	if c.conference || c.fsm.Current() != stateActive {
		c.mu.Unlock()
		return c.invalid("session modify")
	}
	body, err := c.localSDPLocked(false, request.State)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	req := c.newRequestLocked(sip.INVITE)
	c.mu.Unlock()

	setBody(req, "application/sdp", body)
	res, err := c.exchange(req)

	status := telecom.VideoSessionStatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		status = telecom.VideoSessionStatusTimedOut
	case errors.Is(err, ErrRemoteRejected):
		status = telecom.VideoSessionStatusRejectedByRemote
	default:
		status = telecom.VideoSessionStatusFail
	}

	response := v.profile()
	if status == telecom.VideoSessionStatusSuccess {
		response = request
		if offer, perr := parseSDP(res.Body()); perr == nil && offer.hasVideo {
			response.State = request.State & offer.videoState()
		}
		v.apply(response)
	} else {
		c.logger.Warn("запрос изменения видео не выполнен",
			slog.String("status", status.String()),
			slog.String("error", err.Error()))
	}

	v.notify(func(cb telecom.VideoCallback) {
		cb.OnSessionModifyResponseReceived(status, request, response)
	})
	return nil
}

// SendSessionModifyResponse отвечает на ожидающий re-INVITE удаленной стороны
func (v *Video) SendSessionModifyResponse(response telecom.VideoProfile) error {
	v.mu.Lock()
	p := v.pending
	v.pending = nil
	v.mu.Unlock()
	if p == nil {
		return ErrNoPendingRequest
	}
	p.timer.Stop()

	c := v.call
	c.mu.Lock()
	body, err := c.localSDPLocked(c.fsm.Current() == stateHolding, response.State)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if err := c.send(p.respond, c.answerResponse(p.req, body)); err != nil {
		return err
	}
	v.apply(response)
	return nil
}

// apply фиксирует согласованный профиль и сообщает об изменениях
func (v *Video) apply(p telecom.VideoProfile) {
	v.mu.Lock()
	qualityChanged := p.Quality != v.quality && p.Quality != telecom.VideoQualityUnknown
	v.state = p.State
	if qualityChanged {
		v.quality = p.Quality
	}
	v.mu.Unlock()

	if qualityChanged {
		v.notify(func(cb telecom.VideoCallback) { cb.OnVideoQualityChanged(p.Quality) })
	}
	v.call.setVideoState(p.State)
}

func (v *Video) RequestCameraCapabilities() error {
	caps := v.call.service.camera
	v.notify(func(cb telecom.VideoCallback) { cb.OnCameraCapabilitiesChanged(caps) })
	return nil
}

func (v *Video) RequestCallDataUsage() error {
	usage := v.call.DataUsage()
	v.notify(func(cb telecom.VideoCallback) { cb.OnCallDataUsageChanged(usage) })
	return nil
}

// SetCamera выбирает камеру. Пустой идентификатор выключает камеру.
func (v *Video) SetCamera(cameraID string) error {
	v.mu.Lock()
	prev := v.camera
	v.camera = cameraID
	v.mu.Unlock()

	switch {
	case cameraID == prev:
	case cameraID == "":
		v.notify(func(cb telecom.VideoCallback) { cb.OnCallSessionEvent(telecom.VideoSessionEventTxStop) })
	default:
		v.notify(func(cb telecom.VideoCallback) { cb.OnCallSessionEvent(telecom.VideoSessionEventCameraReady) })
		return v.RequestCameraCapabilities()
	}
	return nil
}

// Camera выбранная камера
func (v *Video) Camera() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.camera
}

// remoteRequest сохраняет re-INVITE до ответа приложения. false, если
// предыдущий запрос еще не обработан.
func (v *Video) remoteRequest(req *sip.Request, respond responder, requested telecom.VideoProfile, timeout time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending != nil {
		return false
	}
	p := &pendingModify{req: req, respond: respond, requested: requested}
	p.timer = time.AfterFunc(timeout, func() { v.expire(p) })
	v.pending = p
	return true
}

// expire отвечает 408 на запрос, оставшийся без ответа
func (v *Video) expire(p *pendingModify) {
	v.mu.Lock()
	if v.pending != p {
		v.mu.Unlock()
		return
	}
	v.pending = nil
	v.mu.Unlock()

	v.call.logger.Warn("запрос изменения видео остался без ответа")
	v.call.service.reply(p.respond, v.call.decorate(sip.NewResponseFromRequest(p.req, 408, "Request Timeout", nil)))
}

func (v *Video) peerDimensions(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.mu.Lock()
	changed := width != v.peerWidth || height != v.peerHeight
	v.peerWidth, v.peerHeight = width, height
	v.mu.Unlock()
	if changed {
		v.notify(func(cb telecom.VideoCallback) { cb.OnPeerDimensionsChanged(width, height) })
	}
}

// setVideoState обновляет VideoState в деталях звонка
func (c *Call) setVideoState(state telecom.VideoState) {
	c.mu.Lock()
	if c.details.VideoState == state {
		c.mu.Unlock()
		return
	}
	c.details.VideoState = state
	details := c.details
	c.mu.Unlock()
	c.notifyDetails(details)
}

// handleReinvite обрабатывает re-INVITE удаленной стороны. Изменение
// видео передается приложению как запрос изменения сессии, остальные
// re-INVITE получают ответ сразу.
func (c *Call) handleReinvite(req *sip.Request, respond responder) {
	var parsed *mediaOffer
	if body := req.Body(); len(body) > 0 {
		offer, err := parseSDP(body)
		if err != nil {
			c.service.reply(respond, c.decorate(sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil)))
			return
		}
		parsed = &offer
	}

	c.mu.Lock()
	state := c.fsm.Current()
	if state != stateActive && state != stateHolding {
		c.mu.Unlock()
		c.service.reply(respond, c.decorate(sip.NewResponseFromRequest(req, 491, "Request Pending", nil)))
		return
	}
	// re-INVITE без SDP сохраняет прежние медиа параметры
	offer := c.remote
	if parsed != nil {
		if parsed.host == "" {
			parsed.host = c.remote.host
		}
		offer = *parsed
	}
	c.usage += int64(len(req.Body()))
	c.remote = offer
	video := c.video
	requested := offer.videoState()

	var created, removed bool
	switch {
	case video == nil && requested != telecom.VideoStateAudioOnly:
		video = newVideo(c, telecom.VideoStateAudioOnly)
		c.video = video
		c.details.Capabilities |= telecom.CapabilitySupportsVTRemoteBidi
		created = true
	case video != nil && requested == telecom.VideoStateAudioOnly:
		c.video = nil
		c.details.Capabilities &^= telecom.CapabilitySupportsVTRemoteBidi
		removed = true
	}

	if video == nil || removed || video.State() == requested {
		current := c.videoStateLocked()
		body, err := c.localSDPLocked(state == stateHolding, current)
		c.mu.Unlock()
		if err != nil {
			c.service.reply(respond, c.decorate(sip.NewResponseFromRequest(req, 500, "Server Internal Error", nil)))
			return
		}
		if err := c.send(respond, c.answerResponse(req, body)); err != nil {
			c.logger.Warn("ошибка ответа на re-INVITE", slog.String("error", err.Error()))
		}
		if removed {
			c.logger.Info("удаленная сторона отключила видео")
			c.notify(func(cb telecom.CallCallback) { cb.OnVideoCallChanged(c, nil) })
			c.setVideoState(telecom.VideoStateAudioOnly)
		} else if video != nil {
			video.peerDimensions(offer.width, offer.height)
		}
		return
	}
	c.mu.Unlock()

	profile := telecom.VideoProfile{State: requested, Quality: telecom.VideoQualityDefault}
	if !video.remoteRequest(req, respond, profile, c.service.timeout) {
		c.service.reply(respond, c.decorate(sip.NewResponseFromRequest(req, 491, "Request Pending", nil)))
		return
	}

	if created {
		c.logger.Info("удаленная сторона предложила видео", slog.String("video_state", requested.String()))
		c.notify(func(cb telecom.CallCallback) { cb.OnVideoCallChanged(c, video) })
	}
	video.peerDimensions(offer.width, offer.height)
	video.notify(func(cb telecom.VideoCallback) { cb.OnSessionModifyRequestReceived(profile) })
}
