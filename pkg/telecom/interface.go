package telecom

import (
	"time"
)

// Call дескриптор звонка, принадлежащий внешней телефонной подсистеме.
//
// Трекер никогда не хранит Call дольше, чем живет его CallRecord.
// ID должен быть детерминированным: все callback'и одного логического
// звонка обязаны возвращать одну и ту же строку. Реализации должны быть
// сравнимыми (указатели), так как трекер сравнивает дескрипторы через ==.
type Call interface {
	ID() string
	State() CallState
	Details() CallDetails
	Parent() Call
	Children() []Call
	ConferenceableCalls() []Call
	CannedTextResponses() []string
	VideoCall() VideoCall

	RegisterCallback(cb CallCallback)
	UnregisterCallback(cb CallCallback)

	Answer(videoState VideoState) error
	Reject(withMessage bool, text string) error
	Disconnect() error
	Hold() error
	Unhold() error
	PlayDtmfTone(digit rune) error
	StopDtmfTone() error
	PostDialContinue(proceed bool) error
	Conference(other Call) error
	SplitFromConference() error
	MergeConference() error
	SwapConference() error
}

// CallCallback получатель событий звонка. Вызывается из горутин
// телефонной подсистемы.
type CallCallback interface {
	OnStateChanged(call Call, state CallState)
	OnParentChanged(call Call, parent Call)
	OnChildrenChanged(call Call, children []Call)
	OnDetailsChanged(call Call, details CallDetails)
	OnCannedTextResponsesLoaded(call Call, responses []string)
	OnPostDialWait(call Call, remaining string)
	OnVideoCallChanged(call Call, video VideoCall)
	OnCallDestroyed(call Call)
	OnConferenceableCallsChanged(call Call, calls []Call)
}

// VideoCall дескриптор видео сессии звонка
type VideoCall interface {
	RegisterCallback(cb VideoCallback)
	UnregisterCallback(cb VideoCallback)

	SendSessionModifyRequest(request VideoProfile) error
	SendSessionModifyResponse(response VideoProfile) error
	RequestCameraCapabilities() error
	RequestCallDataUsage() error
	SetCamera(cameraID string) error
}

// VideoCallback получатель событий видео сессии
type VideoCallback interface {
	OnSessionModifyRequestReceived(request VideoProfile)
	OnSessionModifyResponseReceived(status VideoSessionStatus, requested, response VideoProfile)
	OnCallSessionEvent(event VideoSessionEvent)
	OnPeerDimensionsChanged(width, height int)
	OnVideoQualityChanged(quality VideoQuality)
	OnCallDataUsageChanged(bytes int64)
	OnCameraCapabilitiesChanged(caps CameraCapabilities)
}

// CallListener принимает уведомления о появлении и удалении звонков.
// Реализуется CallEventRouter и вызывается адаптером телефонной подсистемы.
type CallListener interface {
	OnCallAdded(call Call)
	OnCallRemoved(call Call)
}

// AudioController управляет маршрутизацией аудио устройства
type AudioController interface {
	SetAudioRoute(route AudioRoute) error
	SetMuted(muted bool) error
	AudioState() AudioState
}

// AudioState текущее состояние аудио
type AudioState struct {
	Route           AudioRoute
	SupportedRoutes AudioRoute
	Muted           bool
}

// CallDetails неизменяемый снимок деталей звонка
type CallDetails struct {
	Handle            string
	CallerDisplayName string
	Capabilities      uint32
	Properties        uint32
	VideoState        VideoState
	DisconnectCause   string
	CreationTime      time.Time
	ConnectTime       time.Time
}

func (d CallDetails) toMap() map[string]any {
	m := map[string]any{
		"Handle":             d.Handle,
		"CallerDisplayName":  d.CallerDisplayName,
		"Capabilities":       DecodeCapabilities(d.Capabilities),
		"Properties":         DecodeProperties(d.Properties),
		"VideoState":         d.VideoState.String(),
		"DisconnectCause":    d.DisconnectCause,
		"CreationTimeMillis": int64(0),
		"ConnectTimeMillis":  int64(0),
	}
	if !d.CreationTime.IsZero() {
		m["CreationTimeMillis"] = d.CreationTime.UnixMilli()
	}
	if !d.ConnectTime.IsZero() {
		m["ConnectTimeMillis"] = d.ConnectTime.UnixMilli()
	}
	return m
}
