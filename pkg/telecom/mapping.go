package telecom

import (
	"strings"
)

// CallState состояние звонка в телефонной подсистеме
type CallState int

const (
	CallStateNew                CallState = 0
	CallStateDialing            CallState = 1
	CallStateRinging            CallState = 2
	CallStateHolding            CallState = 3
	CallStateActive             CallState = 4
	CallStateDisconnected       CallState = 7
	CallStateSelectPhoneAccount CallState = 8
	CallStateConnecting         CallState = 9
	CallStateDisconnecting      CallState = 10
	CallStatePulling            CallState = 11
	CallStateAudioProcessing    CallState = 12
	CallStateSimulatedRinging   CallState = 13
)

var callStateNames = map[CallState]string{
	CallStateNew:                "NEW",
	CallStateDialing:            "DIALING",
	CallStateRinging:            "RINGING",
	CallStateHolding:            "HOLDING",
	CallStateActive:             "ACTIVE",
	CallStateDisconnected:       "DISCONNECTED",
	CallStateSelectPhoneAccount: "SELECT_PHONE_ACCOUNT",
	CallStateConnecting:         "CONNECTING",
	CallStateDisconnecting:      "DISCONNECTING",
	CallStatePulling:            "PULLING",
	CallStateAudioProcessing:    "AUDIO_PROCESSING",
	CallStateSimulatedRinging:   "SIMULATED_RINGING",
}

func (s CallState) String() string {
	if name, ok := callStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsTerminal true для состояний, из которых звонок уже не вернется
func (s CallState) IsTerminal() bool {
	return s == CallStateDisconnected
}

// VideoState битовое состояние видео: биты TX и RX плюс флаг паузы
type VideoState int

const (
	VideoStateAudioOnly     VideoState = 0
	VideoStateTxEnabled     VideoState = 1
	VideoStateRxEnabled     VideoState = 2
	VideoStateBidirectional VideoState = VideoStateTxEnabled | VideoStateRxEnabled
	VideoStatePaused        VideoState = 4
)

var videoStateNames = map[VideoState]string{
	VideoStateAudioOnly:     "AUDIO_ONLY",
	VideoStateTxEnabled:     "TX_ENABLED",
	VideoStateRxEnabled:     "RX_ENABLED",
	VideoStateBidirectional: "BIDIRECTIONAL",
	VideoStatePaused:        "PAUSED",
}

func (s VideoState) String() string {
	if name, ok := videoStateNames[s]; ok {
		return name
	}
	return "INVALID"
}

// IsVideo true, если хотя бы одно направление видео включено
func (s VideoState) IsVideo() bool {
	return s&VideoStateBidirectional != 0
}

// ParseVideoState разбирает строковое имя состояния видео
func ParseVideoState(name string) (VideoState, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for state, stateName := range videoStateNames {
		if stateName == n {
			return state, true
		}
	}
	return VideoStateAudioOnly, false
}

// VideoQuality качество видео сессии
type VideoQuality int

const (
	VideoQualityUnknown VideoQuality = 0
	VideoQualityHigh    VideoQuality = 1
	VideoQualityMedium  VideoQuality = 2
	VideoQualityLow     VideoQuality = 3
	VideoQualityDefault VideoQuality = 4
)

var videoQualityNames = map[VideoQuality]string{
	VideoQualityUnknown: "UNKNOWN",
	VideoQualityHigh:    "HIGH",
	VideoQualityMedium:  "MEDIUM",
	VideoQualityLow:     "LOW",
	VideoQualityDefault: "DEFAULT",
}

func (q VideoQuality) String() string {
	if name, ok := videoQualityNames[q]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseVideoQuality разбирает имя качества видео. "UNKNOWN" не является
// допустимым значением для запросов и возвращает false.
func ParseVideoQuality(name string) (VideoQuality, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for q, qName := range videoQualityNames {
		if q != VideoQualityUnknown && qName == n {
			return q, true
		}
	}
	return VideoQualityUnknown, false
}

// VideoProfile состояние и качество видео, передаваемые в запросах
// изменения сессии
type VideoProfile struct {
	State   VideoState
	Quality VideoQuality
}

func (p VideoProfile) toMap() map[string]any {
	return map[string]any{
		"VideoState":   p.State.String(),
		"VideoQuality": p.Quality.String(),
	}
}

// VideoSessionStatus результат запроса изменения видео сессии
type VideoSessionStatus int

const (
	VideoSessionStatusSuccess          VideoSessionStatus = 1
	VideoSessionStatusFail             VideoSessionStatus = 2
	VideoSessionStatusInvalid          VideoSessionStatus = 3
	VideoSessionStatusTimedOut         VideoSessionStatus = 4
	VideoSessionStatusRejectedByRemote VideoSessionStatus = 5
)

func (s VideoSessionStatus) String() string {
	switch s {
	case VideoSessionStatusSuccess:
		return "SUCCESS"
	case VideoSessionStatusFail:
		return "FAIL"
	case VideoSessionStatusInvalid:
		return "INVALID"
	case VideoSessionStatusTimedOut:
		return "TIMED_OUT"
	case VideoSessionStatusRejectedByRemote:
		return "REJECTED_BY_REMOTE"
	default:
		return "UNKNOWN"
	}
}

// VideoSessionEvent событие видео сессии от удаленной стороны или камеры
type VideoSessionEvent int

const (
	VideoSessionEventRxPause               VideoSessionEvent = 1
	VideoSessionEventRxResume              VideoSessionEvent = 2
	VideoSessionEventTxStart               VideoSessionEvent = 3
	VideoSessionEventTxStop                VideoSessionEvent = 4
	VideoSessionEventCameraFailure         VideoSessionEvent = 5
	VideoSessionEventCameraReady           VideoSessionEvent = 6
	VideoSessionEventCameraPermissionError VideoSessionEvent = 7
)

func (e VideoSessionEvent) String() string {
	switch e {
	case VideoSessionEventRxPause:
		return "RX_PAUSE"
	case VideoSessionEventRxResume:
		return "RX_RESUME"
	case VideoSessionEventTxStart:
		return "TX_START"
	case VideoSessionEventTxStop:
		return "TX_STOP"
	case VideoSessionEventCameraFailure:
		return "CAMERA_FAILURE"
	case VideoSessionEventCameraReady:
		return "CAMERA_READY"
	case VideoSessionEventCameraPermissionError:
		return "CAMERA_PERMISSION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// CameraCapabilities возможности камеры, сообщаемые видео сессией
type CameraCapabilities struct {
	Width         int
	Height        int
	ZoomSupported bool
	MaxZoom       float32
}

func (c CameraCapabilities) toMap() map[string]any {
	return map[string]any{
		"Width":         c.Width,
		"Height":        c.Height,
		"ZoomSupported": c.ZoomSupported,
		"MaxZoom":       c.MaxZoom,
	}
}

// AudioRoute маршрут аудио. Значения являются битами, поэтому
// набор поддерживаемых маршрутов передается той же маской.
type AudioRoute int

const (
	AudioRouteEarpiece        AudioRoute = 0x01
	AudioRouteBluetooth       AudioRoute = 0x02
	AudioRouteWiredHeadset    AudioRoute = 0x04
	AudioRouteSpeaker         AudioRoute = 0x08
	AudioRouteStreaming       AudioRoute = 0x10
	AudioRouteWiredOrEarpiece AudioRoute = AudioRouteEarpiece | AudioRouteWiredHeadset
)

// порядок важен для декодирования маски поддерживаемых маршрутов
var audioRouteNames = []struct {
	route AudioRoute
	name  string
}{
	{AudioRouteEarpiece, "EARPIECE"},
	{AudioRouteBluetooth, "BLUETOOTH"},
	{AudioRouteWiredHeadset, "WIRED_HEADSET"},
	{AudioRouteSpeaker, "SPEAKER"},
	{AudioRouteStreaming, "STREAMING"},
}

func (r AudioRoute) String() string {
	if r == AudioRouteWiredOrEarpiece {
		return "WIRED_OR_EARPIECE"
	}
	for _, e := range audioRouteNames {
		if e.route == r {
			return e.name
		}
	}
	return "UNKNOWN"
}

// Routes раскладывает маску маршрутов на имена
func (r AudioRoute) Routes() []string {
	routes := make([]string, 0, len(audioRouteNames))
	for _, e := range audioRouteNames {
		if r&e.route != 0 {
			routes = append(routes, e.name)
		}
	}
	return routes
}

// ParseAudioRoute разбирает имя маршрута аудио
func ParseAudioRoute(name string) (AudioRoute, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "WIRED_OR_EARPIECE" {
		return AudioRouteWiredOrEarpiece, true
	}
	for _, e := range audioRouteNames {
		if e.name == n {
			return e.route, true
		}
	}
	return 0, false
}

// Биты возможностей звонка
const (
	CapabilityHold                     uint32 = 0x00000001
	CapabilitySupportHold              uint32 = 0x00000002
	CapabilityMergeConference          uint32 = 0x00000004
	CapabilitySwapConference           uint32 = 0x00000008
	CapabilityRespondViaText           uint32 = 0x00000020
	CapabilityMute                     uint32 = 0x00000040
	CapabilityManageConference         uint32 = 0x00000080
	CapabilitySupportsVTLocalRx        uint32 = 0x00000100
	CapabilitySupportsVTLocalTx        uint32 = 0x00000200
	CapabilitySupportsVTLocalBidi      uint32 = 0x00000300
	CapabilitySupportsVTRemoteRx       uint32 = 0x00000400
	CapabilitySupportsVTRemoteTx       uint32 = 0x00000800
	CapabilitySupportsVTRemoteBidi     uint32 = 0x00000C00
	CapabilitySeparateFromConference   uint32 = 0x00001000
	CapabilityDisconnectFromConference uint32 = 0x00002000
	CapabilitySpeedUpMtAudio           uint32 = 0x00040000
	CapabilityCanUpgradeToVideo        uint32 = 0x00080000
	CapabilityCanPauseVideo            uint32 = 0x00100000
	CapabilityCanPullCall              uint32 = 0x00800000
	CapabilityAddParticipant           uint32 = 0x02000000
	CapabilityTransfer                 uint32 = 0x04000000
	CapabilityTransferConsultative     uint32 = 0x08000000
	CapabilityRemotePartyRtt           uint32 = 0x10000000
)

// Биты свойств звонка
const (
	PropertyConference                     uint32 = 0x00000001
	PropertyGenericConference              uint32 = 0x00000002
	PropertyEmergencyCallbackMode          uint32 = 0x00000004
	PropertyWifi                           uint32 = 0x00000008
	PropertyHighDefAudio                   uint32 = 0x00000010
	PropertyEnterpriseCall                 uint32 = 0x00000020
	PropertyIsExternalCall                 uint32 = 0x00000040
	PropertyHasCdmaVoicePrivacy            uint32 = 0x00000080
	PropertyAssistedDialingUsed            uint32 = 0x00000200
	PropertyNetworkIdentifiedEmergencyCall uint32 = 0x00000400
	PropertyRtt                            uint32 = 0x00000800
	PropertySelfManaged                    uint32 = 0x00001000
	PropertyVoipAudioMode                  uint32 = 0x00002000
)

type bitTag struct {
	bit uint32
	tag string
}

// Порядок списка определяет порядок тегов в результате декодирования.
// Составные маски (LOCAL_BIDIRECTIONAL и т.п.) стоят после своих частей.
var capabilityTags = []bitTag{
	{CapabilityHold, "HOLD"},
	{CapabilitySupportHold, "SUPPORT_HOLD"},
	{CapabilityMergeConference, "MERGE_CONFERENCE"},
	{CapabilitySwapConference, "SWAP_CONFERENCE"},
	{CapabilityRespondViaText, "RESPOND_VIA_TEXT"},
	{CapabilityMute, "MUTE"},
	{CapabilityManageConference, "MANAGE_CONFERENCE"},
	{CapabilitySupportsVTLocalRx, "SUPPORTS_VT_LOCAL_RX"},
	{CapabilitySupportsVTLocalTx, "SUPPORTS_VT_LOCAL_TX"},
	{CapabilitySupportsVTLocalBidi, "SUPPORTS_VT_LOCAL_BIDIRECTIONAL"},
	{CapabilitySupportsVTRemoteRx, "SUPPORTS_VT_REMOTE_RX"},
	{CapabilitySupportsVTRemoteTx, "SUPPORTS_VT_REMOTE_TX"},
	{CapabilitySupportsVTRemoteBidi, "SUPPORTS_VT_REMOTE_BIDIRECTIONAL"},
	{CapabilitySeparateFromConference, "SEPARATE_FROM_CONFERENCE"},
	{CapabilityDisconnectFromConference, "DISCONNECT_FROM_CONFERENCE"},
	{CapabilitySpeedUpMtAudio, "SPEED_UP_MT_AUDIO"},
	{CapabilityCanUpgradeToVideo, "CAN_UPGRADE_TO_VIDEO"},
	{CapabilityCanPauseVideo, "CAN_PAUSE_VIDEO"},
	{CapabilityCanPullCall, "CAN_PULL_CALL"},
	{CapabilityAddParticipant, "ADD_PARTICIPANT"},
	{CapabilityTransfer, "TRANSFER"},
	{CapabilityTransferConsultative, "TRANSFER_CONSULTATIVE"},
	{CapabilityRemotePartyRtt, "REMOTE_PARTY_SUPPORTS_RTT"},
}

var propertyTags = []bitTag{
	{PropertyConference, "CONFERENCE"},
	{PropertyGenericConference, "GENERIC_CONFERENCE"},
	{PropertyEmergencyCallbackMode, "EMERGENCY_CALLBACK_MODE"},
	{PropertyWifi, "WIFI"},
	{PropertyHighDefAudio, "HIGH_DEF_AUDIO"},
	{PropertyEnterpriseCall, "ENTERPRISE_CALL"},
	{PropertyIsExternalCall, "IS_EXTERNAL_CALL"},
	{PropertyHasCdmaVoicePrivacy, "HAS_CDMA_VOICE_PRIVACY"},
	{PropertyAssistedDialingUsed, "ASSISTED_DIALING_USED"},
	{PropertyNetworkIdentifiedEmergencyCall, "NETWORK_IDENTIFIED_EMERGENCY_CALL"},
	{PropertyRtt, "RTT"},
	{PropertySelfManaged, "SELF_MANAGED"},
	{PropertyVoipAudioMode, "VOIP_AUDIO_MODE"},
}

func decodeBits(mask uint32, table []bitTag) []string {
	tags := make([]string, 0, len(table))
	for _, t := range table {
		if mask&t.bit == t.bit {
			tags = append(tags, t.tag)
		}
	}
	return tags
}

// DecodeCapabilities возвращает теги известных битов возможностей.
// Неизвестные биты пропускаются.
func DecodeCapabilities(mask uint32) []string {
	return decodeBits(mask, capabilityTags)
}

// DecodeProperties возвращает теги известных битов свойств
func DecodeProperties(mask uint32) []string {
	return decodeBits(mask, propertyTags)
}

// ParseDtmfDigit проверяет, что строка содержит ровно один DTMF символ
func ParseDtmfDigit(s string) (rune, error) {
	r := []rune(s)
	if len(r) != 1 {
		return 0, errInvalidArgument("INVALID_DTMF_DIGIT", "digit", s)
	}
	switch c := r[0]; {
	case c >= '0' && c <= '9', c == '*', c == '#':
		return c, nil
	case c >= 'A' && c <= 'D':
		return c, nil
	case c >= 'a' && c <= 'd':
		return c - 'a' + 'A', nil
	}
	return 0, errInvalidArgument("INVALID_DTMF_DIGIT", "digit", s)
}
