package telecom

import (
	"strings"
)

// Префиксы имен событий, уходящих в EventSink
const (
	callEventPrefix  = "TelecomCall"
	videoEventPrefix = "TelecomVideoCall"
)

// CallEventKind категория callback событий звонка.
// Значения являются битами маски подписки CallRecord.
type CallEventKind uint32

const (
	CallEventStateChanged CallEventKind = 1 << iota
	CallEventParentChanged
	CallEventChildrenChanged
	CallEventDetailsChanged
	CallEventCannedTextLoaded
	CallEventPostDialWait
	CallEventVideoCallChanged
	CallEventCallDestroyed
	CallEventConferenceableChanged

	// CallEventAll все события звонка
	CallEventAll = CallEventStateChanged | CallEventParentChanged | CallEventChildrenChanged |
		CallEventDetailsChanged | CallEventCannedTextLoaded | CallEventPostDialWait |
		CallEventVideoCallChanged | CallEventCallDestroyed | CallEventConferenceableChanged
)

var callEventNames = []struct {
	kind CallEventKind
	name string
}{
	{CallEventStateChanged, "StateChanged"},
	{CallEventParentChanged, "ParentChanged"},
	{CallEventChildrenChanged, "ChildrenChanged"},
	{CallEventDetailsChanged, "DetailsChanged"},
	{CallEventCannedTextLoaded, "CannedTextResponsesLoaded"},
	{CallEventPostDialWait, "PostDialWait"},
	{CallEventVideoCallChanged, "VideoCallChanged"},
	{CallEventCallDestroyed, "CallDestroyed"},
	{CallEventConferenceableChanged, "ConferenceableCallsChanged"},
}

// String возвращает имя одиночного события. Для составной маски
// возвращает имена через "|".
func (k CallEventKind) String() string {
	if k == 0 {
		return "None"
	}
	if k == CallEventAll {
		return "All"
	}
	var parts []string
	for _, e := range callEventNames {
		if k&e.kind != 0 {
			parts = append(parts, e.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// EventName имя события для EventSink
func (k CallEventKind) EventName() string {
	return callEventPrefix + k.String()
}

// Has проверяет, что все биты other установлены в k
func (k CallEventKind) Has(other CallEventKind) bool {
	return other != 0 && k&other == other
}

// Kinds раскладывает маску на одиночные события в фиксированном порядке
func (k CallEventKind) Kinds() []CallEventKind {
	var kinds []CallEventKind
	for _, e := range callEventNames {
		if k&e.kind != 0 {
			kinds = append(kinds, e.kind)
		}
	}
	return kinds
}

// ParseCallEventKind преобразует имя события в CallEventKind.
// Принимает короткое имя ("StateChanged"), имя с префиксом
// ("TelecomCallStateChanged") и "All" без учета регистра.
func ParseCallEventKind(name string) (CallEventKind, error) {
	n := strings.TrimSpace(name)
	if strings.EqualFold(n, "All") {
		return CallEventAll, nil
	}
	if len(n) > len(callEventPrefix) && strings.EqualFold(n[:len(callEventPrefix)], callEventPrefix) {
		n = n[len(callEventPrefix):]
	}
	for _, e := range callEventNames {
		if strings.EqualFold(n, e.name) {
			return e.kind, nil
		}
	}
	return 0, errInvalidArgument("UNKNOWN_CALL_EVENT", "event", name)
}

// VideoEventKind категория callback событий видео сессии
type VideoEventKind uint32

const (
	VideoEventSessionModifyRequest VideoEventKind = 1 << iota
	VideoEventSessionModifyResponse
	VideoEventSessionEvent
	VideoEventPeerDimensionsChanged
	VideoEventVideoQualityChanged
	VideoEventDataUsageChanged
	VideoEventCameraCapabilitiesChanged

	// VideoEventAll все события видео сессии
	VideoEventAll = VideoEventSessionModifyRequest | VideoEventSessionModifyResponse |
		VideoEventSessionEvent | VideoEventPeerDimensionsChanged | VideoEventVideoQualityChanged |
		VideoEventDataUsageChanged | VideoEventCameraCapabilitiesChanged
)

var videoEventNames = []struct {
	kind VideoEventKind
	name string
}{
	{VideoEventSessionModifyRequest, "SessionModifyRequestReceived"},
	{VideoEventSessionModifyResponse, "SessionModifyResponseReceived"},
	{VideoEventSessionEvent, "SessionEvent"},
	{VideoEventPeerDimensionsChanged, "PeerDimensionsChanged"},
	{VideoEventVideoQualityChanged, "VideoQualityChanged"},
	{VideoEventDataUsageChanged, "CallDataUsageChanged"},
	{VideoEventCameraCapabilitiesChanged, "CameraCapabilitiesChanged"},
}

func (k VideoEventKind) String() string {
	if k == 0 {
		return "None"
	}
	if k == VideoEventAll {
		return "All"
	}
	var parts []string
	for _, e := range videoEventNames {
		if k&e.kind != 0 {
			parts = append(parts, e.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// EventName имя события для EventSink
func (k VideoEventKind) EventName() string {
	return videoEventPrefix + k.String()
}

// Has проверяет, что все биты other установлены в k
func (k VideoEventKind) Has(other VideoEventKind) bool {
	return other != 0 && k&other == other
}

// ParseVideoEventKind преобразует имя события видео сессии в VideoEventKind
func ParseVideoEventKind(name string) (VideoEventKind, error) {
	n := strings.TrimSpace(name)
	if strings.EqualFold(n, "All") {
		return VideoEventAll, nil
	}
	if len(n) > len(videoEventPrefix) && strings.EqualFold(n[:len(videoEventPrefix)], videoEventPrefix) {
		n = n[len(videoEventPrefix):]
	}
	for _, e := range videoEventNames {
		if strings.EqualFold(n, e.name) {
			return e.kind, nil
		}
	}
	return 0, errInvalidArgument("UNKNOWN_VIDEO_EVENT", "event", name)
}
