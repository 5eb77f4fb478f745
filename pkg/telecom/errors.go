package telecom

import (
	"errors"
	"fmt"
)

// ErrorKind класс ошибки трекера
type ErrorKind string

const (
	// KindLookupFailure операция сослалась на неизвестный звонок или видео сессию
	KindLookupFailure ErrorKind = "LOOKUP_FAILURE"
	// KindInvalidArgument строковый аргумент не соответствует известному значению
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	// KindProtocolMismatch структурное противоречие в уведомлениях подсистемы
	KindProtocolMismatch ErrorKind = "PROTOCOL_MISMATCH"
)

func (k ErrorKind) String() string {
	return string(k)
}

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrVideoCallNotFound = errors.New("video call not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrProtocolMismatch  = errors.New("protocol mismatch")
	ErrNoAudioController = errors.New("audio controller not configured")
)

// Error структурированная ошибка трекера с контекстом звонка
type Error struct {
	Code    string         `json:"code"`
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	CallID  string         `json:"call_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Cause   error          `json:"-"`
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("[%s:%s] %s (call %s)", e.Kind, e.Code, e.Message, e.CallID)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is с сентинелами пакета
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithField добавляет поле контекста
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func newError(code string, kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// KindOf возвращает класс ошибки или пустую строку для посторонних ошибок
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsLookupFailure true для ошибок поиска звонка или видео сессии
func IsLookupFailure(err error) bool {
	return KindOf(err) == KindLookupFailure
}

// IsInvalidArgument true для ошибок разбора аргументов
func IsInvalidArgument(err error) bool {
	return KindOf(err) == KindInvalidArgument
}

func errUnknownCall(id string) *Error {
	e := newError("CALL_NOT_FOUND", KindLookupFailure, ErrCallNotFound, "звонок не найден")
	e.CallID = id
	return e
}

func errNoVideoCall(id string) *Error {
	e := newError("VIDEO_CALL_NOT_FOUND", KindLookupFailure, ErrVideoCallNotFound, "у звонка нет видео сессии")
	e.CallID = id
	return e
}

func errNoAudioController() *Error {
	return newError("AUDIO_CONTROLLER_NOT_SET", KindLookupFailure, ErrNoAudioController, "аудио контроллер не подключен")
}

func errInvalidArgument(code, field, value string) *Error {
	return newError(code, KindInvalidArgument, ErrInvalidArgument,
		"некорректное значение %s: %q", field, value).WithField(field, value)
}

func errVideoMismatch(id string) *Error {
	e := newError("VIDEO_HANDLE_MISMATCH", KindProtocolMismatch, ErrProtocolMismatch,
		"получен другой дескриптор видео при уже подключенной сессии")
	e.CallID = id
	return e
}

func errAnchorHeld(owner, holder string) *Error {
	return newError("MULTIPLE_ANCHORS", KindProtocolMismatch, ErrProtocolMismatch,
		"якорь уже занят другим трекером").WithField("owner", owner).WithField("holder", holder)
}
