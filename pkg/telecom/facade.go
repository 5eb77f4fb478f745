package telecom

import (
	"fmt"
	"log/slog"
)

// SessionFacade операции над звонками по идентификатору.
//
// Каждая операция разрешает id через CallRegistry и передает запрос
// дескриптору звонка. Неизвестный id возвращает LookupFailure, строковые
// аргументы проверяются до обращения к дескриптору.
type SessionFacade struct {
	registry *CallRegistry
	audio    AudioController
	logger   *slog.Logger
}

// FacadeOption настраивает SessionFacade
type FacadeOption func(*SessionFacade)

// WithAudioController подключает управление аудио маршрутом
func WithAudioController(audio AudioController) FacadeOption {
	return func(f *SessionFacade) { f.audio = audio }
}

// WithFacadeLogger задает логгер
func WithFacadeLogger(logger *slog.Logger) FacadeOption {
	return func(f *SessionFacade) {
		if logger != nil {
			f.logger = logger.With(slog.String("component", "session_facade"))
		}
	}
}

// NewSessionFacade создает фасад поверх реестра
func NewSessionFacade(registry *CallRegistry, opts ...FacadeOption) *SessionFacade {
	f := &SessionFacade{
		registry: registry,
		logger:   slog.Default().With(slog.String("component", "session_facade")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *SessionFacade) lookup(id string) (Call, error) {
	rec, ok := f.registry.Get(id)
	if !ok {
		f.logger.Debug("операция над неизвестным звонком", slog.String("call_id", id))
		return nil, errUnknownCall(id)
	}
	return rec.Call(), nil
}

func (f *SessionFacade) lookupVideo(id string) (VideoCall, error) {
	if _, ok := f.registry.Get(id); !ok {
		return nil, errUnknownCall(id)
	}
	vr, ok := f.registry.Video(id)
	if !ok {
		return nil, errNoVideoCall(id)
	}
	return vr.VideoCall(), nil
}

// Answer отвечает на звонок. Неизвестное состояние видео означает
// аудио звонок.
func (f *SessionFacade) Answer(id, videoState string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	state, ok := ParseVideoState(videoState)
	if !ok {
		f.logger.Debug("неизвестное состояние видео, отвечаем без видео",
			slog.String("call_id", id),
			slog.String("video_state", videoState))
		state = VideoStateAudioOnly
	}
	if err := call.Answer(state); err != nil {
		return fmt.Errorf("answer %s: %w", id, err)
	}
	return nil
}

// Reject отклоняет звонок. message != nil выбирает отклонение с текстом.
func (f *SessionFacade) Reject(id string, message *string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	withMessage, text := message != nil, ""
	if withMessage {
		text = *message
	}
	if err := call.Reject(withMessage, text); err != nil {
		return fmt.Errorf("reject %s: %w", id, err)
	}
	return nil
}

// Disconnect завершает звонок
func (f *SessionFacade) Disconnect(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return nil
}

// Hold ставит звонок на удержание
func (f *SessionFacade) Hold(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.Hold(); err != nil {
		return fmt.Errorf("hold %s: %w", id, err)
	}
	return nil
}

// Unhold снимает звонок с удержания
func (f *SessionFacade) Unhold(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.Unhold(); err != nil {
		return fmt.Errorf("unhold %s: %w", id, err)
	}
	return nil
}

// Merge объединяет два звонка в конференцию. Оба id должны быть известны.
func (f *SessionFacade) Merge(idA, idB string) error {
	a, err := f.lookup(idA)
	if err != nil {
		return err
	}
	b, err := f.lookup(idB)
	if err != nil {
		return err
	}
	if err := a.Conference(b); err != nil {
		return fmt.Errorf("merge %s with %s: %w", idA, idB, err)
	}
	return nil
}

// MergeConference присоединяет к конференции все доступные звонки
func (f *SessionFacade) MergeConference(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.MergeConference(); err != nil {
		return fmt.Errorf("merge conference %s: %w", id, err)
	}
	return nil
}

// Split отделяет звонок от конференции
func (f *SessionFacade) Split(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.SplitFromConference(); err != nil {
		return fmt.Errorf("split %s: %w", id, err)
	}
	return nil
}

// Swap переключает активного участника конференции
func (f *SessionFacade) Swap(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.SwapConference(); err != nil {
		return fmt.Errorf("swap %s: %w", id, err)
	}
	return nil
}

// PlayDtmfTone начинает проигрывание DTMF символа
func (f *SessionFacade) PlayDtmfTone(id, digit string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	d, err := ParseDtmfDigit(digit)
	if err != nil {
		return err
	}
	if err := call.PlayDtmfTone(d); err != nil {
		return fmt.Errorf("play dtmf %s: %w", id, err)
	}
	return nil
}

// StopDtmfTone останавливает проигрывание DTMF
func (f *SessionFacade) StopDtmfTone(id string) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.StopDtmfTone(); err != nil {
		return fmt.Errorf("stop dtmf %s: %w", id, err)
	}
	return nil
}

// PostDialContinue продолжает или отменяет набор после паузы
func (f *SessionFacade) PostDialContinue(id string, proceed bool) error {
	call, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := call.PostDialContinue(proceed); err != nil {
		return fmt.Errorf("post dial continue %s: %w", id, err)
	}
	return nil
}

// GetCallIDs возвращает идентификаторы всех отслеживаемых звонков
func (f *SessionFacade) GetCallIDs() []string {
	return f.registry.IDs()
}

// GetState текущее состояние звонка по данным дескриптора
func (f *SessionFacade) GetState(id string) (string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return "", err
	}
	return call.State().String(), nil
}

// GetParent идентификатор конференции звонка или пустая строка
func (f *SessionFacade) GetParent(id string) (string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return "", err
	}
	parent := call.Parent()
	if parent == nil {
		return "", nil
	}
	return parent.ID(), nil
}

// GetChildren идентификаторы участников конференции
func (f *SessionFacade) GetChildren(id string) ([]string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return callIDs(call.Children()), nil
}

// GetConferenceableCalls идентификаторы звонков, доступных для объединения
func (f *SessionFacade) GetConferenceableCalls(id string) ([]string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return callIDs(call.ConferenceableCalls()), nil
}

// GetDetails снимок деталей звонка
func (f *SessionFacade) GetDetails(id string) (map[string]any, error) {
	call, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return call.Details().toMap(), nil
}

// GetVideoState состояние видео из деталей звонка
func (f *SessionFacade) GetVideoState(id string) (string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return "", err
	}
	return call.Details().VideoState.String(), nil
}

// GetCannedTextResponses заготовленные ответы для отклонения с текстом
func (f *SessionFacade) GetCannedTextResponses(id string) ([]string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), call.CannedTextResponses()...), nil
}

// GetCallProperties теги свойств звонка в фиксированном порядке
func (f *SessionFacade) GetCallProperties(id string) ([]string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return DecodeProperties(call.Details().Properties), nil
}

// GetCallCapabilities теги возможностей звонка в фиксированном порядке
func (f *SessionFacade) GetCallCapabilities(id string) ([]string, error) {
	call, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return DecodeCapabilities(call.Details().Capabilities), nil
}

// HasVideoCall true, если у звонка подключена видео сессия
func (f *SessionFacade) HasVideoCall(id string) (bool, error) {
	if _, err := f.lookup(id); err != nil {
		return false, err
	}
	_, ok := f.registry.Video(id)
	return ok, nil
}

// SetAudioRoute переключает маршрут аудио
func (f *SessionFacade) SetAudioRoute(route string) error {
	if f.audio == nil {
		return errNoAudioController()
	}
	r, ok := ParseAudioRoute(route)
	if !ok {
		return errInvalidArgument("INVALID_AUDIO_ROUTE", "route", route)
	}
	if err := f.audio.SetAudioRoute(r); err != nil {
		return fmt.Errorf("set audio route %s: %w", r, err)
	}
	return nil
}

// SetMuted включает или выключает микрофон
func (f *SessionFacade) SetMuted(muted bool) error {
	if f.audio == nil {
		return errNoAudioController()
	}
	if err := f.audio.SetMuted(muted); err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	return nil
}

// GetAudioState текущее состояние аудио
func (f *SessionFacade) GetAudioState() (map[string]any, error) {
	if f.audio == nil {
		return nil, errNoAudioController()
	}
	st := f.audio.AudioState()
	return map[string]any{
		"AudioRoute":         st.Route.String(),
		"SupportedRouteMask": st.SupportedRoutes.Routes(),
		"IsMuted":            st.Muted,
	}, nil
}

// GetAudioRoute имя текущего маршрута аудио
func (f *SessionFacade) GetAudioRoute() (string, error) {
	if f.audio == nil {
		return "", errNoAudioController()
	}
	return f.audio.AudioState().Route.String(), nil
}

func parseVideoProfile(videoState, videoQuality string) (VideoProfile, error) {
	state, ok := ParseVideoState(videoState)
	if !ok {
		return VideoProfile{}, errInvalidArgument("INVALID_VIDEO_STATE", "video_state", videoState)
	}
	quality, ok := ParseVideoQuality(videoQuality)
	if !ok {
		return VideoProfile{}, errInvalidArgument("INVALID_VIDEO_QUALITY", "video_quality", videoQuality)
	}
	return VideoProfile{State: state, Quality: quality}, nil
}

// SendSessionModifyRequest запрашивает изменение видео сессии
func (f *SessionFacade) SendSessionModifyRequest(id, videoState, videoQuality string) error {
	video, err := f.lookupVideo(id)
	if err != nil {
		return err
	}
	profile, err := parseVideoProfile(videoState, videoQuality)
	if err != nil {
		return err
	}
	if err := video.SendSessionModifyRequest(profile); err != nil {
		return fmt.Errorf("session modify request %s: %w", id, err)
	}
	return nil
}

// SendSessionModifyResponse отвечает на запрос изменения видео сессии
func (f *SessionFacade) SendSessionModifyResponse(id, videoState, videoQuality string) error {
	video, err := f.lookupVideo(id)
	if err != nil {
		return err
	}
	profile, err := parseVideoProfile(videoState, videoQuality)
	if err != nil {
		return err
	}
	if err := video.SendSessionModifyResponse(profile); err != nil {
		return fmt.Errorf("session modify response %s: %w", id, err)
	}
	return nil
}

// RequestCameraCapabilities запрашивает возможности камеры
func (f *SessionFacade) RequestCameraCapabilities(id string) error {
	video, err := f.lookupVideo(id)
	if err != nil {
		return err
	}
	if err := video.RequestCameraCapabilities(); err != nil {
		return fmt.Errorf("camera capabilities %s: %w", id, err)
	}
	return nil
}

// RequestCallDataUsage запрашивает объем переданных данных
func (f *SessionFacade) RequestCallDataUsage(id string) error {
	video, err := f.lookupVideo(id)
	if err != nil {
		return err
	}
	if err := video.RequestCallDataUsage(); err != nil {
		return fmt.Errorf("data usage %s: %w", id, err)
	}
	return nil
}

// SetCamera выбирает камеру видео сессии
func (f *SessionFacade) SetCamera(id, cameraID string) error {
	video, err := f.lookupVideo(id)
	if err != nil {
		return err
	}
	if err := video.SetCamera(cameraID); err != nil {
		return fmt.Errorf("set camera %s: %w", id, err)
	}
	return nil
}
