package telecom

import (
	"log/slog"

	"github.com/google/uuid"
)

// CallEventRouter принимает уведомления внешней телефонной подсистемы,
// обновляет CallRegistry и пересылает события в EventSink по маске подписки.
//
// Жизненный цикл записи звонка:
//
//	pending -> active -> destroyed
//
// pending: запись создана, видео еще не проверено.
// active: обычная работа, доставка callback'ов.
// destroyed: запись удалена из реестра, callback'и отбрасываются.
type CallEventRouter struct {
	id       string
	registry *CallRegistry
	anchor   *Anchor
	video    *VideoEventRouter
	events   *dispatcher
	metrics  *Metrics
	logger   *slog.Logger
}

// RouterOption настраивает CallEventRouter
type RouterOption func(*CallEventRouter)

// WithEventSink задает получателя событий
func WithEventSink(sink EventSink) RouterOption {
	return func(r *CallEventRouter) { r.events.setSink(sink) }
}

// WithAnchor задает общий процессный якорь
func WithAnchor(anchor *Anchor) RouterOption {
	return func(r *CallEventRouter) { r.anchor = anchor }
}

// WithMetrics задает метрики
func WithMetrics(metrics *Metrics) RouterOption {
	return func(r *CallEventRouter) { r.metrics = metrics }
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *CallEventRouter) {
		if logger != nil {
			r.logger = logger.With(slog.String("component", "call_router"))
		}
	}
}

// NewCallEventRouter создает роутер поверх реестра
func NewCallEventRouter(registry *CallRegistry, opts ...RouterOption) *CallEventRouter {
	r := &CallEventRouter{
		id:       uuid.NewString(),
		registry: registry,
		events:   &dispatcher{},
		logger:   slog.Default().With(slog.String("component", "call_router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.anchor == nil {
		r.anchor = NewAnchor()
	}

	r.events.metrics = r.metrics
	r.events.logger = r.logger
	r.video = &VideoEventRouter{
		registry: registry,
		events:   r.events,
		metrics:  r.metrics,
		logger:   r.logger.With(slog.String("router", "video")),
	}
	return r
}

// ID токен роутера, под которым он занимает якорь
func (r *CallEventRouter) ID() string { return r.id }

// Registry реестр звонков роутера
func (r *CallEventRouter) Registry() *CallRegistry { return r.registry }

// Video роутер событий видео сессий
func (r *CallEventRouter) Video() *VideoEventRouter { return r.video }

// Anchor процессный якорь роутера
func (r *CallEventRouter) Anchor() *Anchor { return r.anchor }

// SetEventSink подключает или отключает (nil) получателя событий
func (r *CallEventRouter) SetEventSink(sink EventSink) {
	r.events.setSink(sink)
}

// OnCallAdded регистрирует новый звонок. Повторное уведомление для
// известного id игнорируется.
func (r *CallEventRouter) OnCallAdded(call Call) {
	if call == nil {
		r.logger.Warn("OnCallAdded с пустым дескриптором")
		return
	}
	id := call.ID()
	defer r.recoverCallback(id, "call_added")

	cb := &callCallback{router: r}
	rec, created, activated, anchorErr := r.insert(id, call, cb)
	if !created {
		r.logger.Warn("повторное уведомление о звонке, запись уже существует",
			slog.String("call_id", id))
		r.metrics.anomaly(anomalyDuplicateAdd)
		return
	}
	r.metrics.callAdded()

	if anchorErr != nil {
		r.logger.Error("несколько активных трекеров, регистрация якоря отклонена",
			slog.String("call_id", id),
			slog.String("owner", r.id),
			slog.String("holder", r.anchor.Owner()))
		r.metrics.anomaly(anomalyAnchorConflict)
	}
	if activated {
		r.logger.Debug("якорь занят", slog.String("owner", r.id))
		r.anchor.activated(r.id)
	}

	// Callback регистрируется вне мьютекса: дескриптор не должен ждать трекер
	call.RegisterCallback(cb)

	if !r.activate(rec) {
		// звонок удалили между вставкой и активацией
		call.UnregisterCallback(cb)
		return
	}

	r.logger.Info("звонок добавлен",
		slog.String("call_id", id),
		slog.String("state", call.State().String()))
}

func (r *CallEventRouter) insert(id string, call Call, cb *callCallback) (rec *CallRecord, created, activated bool, anchorErr error) {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	rec, created = r.registry.upsertLocked(id, call)
	if !created {
		return rec, false, false, nil
	}
	rec.callback = cb
	if len(r.registry.calls) == 1 {
		activated, anchorErr = r.anchor.Acquire(r.id)
	}
	return rec, true, activated, anchorErr
}

// activate подключает видео, если оно уже есть у звонка, и переводит
// запись в active. Возвращает false, если запись уже удалена.
func (r *CallEventRouter) activate(rec *CallRecord) bool {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	if cur, ok := r.registry.calls[rec.id]; !ok || cur != rec {
		return false
	}
	r.video.attachLocked(rec, rec.call.VideoCall())
	if err := rec.transition("activate"); err != nil {
		r.logger.Debug("переход в active не выполнен",
			slog.String("call_id", rec.id),
			slog.String("error", err.Error()))
	}
	return true
}

// OnCallRemoved удаляет звонок и его видео сессию
func (r *CallEventRouter) OnCallRemoved(call Call) {
	if call == nil {
		return
	}
	id := call.ID()
	defer r.recoverCallback(id, "call_removed")

	rec, released := r.remove(id)
	if rec == nil {
		r.logger.Debug("удаление неизвестного звонка", slog.String("call_id", id))
		return
	}
	if rec.callback != nil {
		rec.call.UnregisterCallback(rec.callback)
	}
	r.metrics.callRemoved()
	r.logger.Info("звонок удален", slog.String("call_id", id))

	if released {
		r.logger.Debug("якорь освобожден", slog.String("owner", r.id))
		r.anchor.released(r.id)
	}
}

func (r *CallEventRouter) remove(id string) (*CallRecord, bool) {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	rec, ok := r.registry.removeLocked(id)
	if !ok {
		return nil, false
	}
	r.video.detachLocked(rec)
	_ = rec.transition("destroy")

	released := false
	if len(r.registry.calls) == 0 {
		released = r.anchor.Release(r.id)
	}
	return rec, released
}

// Shutdown очищает реестр при полной остановке сервиса
func (r *CallEventRouter) Shutdown() {
	r.registry.mu.Lock()
	removed := r.registry.clearLocked()
	for _, rec := range removed {
		r.video.detachLocked(rec)
		_ = rec.transition("destroy")
	}
	released := r.anchor.Release(r.id)
	r.registry.mu.Unlock()

	for _, rec := range removed {
		if rec.callback != nil {
			rec.call.UnregisterCallback(rec.callback)
		}
		r.metrics.callRemoved()
	}
	if released {
		r.anchor.released(r.id)
	}
	r.logger.Info("трекер остановлен", slog.Int("calls", len(removed)))
}

// StartListening включает пересылку событий kinds для звонка id
func (r *CallEventRouter) StartListening(id string, kinds CallEventKind) error {
	return r.registry.setCallMask(id, kinds, true)
}

// StopListening выключает пересылку событий kinds для звонка id
func (r *CallEventRouter) StopListening(id string, kinds CallEventKind) error {
	return r.registry.setCallMask(id, kinds, false)
}

// StartListeningByName то же, что StartListening, по имени события
func (r *CallEventRouter) StartListeningByName(id, event string) error {
	kind, err := ParseCallEventKind(event)
	if err != nil {
		return err
	}
	return r.StartListening(id, kind)
}

// StopListeningByName то же, что StopListening, по имени события
func (r *CallEventRouter) StopListeningByName(id, event string) error {
	kind, err := ParseCallEventKind(event)
	if err != nil {
		return err
	}
	return r.StopListening(id, kind)
}

func (r *CallEventRouter) dispatch(call Call, kind CallEventKind, data func() any) {
	if call == nil {
		return
	}
	id := call.ID()
	defer r.recoverCallback(id, kind.String())

	rec, ok := r.registry.Get(id)
	if !ok {
		// звонок уже удален, при асинхронной доставке это ожидаемо
		r.metrics.eventDropped(dropUnknownCall)
		r.metrics.anomaly(anomalyLateCallback)
		return
	}
	if !rec.Listening(kind) {
		r.metrics.eventDropped(dropNotListening)
		return
	}
	r.events.post(kind.EventName(), eventPayload(id, kind.String(), data()))
}

// recoverCallback не дает панике уйти в горутину телефонной подсистемы
func (r *CallEventRouter) recoverCallback(id, what string) {
	if p := recover(); p != nil {
		r.logger.Error("panic в обработке callback, уведомление отброшено",
			slog.String("call_id", id),
			slog.String("event", what),
			slog.Any("panic", p))
		r.metrics.anomaly(anomalyCallbackPanic)
	}
}

func callIDs(calls []Call) []string {
	ids := make([]string, 0, len(calls))
	for _, c := range calls {
		if c != nil {
			ids = append(ids, c.ID())
		}
	}
	return ids
}

// callCallback регистрируется на дескрипторе звонка
type callCallback struct {
	router *CallEventRouter
}

func (c *callCallback) OnStateChanged(call Call, state CallState) {
	c.router.dispatch(call, CallEventStateChanged, func() any { return state.String() })
}

func (c *callCallback) OnParentChanged(call Call, parent Call) {
	c.router.dispatch(call, CallEventParentChanged, func() any {
		if parent == nil {
			return nil
		}
		return parent.ID()
	})
}

func (c *callCallback) OnChildrenChanged(call Call, children []Call) {
	c.router.dispatch(call, CallEventChildrenChanged, func() any { return callIDs(children) })
}

func (c *callCallback) OnDetailsChanged(call Call, details CallDetails) {
	c.router.dispatch(call, CallEventDetailsChanged, func() any { return details.toMap() })
}

func (c *callCallback) OnCannedTextResponsesLoaded(call Call, responses []string) {
	c.router.dispatch(call, CallEventCannedTextLoaded, func() any {
		return append([]string(nil), responses...)
	})
}

func (c *callCallback) OnPostDialWait(call Call, remaining string) {
	c.router.dispatch(call, CallEventPostDialWait, func() any { return remaining })
}

func (c *callCallback) OnVideoCallChanged(call Call, video VideoCall) {
	if call == nil {
		return
	}
	if err := c.router.attachVideo(call.ID(), video); KindOf(err) == KindProtocolMismatch {
		// отклоненный дескриптор не становится видео сессией звонка
		return
	}
	c.router.dispatch(call, CallEventVideoCallChanged, func() any {
		if video == nil {
			return "UNAVAILABLE"
		}
		return "AVAILABLE"
	})
}

func (c *callCallback) OnCallDestroyed(call Call) {
	c.router.dispatch(call, CallEventCallDestroyed, func() any { return nil })
}

func (c *callCallback) OnConferenceableCallsChanged(call Call, calls []Call) {
	c.router.dispatch(call, CallEventConferenceableChanged, func() any { return callIDs(calls) })
}

func (r *CallEventRouter) attachVideo(id string, video VideoCall) (err error) {
	defer r.recoverCallback(id, "video_attach")
	_, err = r.video.Attach(id, video)
	return err
}
