// Package sipcall представляет входящие SIP звонки в виде telecom.Call.
//
// Service принимает запросы от sipgo сервера, ведет таблицу звонков по
// Call-ID и сообщает о появлении и завершении звонков через
// telecom.CallListener. Call реализует управление звонком поверх SIP
// диалога: ответ, отклонение, удержание, DTMF и локальные конференции.
// Video отображает re-INVITE с изменением видео на события сессии.
package sipcall

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/arzzra/call_tracker/pkg/config"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultPostDialPause  = 3 * time.Second
)

var defaultCannedResponses = []string{
	"Can't talk now. What's up?",
	"I'll call you right back.",
	"I'll call you later.",
	"Can't talk now. Call me later?",
}

// Transport отправляет запросы внутри диалога
type Transport interface {
	// Do отправляет запрос и ждет финальный ответ
	Do(ctx context.Context, req *sip.Request) (*sip.Response, error)
	// Write отправляет запрос без транзакции (ACK)
	Write(req *sip.Request) error
}

type clientTransport struct {
	client *sipgo.Client
}

// NewClientTransport Transport поверх sipgo клиента
func NewClientTransport(client *sipgo.Client) Transport {
	return &clientTransport{client: client}
}

func (t *clientTransport) Do(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	return t.client.Do(ctx, req)
}

func (t *clientTransport) Write(req *sip.Request) error {
	return t.client.WriteRequest(req, sipgo.ClientRequestAddVia)
}

// responder отправляет ответ в серверную транзакцию
type responder func(res *sip.Response) error

// Option настраивает Service
type Option func(*Service)

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.With(slog.String("component", "sipcall"))
		}
	}
}

// WithRTPDialer задает способ открытия RTP для DTMF по RFC 4733
func WithRTPDialer(dial RTPDialer) Option {
	return func(s *Service) {
		if dial != nil {
			s.dialRTP = dial
		}
	}
}

// WithRequestTimeout таймаут исходящих запросов внутри диалога
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPostDialPause длительность паузы для символа ',' в post-dial
func WithPostDialPause(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.postDialPause = d
		}
	}
}

// WithCannedResponses задает варианты текстового ответа при отклонении
func WithCannedResponses(responses []string) Option {
	return func(s *Service) {
		s.canned = slices.Clone(responses)
	}
}

// Service принимает входящие звонки sipgo сервера
type Service struct {
	sip       config.SIPConfig
	camera    telecom.CameraCapabilities
	contact   sip.Uri
	transport Transport
	listener  telecom.CallListener
	dialRTP   RTPDialer
	logger    *slog.Logger
	now       func() time.Time

	timeout       time.Duration
	postDialPause time.Duration
	canned        []string

	mu    sync.Mutex
	calls map[string]*Call

	// confMu упорядочивает операции над конференциями
	confMu sync.Mutex
}

// NewService создает сервис. listener получает уведомления о звонках,
// обычно это telecom.CallEventRouter.
func NewService(cfg *config.Config, transport Transport, listener telecom.CallListener, opts ...Option) *Service {
	s := &Service{
		sip: cfg.SIP,
		camera: telecom.CameraCapabilities{
			Width:         cfg.Video.CameraWidth,
			Height:        cfg.Video.CameraHeight,
			ZoomSupported: cfg.Video.ZoomSupported,
			MaxZoom:       cfg.Video.MaxZoom,
		},
		transport:     transport,
		listener:      listener,
		dialRTP:       DialRTP,
		logger:        slog.Default().With(slog.String("component", "sipcall")),
		now:           time.Now,
		timeout:       defaultRequestTimeout,
		postDialPause: defaultPostDialPause,
		canned:        slices.Clone(defaultCannedResponses),
		calls:         make(map[string]*Call),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.contact = contactURI(cfg.SIP)
	return s
}

func contactURI(cfg config.SIPConfig) sip.Uri {
	uri := sip.Uri{Scheme: "sip", Host: cfg.MediaHost}
	host, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return uri
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		uri.Host = host
	}
	if p, err := strconv.Atoi(port); err == nil {
		uri.Port = p
	}
	return uri
}

// Register подключает обработчики к sipgo серверу
func (s *Service) Register(srv *sipgo.Server) {
	srv.OnInvite(s.HandleInvite)
	srv.OnAck(s.HandleAck)
	srv.OnBye(s.HandleBye)
	srv.OnCancel(s.HandleCancel)
}

// HandleInvite обрабатывает начальный INVITE и re-INVITE
func (s *Service) HandleInvite(req *sip.Request, tx sip.ServerTransaction) {
	s.onInvite(req, tx.Respond)
}

// HandleAck обрабатывает ACK на 2xx
func (s *Service) HandleAck(req *sip.Request, tx sip.ServerTransaction) {
	s.onAck(req)
}

// HandleBye обрабатывает BYE удаленной стороны
func (s *Service) HandleBye(req *sip.Request, tx sip.ServerTransaction) {
	s.onBye(req, tx.Respond)
}

// HandleCancel обрабатывает CANCEL до ответа на INVITE
func (s *Service) HandleCancel(req *sip.Request, tx sip.ServerTransaction) {
	s.onCancel(req, tx.Respond)
}

func (s *Service) onInvite(req *sip.Request, respond responder) {
	callID := req.CallID()
	if callID == nil || req.From() == nil || req.To() == nil {
		s.reply(respond, sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Bad Request", nil))
		return
	}
	id := callID.Value()

	if toTag, _ := req.To().Params.Get("tag"); toTag != "" {
		c := s.call(id)
		if c == nil {
			s.reply(respond, sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil))
			return
		}
		c.handleReinvite(req, respond)
		return
	}

	if s.call(id) != nil {
		s.logger.Debug("повторный INVITE, игнорируем", slog.String("call_id", id))
		return
	}

	var offer mediaOffer
	if body := req.Body(); len(body) > 0 {
		var err error
		if offer, err = parseSDP(body); err != nil {
			s.logger.Warn("некорректный SDP во входящем INVITE",
				slog.String("call_id", id),
				slog.String("error", err.Error()))
			s.reply(respond, sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil))
			return
		}
	}

	c := newIncomingCall(s, req, respond, offer)
	if err := c.ring(); err != nil {
		s.logger.Error("не удалось отправить 180 Ringing",
			slog.String("call_id", id),
			slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.calls[id] = c
	s.mu.Unlock()

	s.logger.Info("входящий звонок",
		slog.String("call_id", id),
		slog.String("from", c.Details().Handle),
		slog.Bool("video", offer.hasVideo))

	s.added(c)
	canned := slices.Clone(s.canned)
	c.notify(func(cb telecom.CallCallback) { cb.OnCannedTextResponsesLoaded(c, canned) })
	s.refreshConferenceable()
}

func (s *Service) onAck(req *sip.Request) {
	callID := req.CallID()
	if callID == nil {
		return
	}
	if c := s.call(callID.Value()); c != nil {
		c.logger.Debug("получен ACK")
	}
}

func (s *Service) onBye(req *sip.Request, respond responder) {
	c := s.requestCall(req, respond)
	if c == nil {
		return
	}
	s.reply(respond, sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	c.remoteHangup()
}

func (s *Service) onCancel(req *sip.Request, respond responder) {
	c := s.requestCall(req, respond)
	if c == nil {
		return
	}
	s.reply(respond, sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	c.cancelled()
}

// requestCall находит звонок запроса или отвечает 481
func (s *Service) requestCall(req *sip.Request, respond responder) *Call {
	var c *Call
	if callID := req.CallID(); callID != nil {
		c = s.call(callID.Value())
	}
	if c == nil {
		s.reply(respond, sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil))
	}
	return c
}

func (s *Service) reply(respond responder, res *sip.Response) {
	if err := respond(res); err != nil {
		s.logger.Warn("ошибка отправки ответа",
			slog.Int("status", int(res.StatusCode)),
			slog.String("error", err.Error()))
	}
}

func (s *Service) call(id string) *Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// Call возвращает звонок по идентификатору
func (s *Service) Call(id string) (*Call, bool) {
	c := s.call(id)
	return c, c != nil
}

// Calls снимок звонков, отсортированный по идентификатору
func (s *Service) Calls() []*Call {
	s.mu.Lock()
	calls := make([]*Call, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	s.mu.Unlock()

	slices.SortFunc(calls, func(a, b *Call) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return calls
}

func (s *Service) added(c *Call) {
	if s.listener != nil {
		s.listener.OnCallAdded(c)
	}
}

// remove удаляет завершенный звонок и уведомляет listener
func (s *Service) remove(c *Call) {
	s.mu.Lock()
	cur, ok := s.calls[c.id]
	if ok && cur == c {
		delete(s.calls, c.id)
	}
	s.mu.Unlock()
	if !ok || cur != c {
		return
	}

	if s.listener != nil {
		s.listener.OnCallRemoved(c)
	}
	s.refreshConferenceable()
}

// refreshConferenceable пересчитывает списки звонков, доступных для
// объединения. Свободные активные звонки видят друг друга, конференция
// видит все свободные звонки.
func (s *Service) refreshConferenceable() {
	calls := s.Calls()

	free := make([]*Call, 0, len(calls))
	for _, c := range calls {
		if c.conferenceReady() {
			free = append(free, c)
		}
	}

	for _, c := range calls {
		var list []*Call
		switch {
		case c.conference:
			list = free
		case slices.Contains(free, c):
			list = make([]*Call, 0, len(free)-1)
			for _, o := range free {
				if o != c {
					list = append(list, o)
				}
			}
		}
		c.setConferenceable(list)
	}
}

// newConference создает конференцию из звонков members
func (s *Service) newConference(members []*Call) *Call {
	now := s.now()
	conf := &Call{
		id:         "conf-" + uuid.NewString(),
		service:    s,
		conference: true,
		fsm:        newCallFSM(stateActive),
		details: telecom.CallDetails{
			Handle:       "conference",
			Capabilities: telecom.CapabilityManageConference | telecom.CapabilityMergeConference | telecom.CapabilitySwapConference | telecom.CapabilityMute,
			Properties:   telecom.PropertyConference,
			CreationTime: now,
			ConnectTime:  now,
		},
		children: slices.Clone(members),
	}
	conf.logger = s.logger.With(slog.String("call_id", conf.id))

	s.mu.Lock()
	s.calls[conf.id] = conf
	s.mu.Unlock()
	s.added(conf)

	for _, m := range members {
		m.setParent(conf)
	}
	children := asCalls(members)
	conf.notify(func(cb telecom.CallCallback) { cb.OnChildrenChanged(conf, children) })

	conf.logger.Info("создана конференция", slog.Int("participants", len(members)))
	return conf
}

// Close завершает все звонки
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.Calls() {
		if c.conference {
			continue
		}
		if st := c.State(); st.IsTerminal() || st == telecom.CallStateNew {
			continue
		}
		if err := c.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
