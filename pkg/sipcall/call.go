package sipcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"

	"github.com/arzzra/call_tracker/pkg/config"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

// Состояния звонка
const (
	stateNew          = "new"
	stateRinging      = "ringing"
	stateActive       = "active"
	stateHolding      = "holding"
	stateDisconnected = "disconnected"
)

// События звонка
const (
	evRing   = "ring"
	evAnswer = "answer"
	evHold   = "hold"
	evUnhold = "unhold"
	evHangup = "hangup"
)

// Причины завершения, попадающие в CallDetails.DisconnectCause
const (
	causeLocal    = "LOCAL"
	causeRemote   = "REMOTE"
	causeRejected = "REJECTED"
	causeMissed   = "MISSED"
	causeError    = "ERROR"
)

const (
	incomingCapabilities = telecom.CapabilityHold | telecom.CapabilitySupportHold |
		telecom.CapabilityMute | telecom.CapabilityRespondViaText |
		telecom.CapabilitySupportsVTLocalBidi | telecom.CapabilityCanUpgradeToVideo
	childCapabilities = telecom.CapabilitySeparateFromConference | telecom.CapabilityDisconnectFromConference
)

func newCallFSM(initial string) *fsm.FSM {
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: evRing, Src: []string{stateNew}, Dst: stateRinging},
			{Name: evAnswer, Src: []string{stateRinging}, Dst: stateActive},
			{Name: evHold, Src: []string{stateActive}, Dst: stateHolding},
			{Name: evUnhold, Src: []string{stateHolding}, Dst: stateActive},
			{Name: evHangup, Src: []string{stateNew, stateRinging, stateActive, stateHolding}, Dst: stateDisconnected},
		},
		fsm.Callbacks{},
	)
}

var fsmStates = map[string]telecom.CallState{
	stateNew:          telecom.CallStateNew,
	stateRinging:      telecom.CallStateRinging,
	stateActive:       telecom.CallStateActive,
	stateHolding:      telecom.CallStateHolding,
	stateDisconnected: telecom.CallStateDisconnected,
}

// Call звонок поверх входящего SIP диалога или локальная конференция
type Call struct {
	id         string
	service    *Service
	logger     *slog.Logger
	conference bool

	// параметры диалога, не меняются после создания
	invite       *sip.Request
	respond      responder
	localTag     string
	localURI     sip.Uri
	remoteTag    string
	remoteURI    sip.Uri
	remoteName   string
	remoteTarget sip.Uri
	sessionID    uint64
	postDialSeq  string

	mu             sync.Mutex
	fsm            *fsm.FSM
	cseq           uint32
	sdpVersion     uint64
	remote         mediaOffer
	details        telecom.CallDetails
	parent         *Call
	children       []*Call
	conferenceable []*Call
	video          *Video
	dtmf           *dtmfSender
	postDialWait   chan bool
	callbacks      []telecom.CallCallback
	usage          int64
}

var _ telecom.Call = (*Call)(nil)

func newIncomingCall(s *Service, req *sip.Request, respond responder, offer mediaOffer) *Call {
	from := req.From()
	remoteTag, _ := from.Params.Get("tag")

	c := &Call{
		id:          req.CallID().Value(),
		service:     s,
		invite:      req,
		respond:     respond,
		localTag:    sip.RandString(8),
		localURI:    req.To().Address,
		remoteTag:   remoteTag,
		remoteURI:   from.Address,
		remoteName:  from.DisplayName,
		sessionID:   uint64(s.now().UnixNano()),
		postDialSeq: postDialDigits(req.Recipient.User),
		fsm:         newCallFSM(stateNew),
		remote:      offer,
	}
	c.remoteTarget = from.Address
	if contact := req.Contact(); contact != nil {
		c.remoteTarget = contact.Address
	}
	c.logger = s.logger.With(slog.String("call_id", c.id))

	caps := uint32(incomingCapabilities)
	if offer.hasVideo {
		caps |= telecom.CapabilitySupportsVTRemoteBidi
		c.video = newVideo(c, offer.videoState())
	}
	c.details = telecom.CallDetails{
		Handle:            fmt.Sprintf("%s@%s", from.Address.User, from.Address.Host),
		CallerDisplayName: from.DisplayName,
		Capabilities:      caps,
		Properties:        telecom.PropertyVoipAudioMode,
		VideoState:        telecom.VideoStateAudioOnly,
		CreationTime:      s.now(),
	}
	return c
}

// postDialDigits извлекает параметр postd из user части Request-URI
func postDialDigits(user string) string {
	_, params, ok := strings.Cut(user, ";")
	if !ok {
		return ""
	}
	for _, p := range strings.Split(params, ";") {
		if v, ok := strings.CutPrefix(p, "postd="); ok {
			return v
		}
	}
	return ""
}

func asCalls(calls []*Call) []telecom.Call {
	out := make([]telecom.Call, len(calls))
	for i, c := range calls {
		out[i] = c
	}
	return out
}

func (c *Call) ID() string { return c.id }

func (c *Call) State() telecom.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Call) stateLocked() telecom.CallState {
	return fsmStates[c.fsm.Current()]
}

func (c *Call) Details() telecom.CallDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.details
}

func (c *Call) Parent() telecom.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parent == nil {
		return nil
	}
	return c.parent
}

func (c *Call) Children() []telecom.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return asCalls(c.children)
}

func (c *Call) ConferenceableCalls() []telecom.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return asCalls(c.conferenceable)
}

func (c *Call) CannedTextResponses() []string {
	if c.conference {
		return nil
	}
	return slices.Clone(c.service.canned)
}

func (c *Call) VideoCall() telecom.VideoCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return nil
	}
	return c.video
}

// IsConference true для локальной конференции
func (c *Call) IsConference() bool { return c.conference }

// DataUsage байты тел SIP сообщений, отправленных и полученных в звонке
func (c *Call) DataUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *Call) RegisterCallback(cb telecom.CallCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.callbacks, cb) {
		c.callbacks = append(c.callbacks, cb)
	}
}

func (c *Call) UnregisterCallback(cb telecom.CallCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.Index(c.callbacks, cb); i >= 0 {
		c.callbacks = slices.Delete(c.callbacks, i, i+1)
	}
}

// notify вызывает fn для каждого подписчика вне блокировки звонка
func (c *Call) notify(fn func(cb telecom.CallCallback)) {
	c.mu.Lock()
	cbs := slices.Clone(c.callbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		fn(cb)
	}
}

func (c *Call) notifyState(state telecom.CallState) {
	c.notify(func(cb telecom.CallCallback) { cb.OnStateChanged(c, state) })
}

func (c *Call) notifyDetails(details telecom.CallDetails) {
	c.notify(func(cb telecom.CallCallback) { cb.OnDetailsChanged(c, details) })
}

func (c *Call) invalid(op string) error {
	c.mu.Lock()
	state := c.fsm.Current()
	c.mu.Unlock()
	return fmt.Errorf("%w: %s в состоянии %s", ErrInvalidState, op, state)
}

// canLocked проверяет событие для звонка с SIP диалогом
func (c *Call) canLocked(event string) bool {
	return !c.conference && c.fsm.Can(event)
}

// buildRequest запрос внутри диалога с заданным CSeq
func (c *Call) buildRequest(method sip.RequestMethod, seq uint32) *sip.Request {
	req := sip.NewRequest(method, c.remoteTarget)
	req.AppendHeader(&sip.FromHeader{
		Address: c.localURI,
		Params:  sip.NewParams().Add("tag", c.localTag),
	})
	to := &sip.ToHeader{
		DisplayName: c.remoteName,
		Address:     c.remoteURI,
		Params:      sip.NewParams(),
	}
	if c.remoteTag != "" {
		to.Params = to.Params.Add("tag", c.remoteTag)
	}
	req.AppendHeader(to)
	callID := sip.CallIDHeader(c.id)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})
	maxForwards := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxForwards)
	req.AppendHeader(&sip.ContactHeader{Address: c.service.contact})
	return req
}

func (c *Call) newRequestLocked(method sip.RequestMethod) *sip.Request {
	c.cseq++
	return c.buildRequest(method, c.cseq)
}

func setBody(msg interface {
	SetBody([]byte)
	AppendHeader(sip.Header)
}, contentType string, body []byte) {
	ct := sip.ContentTypeHeader(contentType)
	msg.AppendHeader(&ct)
	msg.SetBody(body)
}

// decorate добавляет к ответу To tag и Contact
func (c *Call) decorate(res *sip.Response) *sip.Response {
	if to := res.To(); to != nil {
		if tag, _ := to.Params.Get("tag"); tag == "" {
			if to.Params == nil {
				to.Params = sip.NewParams()
			}
			to.Params = to.Params.Add("tag", c.localTag)
		}
	}
	res.AppendHeader(&sip.ContactHeader{Address: c.service.contact})
	return res
}

// answerResponse 200 OK с SDP
func (c *Call) answerResponse(req *sip.Request, body []byte) *sip.Response {
	res := c.decorate(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	setBody(res, "application/sdp", body)
	return res
}

// send отправляет ответ в транзакцию и учитывает его тело
func (c *Call) send(respond responder, res *sip.Response) error {
	c.mu.Lock()
	c.usage += int64(len(res.Body()))
	c.mu.Unlock()
	return respond(res)
}

// exchange отправляет запрос и ждет финальный ответ. На 2xx для INVITE
// отправляется ACK.
func (c *Call) exchange(req *sip.Request) (*sip.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.service.timeout)
	defer cancel()

	res, err := c.service.transport.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки %s: %w", req.Method, err)
	}

	c.mu.Lock()
	c.usage += int64(len(req.Body()) + len(res.Body()))
	c.mu.Unlock()

	if res.StatusCode >= 300 {
		return res, fmt.Errorf("%w: %s %d %s", ErrRemoteRejected, req.Method, res.StatusCode, res.Reason)
	}
	if req.Method == sip.INVITE && res.StatusCode >= 200 {
		ack := c.buildRequest(sip.ACK, req.CSeq().SeqNo)
		if err := c.service.transport.Write(ack); err != nil {
			c.logger.Warn("ошибка отправки ACK", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// localSDPLocked формирует локальный SDP для текущих медиа параметров
func (c *Call) localSDPLocked(hold bool, video telecom.VideoState) ([]byte, error) {
	c.sdpVersion++
	cfg := c.service.sip
	return buildSDP(sdpParams{
		host:      cfg.MediaHost,
		sessionID: c.sessionID,
		version:   c.sdpVersion,
		audioPort: cfg.AudioPort,
		dtmfType:  cfg.DtmfPayloadType,
		hold:      hold,
		withVideo: c.remote.hasVideo || video != telecom.VideoStateAudioOnly,
		videoPort: cfg.VideoPort,
		video:     video,
		width:     c.service.camera.Width,
		height:    c.service.camera.Height,
	})
}

func (c *Call) videoStateLocked() telecom.VideoState {
	if c.video == nil {
		return telecom.VideoStateAudioOnly
	}
	return c.video.State()
}

func (c *Call) ring() error {
	res := c.decorate(sip.NewResponseFromRequest(c.invite, 180, "Ringing", nil))
	if err := c.respond(res); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Event(context.Background(), evRing)
}

// Answer отвечает 200 OK. Видео включается только в направлениях,
// предложенных удаленной стороной.
func (c *Call) Answer(videoState telecom.VideoState) error {
	c.mu.Lock()
	if !c.canLocked(evAnswer) {
		c.mu.Unlock()
		return c.invalid("answer")
	}
	state := videoState & c.remote.videoState() & telecom.VideoStateBidirectional
	body, err := c.localSDPLocked(false, state)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("ошибка формирования SDP: %w", err)
	}
	if err := c.fsm.Event(context.Background(), evAnswer); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	c.details.ConnectTime = c.service.now()
	c.details.VideoState = state
	details := c.details
	video := c.video
	c.mu.Unlock()

	if err := c.send(c.respond, c.answerResponse(c.invite, body)); err != nil {
		c.terminate(causeError)
		return fmt.Errorf("ошибка отправки 200 OK: %w", err)
	}
	if video != nil {
		video.setState(state)
	}

	c.logger.Info("звонок принят", slog.String("video_state", state.String()))
	c.notifyState(telecom.CallStateActive)
	c.notifyDetails(details)
	c.service.refreshConferenceable()

	if c.postDialSeq != "" {
		go c.runPostDial(c.postDialSeq)
	}
	return nil
}

// Reject отклоняет звонок ответом 603. Текст передается в заголовке Reason.
func (c *Call) Reject(withMessage bool, text string) error {
	c.mu.Lock()
	if c.conference || c.fsm.Current() != stateRinging {
		c.mu.Unlock()
		return c.invalid("reject")
	}
	c.mu.Unlock()

	res := c.decorate(sip.NewResponseFromRequest(c.invite, 603, "Decline", nil))
	if withMessage {
		res.AppendHeader(sip.NewHeader("Reason", fmt.Sprintf("SIP;cause=603;text=%q", text)))
	}
	if !c.terminate(causeRejected) {
		return c.invalid("reject")
	}
	if err := c.send(c.respond, res); err != nil {
		return fmt.Errorf("ошибка отправки 603: %w", err)
	}
	return nil
}

// Disconnect завершает звонок: BYE для установленного диалога, 487 для
// звонка, на который еще не ответили. Конференция завершает всех участников.
func (c *Call) Disconnect() error {
	if c.conference {
		return c.disconnectConference()
	}

	c.mu.Lock()
	switch c.fsm.Current() {
	case stateRinging:
		c.mu.Unlock()
		res := c.decorate(sip.NewResponseFromRequest(c.invite, sip.StatusRequestTerminated, "Request Terminated", nil))
		if !c.terminate(causeLocal) {
			return c.invalid("disconnect")
		}
		return c.send(c.respond, res)
	case stateActive, stateHolding:
		req := c.newRequestLocked(sip.BYE)
		c.mu.Unlock()
		if !c.terminate(causeLocal) {
			return c.invalid("disconnect")
		}
		if _, err := c.exchange(req); err != nil {
			return err
		}
		return nil
	default:
		c.mu.Unlock()
		return c.invalid("disconnect")
	}
}

func (c *Call) Hold() error { return c.changeHold(evHold, true) }

func (c *Call) Unhold() error { return c.changeHold(evUnhold, false) }

func (c *Call) changeHold(event string, hold bool) error {
	c.mu.Lock()
	if !c.canLocked(event) {
		c.mu.Unlock()
		return c.invalid(event)
	}
	body, err := c.localSDPLocked(hold, c.videoStateLocked())
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("ошибка формирования SDP: %w", err)
	}
	req := c.newRequestLocked(sip.INVITE)
	c.mu.Unlock()

	setBody(req, "application/sdp", body)
	if _, err := c.exchange(req); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.fsm.Event(context.Background(), event); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	state := c.stateLocked()
	c.mu.Unlock()

	c.logger.Info("состояние удержания изменено", slog.Bool("hold", hold))
	c.notifyState(state)
	c.service.refreshConferenceable()
	return nil
}

func (c *Call) PlayDtmfTone(digit rune) error {
	code, err := dtmfEventCode(digit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conference || c.fsm.Current() != stateActive {
		c.mu.Unlock()
		return c.invalid("dtmf")
	}

	if c.service.sip.DtmfMode == config.DtmfModeInfo {
		req := c.newRequestLocked(sip.INFO)
		c.mu.Unlock()
		setBody(req, "application/dtmf-relay", dtmfInfoBody(digit, dtmfInfoLength))
		_, err := c.exchange(req)
		return err
	}
	defer c.mu.Unlock()

	if c.dtmf == nil {
		if c.remote.host == "" || c.remote.audioPort == 0 {
			return ErrNoMedia
		}
		writer, err := c.service.dialRTP(c.remote.host, c.remote.audioPort)
		if err != nil {
			return err
		}
		c.dtmf = newDTMFSender(writer, c.service.sip.DtmfPayloadType)
	}
	return c.dtmf.start(code, c.service.now())
}

func (c *Call) StopDtmfTone() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dtmf == nil {
		return nil
	}
	return c.dtmf.stop(c.service.now())
}

// sendDigit проигрывает один символ целиком
func (c *Call) sendDigit(digit rune) error {
	if err := c.PlayDtmfTone(digit); err != nil {
		return err
	}
	if c.service.sip.DtmfMode == config.DtmfModeInfo {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dtmf == nil {
		return nil
	}
	return c.dtmf.stop(c.service.now().Add(dtmfInfoLength))
}

// runPostDial отправляет post-dial последовательность. 'w' ждет
// PostDialContinue, ',' и 'p' делают паузу.
func (c *Call) runPostDial(digits string) {
	for i, d := range digits {
		switch d {
		case 'w', 'W', ';':
			wait := make(chan bool, 1)
			c.mu.Lock()
			if c.fsm.Current() == stateDisconnected {
				c.mu.Unlock()
				return
			}
			c.postDialWait = wait
			c.mu.Unlock()

			remaining := digits[i+1:]
			c.notify(func(cb telecom.CallCallback) { cb.OnPostDialWait(c, remaining) })
			if !<-wait {
				c.logger.Info("post-dial отменен", slog.String("remaining", remaining))
				return
			}
		case ',', 'p', 'P':
			time.Sleep(c.service.postDialPause)
		default:
			if err := c.sendDigit(d); err != nil {
				c.logger.Warn("ошибка отправки post-dial",
					slog.String("digit", string(d)),
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (c *Call) PostDialContinue(proceed bool) error {
	c.mu.Lock()
	wait := c.postDialWait
	c.postDialWait = nil
	c.mu.Unlock()
	if wait == nil {
		return ErrNoPostDial
	}
	wait <- proceed
	return nil
}

// remoteHangup завершает звонок по BYE удаленной стороны
func (c *Call) remoteHangup() {
	if c.terminate(causeRemote) {
		c.logger.Info("удаленная сторона завершила звонок")
	}
}

// cancelled завершает звонок по CANCEL и отвечает 487 на INVITE
func (c *Call) cancelled() {
	c.mu.Lock()
	ringing := c.fsm.Current() == stateRinging
	c.mu.Unlock()
	if !ringing {
		return
	}
	res := c.decorate(sip.NewResponseFromRequest(c.invite, sip.StatusRequestTerminated, "Request Terminated", nil))
	if c.terminate(causeMissed) {
		c.service.reply(c.respond, res)
	}
}

// terminate переводит звонок в DISCONNECTED, сообщает подписчикам и
// удаляет звонок из сервиса. false, если звонок уже завершен.
func (c *Call) terminate(cause string) bool {
	c.mu.Lock()
	if err := c.fsm.Event(context.Background(), evHangup); err != nil {
		c.mu.Unlock()
		return false
	}
	c.details.DisconnectCause = cause
	details := c.details
	parent := c.parent
	c.parent = nil
	wait := c.postDialWait
	c.postDialWait = nil
	dtmf := c.dtmf
	c.dtmf = nil
	c.mu.Unlock()

	if wait != nil {
		wait <- false
	}
	if dtmf != nil {
		_ = dtmf.writer.Close()
	}

	c.notifyState(telecom.CallStateDisconnected)
	c.notifyDetails(details)
	if parent != nil {
		parent.dropChild(c)
	}
	c.notify(func(cb telecom.CallCallback) { cb.OnCallDestroyed(c) })
	c.service.remove(c)
	return true
}

// conferenceReady true для звонка, который можно объединить
func (c *Call) conferenceReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.fsm.Current()
	return !c.conference && c.parent == nil && (state == stateActive || state == stateHolding)
}

func (c *Call) setConferenceable(calls []*Call) {
	c.mu.Lock()
	if slices.Equal(c.conferenceable, calls) {
		c.mu.Unlock()
		return
	}
	c.conferenceable = slices.Clone(calls)
	c.mu.Unlock()

	list := asCalls(calls)
	c.notify(func(cb telecom.CallCallback) { cb.OnConferenceableCallsChanged(c, list) })
}

func (c *Call) setParent(p *Call) {
	c.mu.Lock()
	if c.parent == p {
		c.mu.Unlock()
		return
	}
	c.parent = p
	if p != nil {
		c.details.Capabilities |= childCapabilities
	} else {
		c.details.Capabilities &^= childCapabilities
	}
	details := c.details
	c.mu.Unlock()

	var parent telecom.Call
	if p != nil {
		parent = p
	}
	c.notify(func(cb telecom.CallCallback) { cb.OnParentChanged(c, parent) })
	c.notifyDetails(details)
}

// Conference объединяет звонок с other в новую конференцию
func (c *Call) Conference(other telecom.Call) error {
	o, ok := other.(*Call)
	if !ok || o.service != c.service {
		return ErrForeignCall
	}
	if o == c {
		return fmt.Errorf("%w: звонок нельзя объединить с самим собой", ErrInvalidState)
	}

	c.service.confMu.Lock()
	defer c.service.confMu.Unlock()
	if !c.conferenceReady() || !o.conferenceReady() {
		return fmt.Errorf("%w: звонки недоступны для объединения", ErrInvalidState)
	}
	c.service.newConference([]*Call{c, o})
	c.service.refreshConferenceable()
	return nil
}

func (c *Call) SplitFromConference() error {
	c.service.confMu.Lock()
	defer c.service.confMu.Unlock()

	c.mu.Lock()
	parent := c.parent
	c.mu.Unlock()
	if parent == nil {
		return fmt.Errorf("%w: звонок не входит в конференцию", ErrInvalidState)
	}

	c.setParent(nil)
	parent.dropChild(c)
	c.service.refreshConferenceable()
	return nil
}

func (c *Call) MergeConference() error {
	if !c.conference {
		return ErrNotConference
	}
	c.service.confMu.Lock()
	defer c.service.confMu.Unlock()

	c.mu.Lock()
	if c.fsm.Current() != stateActive {
		c.mu.Unlock()
		return fmt.Errorf("%w: конференция завершена", ErrInvalidState)
	}
	candidates := slices.Clone(c.conferenceable)
	c.mu.Unlock()

	var joined []*Call
	for _, o := range candidates {
		if o.conferenceReady() {
			joined = append(joined, o)
		}
	}
	if len(joined) == 0 {
		return fmt.Errorf("%w: нет звонков для объединения", ErrInvalidState)
	}

	c.mu.Lock()
	c.children = append(c.children, joined...)
	children := asCalls(c.children)
	c.mu.Unlock()

	for _, o := range joined {
		o.setParent(c)
	}
	c.notify(func(cb telecom.CallCallback) { cb.OnChildrenChanged(c, children) })
	c.service.refreshConferenceable()
	return nil
}

func (c *Call) SwapConference() error {
	if !c.conference {
		return ErrNotConference
	}
	c.service.confMu.Lock()
	defer c.service.confMu.Unlock()

	c.mu.Lock()
	if len(c.children) != 2 {
		c.mu.Unlock()
		return fmt.Errorf("%w: обмен возможен только для двух участников", ErrInvalidState)
	}
	c.children[0], c.children[1] = c.children[1], c.children[0]
	children := asCalls(c.children)
	c.mu.Unlock()

	c.notify(func(cb telecom.CallCallback) { cb.OnChildrenChanged(c, children) })
	return nil
}

// dropChild убирает участника. Конференция с одним участником распускается.
func (c *Call) dropChild(child *Call) {
	c.mu.Lock()
	i := slices.Index(c.children, child)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.children = slices.Delete(c.children, i, i+1)
	children := asCalls(c.children)
	var rest []*Call
	if len(c.children) < 2 {
		rest = c.children
		c.children = nil
	}
	c.mu.Unlock()

	c.notify(func(cb telecom.CallCallback) { cb.OnChildrenChanged(c, children) })
	if len(children) >= 2 {
		return
	}

	for _, o := range rest {
		o.setParent(nil)
	}
	if len(rest) > 0 {
		c.notify(func(cb telecom.CallCallback) { cb.OnChildrenChanged(c, nil) })
	}
	if c.terminate(causeLocal) {
		c.logger.Info("конференция распущена")
	}
}

func (c *Call) disconnectConference() error {
	c.mu.Lock()
	members := slices.Clone(c.children)
	c.mu.Unlock()

	var errs []error
	for _, m := range members {
		if err := m.Disconnect(); err != nil && !errors.Is(err, ErrInvalidState) {
			errs = append(errs, err)
		}
	}
	c.terminate(causeLocal)
	return errors.Join(errs...)
}
