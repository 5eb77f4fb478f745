package sipcall

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_tracker/pkg/config"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

const audioOffer = "v=0\r\n" +
	"o=- 1 1 IN IP4 10.0.0.2\r\n" +
	"s=-\r\n" +
	"c=IN IP4 10.0.0.2\r\n" +
	"t=0 0\r\n" +
	"m=audio 4000 RTP/AVP 0 101\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=sendrecv\r\n"

const videoOffer = audioOffer +
	"m=video 4002 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=framesize:96 640-480\r\n" +
	"a=sendrecv\r\n"

// fakeTransport отвечает 200 OK на все запросы, либо 488 при reject
type fakeTransport struct {
	mu       sync.Mutex
	requests []*sip.Request
	acks     []*sip.Request
	reject   bool
	err      error
	body     []byte
}

func (t *fakeTransport) Do(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if t.err != nil {
		return nil, t.err
	}
	if t.reject {
		return sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil), nil
	}
	return sip.NewResponseFromRequest(req, sip.StatusOK, "OK", t.body), nil
}

func (t *fakeTransport) Write(req *sip.Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acks = append(t.acks, req)
	return nil
}

func (t *fakeTransport) Requests() []*sip.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sip.Request(nil), t.requests...)
}

func (t *fakeTransport) Acks() []*sip.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sip.Request(nil), t.acks...)
}

// responses собирает ответы серверной транзакции
type responses struct {
	mu   sync.Mutex
	list []*sip.Response
}

func (r *responses) respond(res *sip.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, res)
	return nil
}

func (r *responses) Codes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]int, len(r.list))
	for i, res := range r.list {
		codes[i] = int(res.StatusCode)
	}
	return codes
}

func (r *responses) Last() *sip.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) == 0 {
		return nil
	}
	return r.list[len(r.list)-1]
}

// recorder записывает события звонка в виде строк
type recorder struct {
	mu     sync.Mutex
	events []string
	canned []string
	video  telecom.VideoCall
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func parentID(p telecom.Call) string {
	if p == nil {
		return ""
	}
	return p.ID()
}

func (r *recorder) OnStateChanged(call telecom.Call, state telecom.CallState) {
	r.add("state:%s", state)
}

func (r *recorder) OnParentChanged(call telecom.Call, parent telecom.Call) {
	r.add("parent:%s", parentID(parent))
}

func (r *recorder) OnChildrenChanged(call telecom.Call, children []telecom.Call) {
	r.add("children:%d", len(children))
}

func (r *recorder) OnDetailsChanged(call telecom.Call, details telecom.CallDetails) {
	r.add("details")
}

func (r *recorder) OnCannedTextResponsesLoaded(call telecom.Call, responses []string) {
	r.mu.Lock()
	r.canned = responses
	r.mu.Unlock()
	r.add("canned")
}

func (r *recorder) OnPostDialWait(call telecom.Call, remaining string) {
	r.add("post_dial:%s", remaining)
}

func (r *recorder) OnVideoCallChanged(call telecom.Call, video telecom.VideoCall) {
	r.mu.Lock()
	r.video = video
	r.mu.Unlock()
	r.add("video:%t", video != nil)
}

func (r *recorder) OnCallDestroyed(call telecom.Call) {
	r.add("destroyed")
}

func (r *recorder) OnConferenceableCallsChanged(call telecom.Call, calls []telecom.Call) {
	r.add("conferenceable:%d", len(calls))
}

// videoRecorder записывает события видео сессии
type videoRecorder struct {
	recorder
}

func (r *videoRecorder) OnSessionModifyRequestReceived(request telecom.VideoProfile) {
	r.add("modify_request:%s", request.State)
}

func (r *videoRecorder) OnSessionModifyResponseReceived(status telecom.VideoSessionStatus, requested, response telecom.VideoProfile) {
	r.add("modify_response:%s:%s", status, response.State)
}

func (r *videoRecorder) OnCallSessionEvent(event telecom.VideoSessionEvent) {
	r.add("session:%s", event)
}

func (r *videoRecorder) OnPeerDimensionsChanged(width, height int) {
	r.add("peer:%dx%d", width, height)
}

func (r *videoRecorder) OnVideoQualityChanged(quality telecom.VideoQuality) {
	r.add("quality:%s", quality)
}

func (r *videoRecorder) OnCallDataUsageChanged(bytes int64) {
	r.add("usage:%t", bytes > 0)
}

func (r *videoRecorder) OnCameraCapabilitiesChanged(caps telecom.CameraCapabilities) {
	r.add("camera:%dx%d", caps.Width, caps.Height)
}

// listener подписывает recorder на каждый новый звонок
type listener struct {
	mu        sync.Mutex
	added     []string
	removed   []string
	recorders map[string]*recorder
}

func (l *listener) OnCallAdded(call telecom.Call) {
	rec := &recorder{}
	call.RegisterCallback(rec)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recorders == nil {
		l.recorders = make(map[string]*recorder)
	}
	l.recorders[call.ID()] = rec
	l.added = append(l.added, call.ID())
}

func (l *listener) OnCallRemoved(call telecom.Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, call.ID())
}

func (l *listener) Added() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.added...)
}

func (l *listener) Removed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.removed...)
}

func (l *listener) Recorder(id string) *recorder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recorders[id]
}

// rtpCapture фиксирует отправленные RTP пакеты
type rtpCapture struct {
	mu      sync.Mutex
	packets []*rtp.Packet
	host    string
	port    int
	closed  bool
}

func (w *rtpCapture) WriteRTP(pkt *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.packets = append(w.packets, pkt)
	return nil
}

func (w *rtpCapture) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *rtpCapture) dial(host string, port int) (RTPWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.host, w.port = host, port
	return w, nil
}

type testService struct {
	*Service
	transport *fakeTransport
	listener  *listener
}

func newTestService(t *testing.T, modify func(cfg *config.Config), opts ...Option) *testService {
	t.Helper()
	cfg := config.DefaultConfig()
	if modify != nil {
		modify(cfg)
	}
	require.NoError(t, cfg.Validate())

	tr := &fakeTransport{}
	l := &listener{}
	opts = append([]Option{WithRequestTimeout(time.Second), WithPostDialPause(0)}, opts...)
	return &testService{
		Service:   NewService(cfg, tr, l, opts...),
		transport: tr,
		listener:  l,
	}
}

func newInvite(callID, user, body string) *sip.Request {
	return newRequest(sip.INVITE, callID, user, body)
}

// newRequest запрос вне диалога от удаленной стороны
func newRequest(method sip.RequestMethod, callID, user, body string) *sip.Request {
	req := sip.NewRequest(method, sip.Uri{Scheme: "sip", User: user, Host: "127.0.0.1", Port: 5060})
	req.AppendHeader(&sip.FromHeader{
		DisplayName: "Alice",
		Address:     sip.Uri{Scheme: "sip", User: "alice", Host: "example.com"},
		Params:      sip.NewParams().Add("tag", "from-tag"),
	})
	req.AppendHeader(&sip.ToHeader{
		Address: sip.Uri{Scheme: "sip", User: "100", Host: "127.0.0.1"},
		Params:  sip.NewParams(),
	})
	id := sip.CallIDHeader(callID)
	req.AppendHeader(&id)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})
	req.AppendHeader(&sip.ContactHeader{Address: sip.Uri{Scheme: "sip", User: "alice", Host: "10.0.0.2", Port: 5062}})
	if body != "" {
		setBody(req, "application/sdp", []byte(body))
	}
	return req
}

// inDialog запрос удаленной стороны внутри диалога звонка c
func inDialog(c *Call, method sip.RequestMethod, seq uint32, body string) *sip.Request {
	req := sip.NewRequest(method, c.service.contact)
	req.AppendHeader(&sip.FromHeader{
		Address: c.remoteURI,
		Params:  sip.NewParams().Add("tag", c.remoteTag),
	})
	req.AppendHeader(&sip.ToHeader{
		Address: c.localURI,
		Params:  sip.NewParams().Add("tag", c.localTag),
	})
	id := sip.CallIDHeader(c.id)
	req.AppendHeader(&id)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})
	if body != "" {
		setBody(req, "application/sdp", []byte(body))
	}
	return req
}

// incoming создает звонок входящим INVITE и возвращает его вместе с
// ответами транзакции INVITE
func (s *testService) incoming(t *testing.T, callID, body string) (*Call, *responses) {
	t.Helper()
	res := &responses{}
	s.onInvite(newInvite(callID, "100", body), res.respond)
	c, ok := s.Call(callID)
	require.True(t, ok, "call %s must be registered", callID)
	return c, res
}

// active создает принятый звонок
func (s *testService) active(t *testing.T, callID, body string, video telecom.VideoState) *Call {
	t.Helper()
	c, _ := s.incoming(t, callID, body)
	require.NoError(t, c.Answer(video))
	return c
}

func headerValue(msg interface{ GetHeader(string) sip.Header }, name string) string {
	h := msg.GetHeader(name)
	if h == nil {
		return ""
	}
	return h.Value()
}
