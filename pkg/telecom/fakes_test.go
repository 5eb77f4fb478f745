package telecom

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

// fakeCall дескриптор звонка для тестов: хранит состояние и
// записывает все запрошенные изменения
type fakeCall struct {
	id string

	mu             sync.Mutex
	state          CallState
	details        CallDetails
	parent         Call
	children       []Call
	conferenceable []Call
	canned         []string
	video          VideoCall
	callbacks      []CallCallback
	ops            []string
	err            error
}

func newFakeCall(id string) *fakeCall {
	return &fakeCall{id: id, state: CallStateRinging}
}

func (c *fakeCall) ID() string { return c.id }

func (c *fakeCall) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeCall) Details() CallDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.details
}

func (c *fakeCall) Parent() Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

func (c *fakeCall) Children() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.children
}

func (c *fakeCall) ConferenceableCalls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conferenceable
}

func (c *fakeCall) CannedTextResponses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canned
}

func (c *fakeCall) VideoCall() VideoCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video
}

func (c *fakeCall) RegisterCallback(cb CallCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

func (c *fakeCall) UnregisterCallback(cb CallCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.callbacks {
		if existing == cb {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return
		}
	}
}

func (c *fakeCall) record(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
	return c.err
}

func (c *fakeCall) Answer(videoState VideoState) error { return c.record("answer:" + videoState.String()) }

func (c *fakeCall) Reject(withMessage bool, text string) error {
	if withMessage {
		return c.record("reject_text:" + text)
	}
	return c.record("reject")
}

func (c *fakeCall) Disconnect() error             { return c.record("disconnect") }
func (c *fakeCall) Hold() error                   { return c.record("hold") }
func (c *fakeCall) Unhold() error                 { return c.record("unhold") }
func (c *fakeCall) PlayDtmfTone(digit rune) error { return c.record("dtmf:" + string(digit)) }
func (c *fakeCall) StopDtmfTone() error           { return c.record("dtmf_stop") }
func (c *fakeCall) Conference(other Call) error   { return c.record("conference:" + other.ID()) }
func (c *fakeCall) SplitFromConference() error    { return c.record("split") }
func (c *fakeCall) MergeConference() error        { return c.record("merge_conference") }
func (c *fakeCall) SwapConference() error         { return c.record("swap") }

func (c *fakeCall) PostDialContinue(proceed bool) error {
	if proceed {
		return c.record("post_dial:continue")
	}
	return c.record("post_dial:cancel")
}

func (c *fakeCall) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *fakeCall) Callbacks() []CallCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CallCallback(nil), c.callbacks...)
}

func (c *fakeCall) setVideo(v VideoCall) {
	c.mu.Lock()
	c.video = v
	c.mu.Unlock()
}

// fire вызывает зарегистрированные callback'и вне мьютекса, как это делает
// телефонная подсистема
func (c *fakeCall) fire(fn func(cb CallCallback)) {
	for _, cb := range c.Callbacks() {
		fn(cb)
	}
}

func (c *fakeCall) setState(state CallState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.fire(func(cb CallCallback) { cb.OnStateChanged(c, state) })
}

func (c *fakeCall) changeVideo(v VideoCall) {
	c.setVideo(v)
	c.fire(func(cb CallCallback) { cb.OnVideoCallChanged(c, v) })
}

// panicCall паникует при запросе идентификатора
type panicCall struct {
	*fakeCall
}

func (p *panicCall) ID() string { panic("broken handle") }

// fakeVideo дескриптор видео сессии для тестов
type fakeVideo struct {
	mu        sync.Mutex
	callbacks []VideoCallback
	ops       []string
}

func (v *fakeVideo) RegisterCallback(cb VideoCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callbacks = append(v.callbacks, cb)
}

func (v *fakeVideo) UnregisterCallback(cb VideoCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, existing := range v.callbacks {
		if existing == cb {
			v.callbacks = append(v.callbacks[:i], v.callbacks[i+1:]...)
			return
		}
	}
}

func (v *fakeVideo) record(op string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ops = append(v.ops, op)
	return nil
}

func (v *fakeVideo) SendSessionModifyRequest(p VideoProfile) error {
	return v.record("request:" + p.State.String() + "/" + p.Quality.String())
}

func (v *fakeVideo) SendSessionModifyResponse(p VideoProfile) error {
	return v.record("response:" + p.State.String() + "/" + p.Quality.String())
}

func (v *fakeVideo) RequestCameraCapabilities() error { return v.record("camera_capabilities") }
func (v *fakeVideo) RequestCallDataUsage() error      { return v.record("data_usage") }
func (v *fakeVideo) SetCamera(cameraID string) error  { return v.record("camera:" + cameraID) }

func (v *fakeVideo) Ops() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.ops...)
}

func (v *fakeVideo) Callbacks() []VideoCallback {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]VideoCallback(nil), v.callbacks...)
}

func (v *fakeVideo) fire(fn func(cb VideoCallback)) {
	for _, cb := range v.Callbacks() {
		fn(cb)
	}
}

type postedEvent struct {
	Name    string
	Payload map[string]any
}

// recordingSink запоминает все отправленные события
type recordingSink struct {
	mu     sync.Mutex
	events []postedEvent
}

func (s *recordingSink) PostEvent(name string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := payload.(map[string]any)
	s.events = append(s.events, postedEvent{Name: name, Payload: m})
}

func (s *recordingSink) Events() []postedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]postedEvent(nil), s.events...)
}

// mockAudio мок AudioController
type mockAudio struct {
	mock.Mock
}

func (m *mockAudio) SetAudioRoute(route AudioRoute) error {
	args := m.Called(route)
	return args.Error(0)
}

func (m *mockAudio) SetMuted(muted bool) error {
	args := m.Called(muted)
	return args.Error(0)
}

func (m *mockAudio) AudioState() AudioState {
	args := m.Called()
	return args.Get(0).(AudioState)
}

type testTracker struct {
	registry *CallRegistry
	router   *CallEventRouter
	facade   *SessionFacade
	sink     *recordingSink
	metrics  *Metrics
}

func newTestTracker(t testing.TB, opts ...RouterOption) *testTracker {
	t.Helper()

	metrics, err := NewMetrics(&MetricsConfig{
		Namespace:  "test",
		Subsystem:  "tracker",
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	registry := NewCallRegistry()
	sink := &recordingSink{}
	opts = append([]RouterOption{WithEventSink(sink), WithMetrics(metrics)}, opts...)
	return &testTracker{
		registry: registry,
		router:   NewCallEventRouter(registry, opts...),
		facade:   NewSessionFacade(registry),
		sink:     sink,
		metrics:  metrics,
	}
}
