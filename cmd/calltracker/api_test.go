package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_tracker/pkg/sipcall"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

// answeringCall дескриптор звонка, поддерживающий только ответ и удержание.
// Остальные методы telecom.Call в тестах не вызываются.
type answeringCall struct {
	telecom.Call
	id       string
	answered telecom.VideoState
	holdErr  error
}

func (c *answeringCall) ID() string                   { return c.id }
func (c *answeringCall) State() telecom.CallState     { return telecom.CallStateRinging }
func (c *answeringCall) VideoCall() telecom.VideoCall { return nil }
func (c *answeringCall) Hold() error                  { return c.holdErr }

func (c *answeringCall) Details() telecom.CallDetails {
	return telecom.CallDetails{Handle: "alice@example.com"}
}

func (c *answeringCall) Answer(state telecom.VideoState) error {
	c.answered = state
	return nil
}

func (c *answeringCall) RegisterCallback(telecom.CallCallback)   {}
func (c *answeringCall) UnregisterCallback(telecom.CallCallback) {}

// callbackCall запоминает зарегистрированные callback, чтобы тест мог
// сымитировать уведомления телефонной подсистемы
type callbackCall struct {
	answeringCall
	callbacks []telecom.CallCallback
}

func (c *callbackCall) RegisterCallback(cb telecom.CallCallback) {
	c.callbacks = append(c.callbacks, cb)
}

func (c *callbackCall) fireStateChanged(state telecom.CallState) {
	for _, cb := range c.callbacks {
		cb.OnStateChanged(c, state)
	}
}

func newTestAPI(t *testing.T, calls ...telecom.Call) *httptest.Server {
	t.Helper()
	return newTestAPIWithSink(t, nil, calls...)
}

func newTestAPIWithSink(t *testing.T, sink telecom.EventSink, calls ...telecom.Call) *httptest.Server {
	t.Helper()
	registry := telecom.NewCallRegistry()
	var opts []telecom.RouterOption
	if sink != nil {
		opts = append(opts, telecom.WithEventSink(sink))
	}
	router := telecom.NewCallEventRouter(registry, opts...)
	for _, c := range calls {
		router.OnCallAdded(c)
	}
	facade := telecom.NewSessionFacade(registry)
	mux := http.NewServeMux()
	newControlAPI(facade, router, slog.New(slog.NewTextHandler(io.Discard, nil))).register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

// TestControlAPIListCalls проверяет пустой список звонков
func TestControlAPIListCalls(t *testing.T) {
	srv := newTestAPI(t)

	res, err := http.Get(srv.URL + "/calls")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Empty(t, decode(t, res)["calls"])
}

// TestControlAPIUnknownCall проверяет 404 для неизвестного звонка
func TestControlAPIUnknownCall(t *testing.T) {
	srv := newTestAPI(t)

	res, err := http.Get(srv.URL + "/calls/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, string(telecom.KindLookupFailure), body["kind"])

	for _, path := range []string{"answer", "reject?message=busy", "disconnect", "hold", "unhold", "split", "dtmf?digit=1"} {
		res, err := http.Post(srv.URL+"/calls/missing/"+path, "", nil)
		require.NoError(t, err, path)
		res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
	}
}

// TestControlAPIMethodNotAllowed проверяет маршрутизацию по методу
func TestControlAPIMethodNotAllowed(t *testing.T) {
	srv := newTestAPI(t)

	res, err := http.Get(srv.URL + "/calls/missing/answer")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

// TestControlAPICommands проверяет команды над зарегистрированным звонком
func TestControlAPICommands(t *testing.T) {
	call := &answeringCall{id: "C1", holdErr: sipcall.ErrInvalidState}
	srv := newTestAPI(t, call)

	res, err := http.Get(srv.URL + "/calls")
	require.NoError(t, err)
	assert.Equal(t, []any{"C1"}, decode(t, res)["calls"])

	res, err = http.Get(srv.URL + "/calls/C1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "alice@example.com", decode(t, res)["Handle"])

	res, err = http.Post(srv.URL+"/calls/C1/answer?video=BIDIRECTIONAL", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, telecom.VideoStateBidirectional, call.answered)

	res, err = http.Post(srv.URL+"/calls/C1/hold", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, res.StatusCode, "invalid call state maps to 409")
	res.Body.Close()

	res, err = http.Post(srv.URL+"/calls/C1/video?quality=bogus", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "call without video session")
	res.Body.Close()
}

func send(t *testing.T, method, url string) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	return res.StatusCode
}

// TestControlAPIListen проверяет, что подписка через HTTP включает
// доставку событий звонка в sink, а отписка ее выключает
func TestControlAPIListen(t *testing.T) {
	var (
		mu     sync.Mutex
		posted []string
	)
	sink := telecom.EventSinkFunc(func(name string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		data, _ := payload.(map[string]any)
		posted = append(posted, name+"/"+data["CallId"].(string))
	})
	call := &callbackCall{answeringCall: answeringCall{id: "C1"}}
	srv := newTestAPIWithSink(t, sink, call)
	require.NotEmpty(t, call.callbacks, "router registers its callback on add")

	events := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), posted...)
	}

	call.fireStateChanged(telecom.CallStateActive)
	assert.Empty(t, events(), "nothing is forwarded before subscription")

	assert.Equal(t, http.StatusNoContent, send(t, http.MethodPost, srv.URL+"/calls/C1/listen?event=StateChanged"))
	call.fireStateChanged(telecom.CallStateActive)
	assert.Equal(t, []string{"TelecomCallStateChanged/C1"}, events())

	assert.Equal(t, http.StatusNoContent, send(t, http.MethodDelete, srv.URL+"/calls/C1/listen?event=StateChanged"))
	call.fireStateChanged(telecom.CallStateHolding)
	assert.Len(t, events(), 1, "unsubscribed event is dropped")

	assert.Equal(t, http.StatusBadRequest, send(t, http.MethodPost, srv.URL+"/calls/C1/listen?event=Bogus"))
	assert.Equal(t, http.StatusBadRequest, send(t, http.MethodPost, srv.URL+"/calls/C1/video/listen?event=Bogus"))
	assert.Equal(t, http.StatusNotFound, send(t, http.MethodPost, srv.URL+"/calls/missing/listen?event=StateChanged"))
	assert.Equal(t, http.StatusNotFound, send(t, http.MethodDelete, srv.URL+"/calls/missing/video/listen?event=All"))
	assert.Equal(t, http.StatusNotFound, send(t, http.MethodPost, srv.URL+"/calls/C1/video/listen?event=All"),
		"call without video session")
}
