package eventsink

import (
	"sync"

	"github.com/arzzra/call_tracker/pkg/telecom"
)

// stubCall минимальный дескриптор звонка без управления
type stubCall struct {
	id string

	mu        sync.Mutex
	callbacks []telecom.CallCallback
}

func newStubCall(id string) *stubCall { return &stubCall{id: id} }

func (c *stubCall) ID() string                          { return c.id }
func (c *stubCall) State() telecom.CallState            { return telecom.CallStateActive }
func (c *stubCall) Details() telecom.CallDetails        { return telecom.CallDetails{} }
func (c *stubCall) Parent() telecom.Call                { return nil }
func (c *stubCall) Children() []telecom.Call            { return nil }
func (c *stubCall) ConferenceableCalls() []telecom.Call { return nil }
func (c *stubCall) CannedTextResponses() []string       { return nil }
func (c *stubCall) VideoCall() telecom.VideoCall        { return nil }
func (c *stubCall) Answer(telecom.VideoState) error     { return nil }
func (c *stubCall) Reject(bool, string) error           { return nil }
func (c *stubCall) Disconnect() error                   { return nil }
func (c *stubCall) Hold() error                         { return nil }
func (c *stubCall) Unhold() error                       { return nil }
func (c *stubCall) PlayDtmfTone(rune) error             { return nil }
func (c *stubCall) StopDtmfTone() error                 { return nil }
func (c *stubCall) PostDialContinue(bool) error         { return nil }
func (c *stubCall) Conference(telecom.Call) error       { return nil }
func (c *stubCall) SplitFromConference() error          { return nil }
func (c *stubCall) MergeConference() error              { return nil }
func (c *stubCall) SwapConference() error               { return nil }

func (c *stubCall) UnregisterCallback(telecom.CallCallback) {}

func (c *stubCall) RegisterCallback(cb telecom.CallCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

func (c *stubCall) destroy() {
	c.mu.Lock()
	callbacks := append([]telecom.CallCallback(nil), c.callbacks...)
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb.OnCallDestroyed(c)
	}
}
