package telecom

import (
	"context"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// Состояния жизненного цикла CallRecord
const (
	CallLifecyclePending   = "pending"
	CallLifecycleActive    = "active"
	CallLifecycleDestroyed = "destroyed"
)

// Состояния жизненного цикла VideoRecord
const (
	VideoLifecycleAttached = "attached"
	VideoLifecycleDetached = "detached"
)

func newCallLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		CallLifecyclePending,
		fsm.Events{
			{Name: "activate", Src: []string{CallLifecyclePending}, Dst: CallLifecycleActive},
			{Name: "destroy", Src: []string{CallLifecyclePending, CallLifecycleActive}, Dst: CallLifecycleDestroyed},
		},
		nil,
	)
}

func newVideoLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		VideoLifecycleAttached,
		fsm.Events{
			{Name: "detach", Src: []string{VideoLifecycleAttached}, Dst: VideoLifecycleDetached},
		},
		nil,
	)
}

// CallRecord состояние одного отслеживаемого звонка.
//
// Маска подписки меняется под мьютексом реестра, а читается без
// блокировки атомарной загрузкой перед отправкой события.
type CallRecord struct {
	id        string
	call      Call
	mask      atomic.Uint32
	lifecycle *fsm.FSM
	callback  *callCallback

	// video защищено мьютексом реестра
	video *VideoRecord
}

func newCallRecord(id string, call Call) *CallRecord {
	return &CallRecord{
		id:        id,
		call:      call,
		lifecycle: newCallLifecycle(),
	}
}

// ID идентификатор звонка
func (r *CallRecord) ID() string { return r.id }

// Call дескриптор звонка
func (r *CallRecord) Call() Call { return r.call }

// Mask текущая маска подписки
func (r *CallRecord) Mask() CallEventKind {
	return CallEventKind(r.mask.Load())
}

// Listening проверяет подписку на событие
func (r *CallRecord) Listening(kind CallEventKind) bool {
	return CallEventKind(r.mask.Load()).Has(kind)
}

// Lifecycle текущее состояние жизненного цикла
func (r *CallRecord) Lifecycle() string {
	return r.lifecycle.Current()
}

func (r *CallRecord) transition(event string) error {
	return r.lifecycle.Event(context.Background(), event)
}

// VideoRecord состояние видео сессии звонка. Живет не дольше
// родительского CallRecord.
type VideoRecord struct {
	callID    string
	video     VideoCall
	mask      atomic.Uint32
	detached  atomic.Bool
	lifecycle *fsm.FSM
	callback  *videoCallback
}

func newVideoRecord(callID string, video VideoCall) *VideoRecord {
	return &VideoRecord{
		callID:    callID,
		video:     video,
		lifecycle: newVideoLifecycle(),
	}
}

// CallID идентификатор родительского звонка
func (v *VideoRecord) CallID() string { return v.callID }

// VideoCall дескриптор видео сессии
func (v *VideoRecord) VideoCall() VideoCall { return v.video }

// Mask текущая маска подписки
func (v *VideoRecord) Mask() VideoEventKind {
	return VideoEventKind(v.mask.Load())
}

// Listening проверяет подписку на событие. Отключенная сессия
// не слушает ничего.
func (v *VideoRecord) Listening(kind VideoEventKind) bool {
	if v.detached.Load() {
		return false
	}
	return VideoEventKind(v.mask.Load()).Has(kind)
}

// Detached true после отключения сессии от звонка
func (v *VideoRecord) Detached() bool {
	return v.detached.Load()
}

// Lifecycle текущее состояние жизненного цикла
func (v *VideoRecord) Lifecycle() string {
	return v.lifecycle.Current()
}

// markDetached делает запись инертной. Вызывается под мьютексом реестра.
func (v *VideoRecord) markDetached() {
	v.detached.Store(true)
	v.mask.Store(0)
	_ = v.lifecycle.Event(context.Background(), "detach")
}
