package telecom

import (
	"sync"
)

// Anchor процессный якорь: отмечает трекер, который является авторитетным,
// пока отслеживается хотя бы один звонок.
//
// Якорь передается по ссылке всем трекерам процесса. Трекер занимает его
// при появлении первого звонка и освобождает после удаления последнего.
// Попытка занять якорь, удерживаемый другим трекером, отклоняется.
type Anchor struct {
	mu    sync.Mutex
	owner string

	onActivate func(owner string)
	onRelease  func(owner string)
}

// AnchorOption настраивает Anchor
type AnchorOption func(*Anchor)

// WithActivateHook вызывается после того, как якорь занят
func WithActivateHook(fn func(owner string)) AnchorOption {
	return func(a *Anchor) { a.onActivate = fn }
}

// WithReleaseHook вызывается после освобождения якоря
func WithReleaseHook(fn func(owner string)) AnchorOption {
	return func(a *Anchor) { a.onRelease = fn }
}

// NewAnchor создает свободный якорь
func NewAnchor(opts ...AnchorOption) *Anchor {
	a := &Anchor{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire занимает якорь. Повторный вызов тем же владельцем не меняет
// состояния и возвращает activated == false.
func (a *Anchor) Acquire(owner string) (activated bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.owner {
	case "":
		a.owner = owner
		return true, nil
	case owner:
		return false, nil
	default:
		return false, errAnchorHeld(owner, a.owner)
	}
}

// Release освобождает якорь, если он принадлежит owner
func (a *Anchor) Release(owner string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner == "" || a.owner != owner {
		return false
	}
	a.owner = ""
	return true
}

// Owner текущий владелец или пустая строка
func (a *Anchor) Owner() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}

// Active true, пока якорь занят
func (a *Anchor) Active() bool {
	return a.Owner() != ""
}

// hooks вызываются вне мьютексов реестра и якоря
func (a *Anchor) activated(owner string) {
	if a.onActivate != nil {
		a.onActivate(owner)
	}
}

func (a *Anchor) released(owner string) {
	if a.onRelease != nil {
		a.onRelease(owner)
	}
}
