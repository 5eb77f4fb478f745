package telecom

import (
	"sort"
	"sync"
)

// CallRegistry единственный источник истины о существующих звонках.
//
// Один мьютекс защищает структуру карты, подключение и отключение
// видео сессий и изменения масок подписки. Ни одна операция не блокируется
// на вводе-выводе.
type CallRegistry struct {
	mu    sync.RWMutex
	calls map[string]*CallRecord
}

// NewCallRegistry создает пустой реестр
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		calls: make(map[string]*CallRecord),
	}
}

// Upsert возвращает запись звонка, создавая ее при отсутствии.
// Существующая запись возвращается без сброса маски и видео сессии.
// created == true только для новой записи.
func (r *CallRegistry) Upsert(id string, call Call) (rec *CallRecord, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertLocked(id, call)
}

func (r *CallRegistry) upsertLocked(id string, call Call) (*CallRecord, bool) {
	if rec, ok := r.calls[id]; ok {
		return rec, false
	}
	if call == nil {
		return nil, false
	}
	rec := newCallRecord(id, call)
	r.calls[id] = rec
	return rec, true
}

// Get возвращает запись звонка
func (r *CallRegistry) Get(id string) (*CallRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.calls[id]
	return rec, ok
}

// Remove удаляет запись звонка. Для отсутствующего id ничего не делает.
func (r *CallRegistry) Remove(id string) (*CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *CallRegistry) removeLocked(id string) (*CallRecord, bool) {
	rec, ok := r.calls[id]
	if !ok {
		return nil, false
	}
	delete(r.calls, id)
	return rec, true
}

// IDs возвращает отсортированный список идентификаторов звонков
func (r *CallRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len количество отслеживаемых звонков
func (r *CallRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Clear очищает реестр и возвращает удаленные записи, чтобы вызывающий
// мог отписаться от их дескрипторов
func (r *CallRegistry) Clear() []*CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearLocked()
}

func (r *CallRegistry) clearLocked() []*CallRecord {
	removed := make([]*CallRecord, 0, len(r.calls))
	for _, rec := range r.calls {
		removed = append(removed, rec)
	}
	r.calls = make(map[string]*CallRecord)
	return removed
}

// Video возвращает видео сессию звонка
func (r *CallRegistry) Video(id string) (*VideoRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.calls[id]
	if !ok || rec.video == nil {
		return nil, false
	}
	return rec.video, true
}

// setCallMask применяет изменение маски под мьютексом реестра
func (r *CallRegistry) setCallMask(id string, kinds CallEventKind, enable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.calls[id]
	if !ok {
		return errUnknownCall(id)
	}
	if enable {
		rec.mask.Or(uint32(kinds))
	} else {
		rec.mask.And(^uint32(kinds))
	}
	return nil
}

func (r *CallRegistry) setVideoMask(id string, kinds VideoEventKind, enable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.calls[id]
	if !ok {
		return errUnknownCall(id)
	}
	if rec.video == nil {
		return errNoVideoCall(id)
	}
	if enable {
		rec.video.mask.Or(uint32(kinds))
	} else {
		rec.video.mask.And(^uint32(kinds))
	}
	return nil
}
