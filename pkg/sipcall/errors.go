package sipcall

import "errors"

var (
	// ErrInvalidState операция недопустима в текущем состоянии звонка
	ErrInvalidState = errors.New("недопустимое состояние звонка")
	// ErrNotConference операция доступна только конференции
	ErrNotConference = errors.New("звонок не является конференцией")
	// ErrForeignCall звонок создан не этим сервисом
	ErrForeignCall = errors.New("звонок принадлежит другому сервису")
	// ErrNoPendingRequest нет запроса изменения видео, ожидающего ответа
	ErrNoPendingRequest = errors.New("нет ожидающего запроса изменения видео")
	// ErrNoPostDial звонок не ожидает продолжения post-dial
	ErrNoPostDial = errors.New("нет ожидающего post-dial")
	// ErrRemoteRejected удаленная сторона ответила неуспешным статусом
	ErrRemoteRejected = errors.New("удаленная сторона отклонила запрос")
	// ErrNoMedia медиа адрес удаленной стороны неизвестен
	ErrNoMedia = errors.New("неизвестен медиа адрес удаленной стороны")
)
