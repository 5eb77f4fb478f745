// Package telecom отслеживает звонки и видео сессии внешней телефонной
// подсистемы и пересылает их события во внешний EventSink.
//
// # Компоненты
//
//   - CallRegistry: единственный источник истины о существующих звонках
//   - CallEventRouter: принимает уведомления подсистемы (CallListener) и callback'и звонков
//   - VideoEventRouter: callback'и видео сессий, подключение и отключение сессии
//   - SessionFacade: операции над звонками по строковому идентификатору
//   - Anchor: процессный якорь, занятый трекером, пока есть хотя бы один звонок
//
// # Подписки
//
// Каждый звонок и видео сессия хранят маску событий. Событие пересылается
// в EventSink только если его бит установлен в момент доставки:
//
//	router.StartListening("C1", telecom.CallEventStateChanged)
//	// ... OnStateChanged(C1, ACTIVE) -> PostEvent("TelecomCallStateChanged", {...})
//	router.StopListening("C1", telecom.CallEventStateChanged)
//
// Payload события всегда map[string]any с ключами CallId, Event и Data.
//
// # Конкурентность
//
// Изменения реестра, подключение видео и изменения масок выполняются под
// одним мьютексом. Проверка маски перед отправкой атомарная и без блокировки,
// EventSink никогда не вызывается под мьютексом. Паника в callback'е
// перехватывается, логируется и не уходит в горутину подсистемы.
package telecom
