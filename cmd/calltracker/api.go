package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arzzra/call_tracker/pkg/sipcall"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

// controlAPI открывает команды SessionFacade и подписки на события по HTTP
type controlAPI struct {
	facade *telecom.SessionFacade
	router *telecom.CallEventRouter
	logger *slog.Logger
}

func newControlAPI(facade *telecom.SessionFacade, router *telecom.CallEventRouter, logger *slog.Logger) *controlAPI {
	return &controlAPI{facade: facade, router: router, logger: logger}
}

func (a *controlAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /calls", a.listCalls)
	mux.HandleFunc("GET /calls/{id}", a.callDetails)
	mux.HandleFunc("POST /calls/{id}/answer", a.command(func(id string, r *http.Request) error {
		return a.facade.Answer(id, queryOr(r, "video", "AUDIO_ONLY"))
	}))
	mux.HandleFunc("POST /calls/{id}/reject", a.command(func(id string, r *http.Request) error {
		var message *string
		if r.URL.Query().Has("message") {
			m := r.URL.Query().Get("message")
			message = &m
		}
		return a.facade.Reject(id, message)
	}))
	mux.HandleFunc("POST /calls/{id}/disconnect", a.command(func(id string, _ *http.Request) error {
		return a.facade.Disconnect(id)
	}))
	mux.HandleFunc("POST /calls/{id}/hold", a.command(func(id string, _ *http.Request) error {
		return a.facade.Hold(id)
	}))
	mux.HandleFunc("POST /calls/{id}/unhold", a.command(func(id string, _ *http.Request) error {
		return a.facade.Unhold(id)
	}))
	mux.HandleFunc("POST /calls/{id}/merge", a.command(func(id string, r *http.Request) error {
		return a.facade.Merge(id, r.URL.Query().Get("with"))
	}))
	mux.HandleFunc("POST /calls/{id}/split", a.command(func(id string, _ *http.Request) error {
		return a.facade.Split(id)
	}))
	mux.HandleFunc("POST /calls/{id}/dtmf", a.command(func(id string, r *http.Request) error {
		return a.facade.PlayDtmfTone(id, r.URL.Query().Get("digit"))
	}))
	mux.HandleFunc("POST /calls/{id}/video", a.command(func(id string, r *http.Request) error {
		return a.facade.SendSessionModifyRequest(id, queryOr(r, "state", "BIDIRECTIONAL"), queryOr(r, "quality", "DEFAULT"))
	}))

	// подписки: без них события звонка не доходят до sink
	mux.HandleFunc("POST /calls/{id}/listen", a.command(func(id string, r *http.Request) error {
		return a.router.StartListeningByName(id, r.URL.Query().Get("event"))
	}))
	mux.HandleFunc("DELETE /calls/{id}/listen", a.command(func(id string, r *http.Request) error {
		return a.router.StopListeningByName(id, r.URL.Query().Get("event"))
	}))
	mux.HandleFunc("POST /calls/{id}/video/listen", a.command(func(id string, r *http.Request) error {
		return a.router.Video().StartListeningByName(id, r.URL.Query().Get("event"))
	}))
	mux.HandleFunc("DELETE /calls/{id}/video/listen", a.command(func(id string, r *http.Request) error {
		return a.router.Video().StopListeningByName(id, r.URL.Query().Get("event"))
	}))
}

func queryOr(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

func (a *controlAPI) listCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"calls": a.facade.GetCallIDs()})
}

func (a *controlAPI) callDetails(w http.ResponseWriter, r *http.Request) {
	details, err := a.facade.GetDetails(r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *controlAPI) command(fn func(id string, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := fn(id, r); err != nil {
			a.fail(w, err)
			return
		}
		a.logger.Debug("команда выполнена", slog.String("call_id", id), slog.String("path", r.URL.Path))
		w.WriteHeader(http.StatusNoContent)
	}
}

// fail отображает класс ошибки трекера в HTTP статус
func (a *controlAPI) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case telecom.IsLookupFailure(err):
		status = http.StatusNotFound
	case telecom.IsInvalidArgument(err):
		status = http.StatusBadRequest
	case telecom.KindOf(err) == telecom.KindProtocolMismatch,
		errors.Is(err, sipcall.ErrInvalidState),
		errors.Is(err, sipcall.ErrNotConference):
		status = http.StatusConflict
	default:
		a.logger.Warn("command failed", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "kind": telecom.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
