package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/presence"
	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type errorDTO struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrBusy), errors.Is(err, service.ErrLeaveNotAllowed):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoClient):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBadArgs), errors.Is(err, domain.ErrInvalidRoomURL):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorDTO{Error: err.Error()})
}

func (h *Handler) writeSession(w http.ResponseWriter, status int) {
	writeJSON(w, status, presence.NewSessionView(h.Sessions.Snapshot()))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, http.StatusOK)
}

func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.StartCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusAccepted)
}

func (h *Handler) LeaveCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.LeaveCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusAccepted)
}

func (h *Handler) LoadPage(w http.ResponseWriter, r *http.Request) {
	type pageDTO struct {
		Href string `json:"href"`
	}

	var req pageDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Href == "" {
		writeJSON(w, http.StatusBadRequest, errorDTO{Error: "href is required"})
		return
	}
	if err := h.Sessions.LoadPage(r.Context(), req.Href); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	type messageDTO struct {
		FromID     string          `json:"from_id"`
		Data       json.RawMessage `json:"data,omitempty"`
		ReceivedAt time.Time       `json:"received_at"`
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorDTO{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	msgs, err := h.Messages.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO{FromID: m.FromID, Data: m.Data, ReceivedAt: m.ReceivedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *Handler) ListDebugCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"commands": h.Debug.Names()})
}

func (h *Handler) RunDebugCommand(w http.ResponseWriter, r *http.Request) {
	type commandDTO struct {
		Args []string `json:"args"`
	}

	var req commandDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorDTO{Error: "invalid body"})
			return
		}
	}

	name := chi.URLParam(r, "command")
	result, err := h.Debug.Run(r.Context(), name, req.Args)
	if err != nil {
		log.Warn().Err(err).Str("command", name).Msg("Debug command failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"command": name, "result": result})
}
