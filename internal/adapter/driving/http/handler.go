package http

import (
	"context"
	"net/http"

	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/presence"
	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type SessionService interface {
	StartCall(ctx context.Context) error
	LeaveCall(ctx context.Context) error
	LoadPage(ctx context.Context, pageURL string) error
	Snapshot() domain.Snapshot
}

type MessageLog interface {
	Recent(ctx context.Context, limit int) ([]domain.AppMessage, error)
}

type Handler struct {
	Sessions SessionService
	Messages MessageLog
	// Debug is nil outside of development builds.
	Debug     *service.DebugCommands
	Agents    *ws.Hub
	Viewers   *presence.Hub
	Metrics   http.Handler
	StaticDir string
}

func NewHandler(sessions SessionService, agents *ws.Hub, viewers *presence.Hub) *Handler {
	return &Handler{
		Sessions:  sessions,
		Agents:    agents,
		Viewers:   viewers,
		StaticDir: "./static",
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/call", h.StartCall)
		r.Post("/call/leave", h.LeaveCall)
		r.Post("/page", h.LoadPage)
		if h.Messages != nil {
			r.Get("/messages", h.ListMessages)
		}

		if h.Debug != nil {
			r.Get("/debug", h.ListDebugCommands)
			r.Post("/debug/{command}", h.RunDebugCommand)
		}
	})

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Get("/ws/session", h.ServeViewer)
	if h.Agents != nil {
		r.Get("/ws/agent", h.ServeAgent)
	}

	fs := http.FileServer(http.Dir(h.StaticDir))
	r.Handle("/*", fs)

	return r
}
