package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/callctl/internal/adapter/driven/callclient/memory"
	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/presence"
	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callctl/internal/adapter/driven/metrics/prom"
	repo "github.com/Wyydra/callctl/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/callctl/internal/adapter/driven/provisioner/daily"
	"github.com/Wyydra/callctl/internal/adapter/driven/provisioner/static"
	handler "github.com/Wyydra/callctl/internal/adapter/driving/http"
	"github.com/Wyydra/callctl/internal/config"
	"github.com/Wyydra/callctl/internal/core/port"
	"github.com/Wyydra/callctl/internal/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	level, err := cfg.Level()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	provisioner, err := newProvisioner(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create room provisioner")
	}

	agents := ws.NewHub()
	viewers := presence.NewHub()

	var factory port.CallClientFactory = agents
	if cfg.CallClient == config.CallClientMemory {
		factory = memory.NewFactory(memory.Config{JoinDelay: cfg.SimJoinDelay})
	}

	messages := service.NewMessageService(repo.NewMessageRepository(repo.DefaultCapacity), viewers)

	joinOpts, err := cfg.JoinOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid join options")
	}
	reg := prometheus.NewRegistry()
	sessions := service.NewSessionController(provisioner, factory,
		service.SessionConfig{
			JoinOptions:    joinOpts,
			ReleaseTimeout: cfg.ReleaseTimeout,
		},
		service.WithAddressBar(viewers),
		service.WithObserver(viewers),
		service.WithMessageSink(messages),
		service.WithMetrics(prom.New(reg)),
	)

	h := handler.NewHandler(sessions, agents, viewers)
	h.Messages = messages
	h.StaticDir = cfg.StaticDir
	h.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	if cfg.Dev {
		h.Debug = service.NewDebugCommands(sessions)
		log.Warn().Strs("commands", h.Debug.Names()).Msg("Debug commands enabled")
	}

	go agents.Run()
	go viewers.Run()
	go sessions.Run()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("provisioner", cfg.Provisioner).
			Str("call_client", cfg.CallClient).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ReleaseTimeout+time.Second)
	defer closeCancel()
	if err := sessions.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("Call session did not shut down cleanly")
	}

	agents.Stop()
	viewers.Stop()
	log.Info().Msg("Server exited")
}

func newProvisioner(cfg config.Config) (port.RoomProvisioner, error) {
	if cfg.Provisioner == config.ProvisionerDaily {
		p, err := daily.NewProvisioner(daily.Config{
			APIBase:    cfg.DailyAPIBase,
			APIKey:     cfg.DailyAPIKey,
			RoomTTL:    cfg.RoomTTL,
			MaxRetries: cfg.ProvisionRetries,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := static.NewProvisioner(cfg.StaticRoomURL)
	if err != nil {
		return nil, err
	}
	return p, nil
}
