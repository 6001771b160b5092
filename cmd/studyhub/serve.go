package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"studyhub/backend/internal/broadcast"
	"studyhub/backend/internal/config"
	"studyhub/backend/internal/handler"
	"studyhub/backend/internal/lifecycle"
	"studyhub/backend/internal/middleware"
	"studyhub/backend/internal/model"
	"studyhub/backend/internal/router"
	"studyhub/backend/internal/service"
	"studyhub/backend/internal/timer"
	"studyhub/backend/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and timer engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(a.cfg)
		},
	}
	cmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	_ = a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracer, err := tracing.NewProvider(ctx, tracing.Config{
		Exporter: cfg.TracingExporter,
		Endpoint: cfg.TracingEndpoint,
	})
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	origins := middleware.NewOriginPolicy(cfg.CORSOrigins)
	hubCfg := broadcast.DefaultHubConfig()
	hubCfg.CheckOrigin = origins.CheckWebSocket
	hub := broadcast.NewHub(hubCfg)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var publisher timer.Publisher = hub
	var nc *nats.Conn
	var bridge *broadcast.Bridge
	if cfg.NATSURL != "" {
		nc, err = broadcast.ConnectNATS(broadcast.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			Name:          "studyhub-timer",
			MaxReconnects: -1,
		})
		if err != nil {
			return err
		}
		bridge = broadcast.NewBridge(nc, cfg.NATSSubjectPrefix, hub)
		if err := bridge.Start(); err != nil {
			nc.Close()
			return err
		}
		publisher = broadcast.NewNATSPublisher(nc, cfg.NATSSubjectPrefix)
	}

	clock := clockwork.NewRealClock()
	writerCfg := timer.DefaultWriterConfig()
	writerCfg.Debounce = cfg.PersistDebounce
	writerCfg.MaxAttempts = cfg.PersistMaxAttempts
	writerCfg.InitialBackoff = cfg.PersistBackoff
	writer := timer.NewWriter(st.sessions, clock, writerCfg)

	engineCfg := timer.DefaultConfig()
	engineCfg.Durations = model.Durations{
		FocusSeconds:      cfg.FocusSeconds,
		ShortBreakSeconds: cfg.ShortBreakSeconds,
		LongBreakSeconds:  cfg.LongBreakSeconds,
		TotalSessions:     cfg.TotalSessions,
	}
	engine := timer.NewEngine(engineCfg, st.sessions, writer, publisher, clock)

	if _, err := engine.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("timer recovery failed, continuing with lazy hydration")
	}

	authService := service.NewAuthService(st.users, cfg.JWTSecret, cfg.TokenTTL, cfg.AdminEmails)
	authorizer := service.NewRoomAuthorizer(st.rooms, st.users, cfg.AuthCacheTTL)
	timerService := service.NewTimerService(engine, authorizer, st.sessions, tracer.Tracer())
	roomService := service.NewRoomService(st.rooms, engine, authorizer, hub)

	if cfg.DBDriver == config.DriverPostgres {
		listener, err := lifecycle.NewListener(lifecycle.Config{DatabaseURL: cfg.DatabaseURL}, engine, roomService.ForgetConnections)
		if err != nil {
			log.Error().Err(err).Msg("room lifecycle listener disabled")
		} else {
			go func() {
				if err := listener.Start(ctx); err != nil {
					log.Error().Err(err).Msg("room lifecycle listener stopped")
				}
			}()
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	routes := router.New(router.Deps{
		AuthService:          authService,
		AuthHandler:          handler.NewAuthHandler(authService),
		RoomHandler:          handler.NewRoomHandler(roomService),
		TimerHandler:         handler.NewTimerHandler(timerService),
		WSHandler:            handler.NewWSHandler(timerService, hub),
		Timers:               engine,
		Origins:              origins,
		ControlRatePerSecond: cfg.ControlRatePerSecond,
		ControlRateBurst:     cfg.ControlRateBurst,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", cfg.DBDriver).Bool("nats", nc != nil).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("timer engine shutdown failed")
	}
	if bridge != nil {
		if err := bridge.Stop(); err != nil {
			log.Error().Err(err).Msg("stop NATS bridge")
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Error().Err(err).Msg("drain NATS connection")
		}
	}
	stopHub()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}

	log.Info().Msg("studyhub shutdown complete")
	return nil
}
