package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ktg0215/Management-sub000/internal/config"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/handler"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/usecase"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/infrastructure"
	transport "github.com/ktg0215/Management-sub000/internal/modules/realtime/interface"
	"github.com/ktg0215/Management-sub000/internal/platform/broker"
	"github.com/ktg0215/Management-sub000/internal/platform/storage/sqlite"
	"github.com/ktg0215/Management-sub000/internal/shared/auth"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server and event consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.New(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	directory := sqlite.NewCachedDirectory(db, cfg.Database.CacheTTL)

	validator, err := auth.NewJWTValidatorWithPublicKey(cfg.Security.JWTSecret, cfg.Security.JWTPublicKey)
	if err != nil {
		return err
	}

	hub := infrastructure.NewHub(infrastructure.WithHeartbeatTimeout(cfg.Websocket.HeartbeatTimeout))
	effects := usecase.NewSideEffects(0)
	broadcastUC := usecase.NewBroadcastUseCase(hub)
	translator := usecase.NewEventTranslator(broadcastUC, directory, db, effects)

	registry := infrastructure.NewHandlerRegistry()
	for _, topic := range cfg.Kafka.Topics {
		registry.Register(handler.NewDomainEventHandler(topic, translator))
	}
	slog.Info("kafka config resolved", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("group", cfg.Kafka.GroupID), slog.Any("topics", registry.Topics()))

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(log.Writer())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	transport.RegisterRoutes(e, transport.Routes{
		Hub:        hub,
		Validator:  validator,
		Broadcast:  broadcastUC,
		Translator: translator,
		Client:     clientConfig(cfg.Websocket),
		APIKey:     cfg.Security.AdminAPIKey,
		Database:   db,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server starting", slog.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hub.RunHeartbeatSweeper(gctx, cfg.Websocket.HeartbeatInterval)
		return nil
	})
	g.Go(func() error {
		return broker.RunKafkaConsumers(gctx, registry, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Stop accepting first so no connection registers on a drained hub.
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", slog.Any("error", err))
		}
		hub.Shutdown()
		return nil
	})

	err = g.Wait()
	// Consumers have returned; late ingress jobs are refused before db.Close.
	effects.Close()
	if err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		return err
	}
	slog.Info("server stopped")
	return nil
}

func clientConfig(ws config.WebsocketConfig) infrastructure.ClientConfig {
	return infrastructure.ClientConfig{
		SendBuffer:        ws.SendBuffer,
		ReadLimit:         ws.ReadLimit,
		MessagesPerSecond: ws.MessagesPerSecond,
		MessageBurst:      ws.MessageBurst,
	}
}
