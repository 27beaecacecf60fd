package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/discute/adapters/sqlite"
	"github.com/satriahrh/discute/internal/api"
	"github.com/satriahrh/discute/internal/auth"
	"github.com/satriahrh/discute/internal/config"
	"github.com/satriahrh/discute/internal/telemetry"
	"github.com/satriahrh/discute/internal/web"
	"github.com/satriahrh/discute/internal/websocket"
	"github.com/satriahrh/discute/usecase"
)

func newServeCommand(v *viper.Viper, flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the practice server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&flags.Addr, "addr", "", "listen address (default :8080)")
	v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// server is the wired application
type server struct {
	echo    *echo.Echo
	hub     *websocket.Hub
	cleanup *websocket.SessionCleanupService
	closers closers
}

// buildServer wires stores, providers and use cases behind the HTTP routes
func buildServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		srv.closers.Close()
		return nil, err
	}

	store, err := sqlite.NewClient(sqlite.Options{Path: cfg.Store.Path, ReadOnly: true, Quiet: !cfg.Log.Development}, logger)
	if err != nil {
		return fail(err)
	}
	srv.closers = append(srv.closers, store)
	prompts := usecase.NewPromptManager(sqlite.NewPromptRepository(store), logger)

	sessions, audio, sessionCloser, err := newSessionStores(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if sessionCloser != nil {
		srv.closers = append(srv.closers, sessionCloser)
	}

	model, err := newLanguageModel(ctx, cfg.LLM, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create LLM client: %w", err))
	}
	recognizer, sttCloser, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create speech-to-text client: %w", err))
	}
	if sttCloser != nil {
		srv.closers = append(srv.closers, sttCloser)
	}
	speaker, err := newTextToSpeech(cfg.TTS, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create text-to-speech client: %w", err))
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fail(err)
	}

	chatService := usecase.NewChatService(model, prompts, logger)
	conversation := usecase.NewConversationService(sessions, audio, prompts, chatService, recognizer, speaker, usecase.ConversationConfig{
		Language:       cfg.Sessions.Language,
		MaxAudioBytes:  cfg.Sessions.MaxAudioBytes,
		DefaultVoiceID: cfg.TTS.VoiceID,
	}, logger)

	srv.hub = websocket.NewHub(conversation, websocket.HubConfig{AllowedOrigins: cfg.Server.AllowedOrigins}, logger)
	srv.cleanup = websocket.NewSessionCleanupService(conversation, cfg.Sessions.CleanupInterval, cfg.Sessions.MaxIdle, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, api.APIKeyHeader},
	}))
	e.Use(requestLogger(logger))

	api.InitRoutes(e, api.Dependencies{
		Conversation:  conversation,
		Prompts:       prompts,
		Tokens:        tokens,
		Hub:           srv.hub,
		Assets:        web.Assets(),
		MaxAudioBytes: cfg.Sessions.MaxAudioBytes,
	}, logger)
	srv.echo = e

	return srv, nil
}

func allowOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// requestLogger logs one line per request with zap
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request", fields...)
			return nil
		},
	})
}

// runServer serves until ctx is cancelled, then drains connections
func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.closers.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.hub.Run(gctx) })
	g.Go(func() error { return srv.cleanup.Run(gctx) })
	g.Go(func() error {
		logger.Info("Server started", zap.String("addr", cfg.Server.Addr))
		if err := srv.echo.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exited")
	return nil
}
