package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/config"
	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/handler"
	natsclient "github.com/capitalize-ai/operator-console/internal/nats"
	"github.com/capitalize-ai/operator-console/internal/realtime"
	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/tracing"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync session and the local API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cmd.Context(), cfg, log)
	},
}

func serve(parent context.Context, cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting operator console",
		zap.String("operator_id", cfg.OperatorID),
		zap.String("events_transport", cfg.EventsTransport),
	)

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "operator-console", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	session := console.New(newBackend(cfg, log), console.Options{
		OperatorID:         cfg.OperatorID,
		PersistRead:        cfg.PersistReadState,
		AppendToBackground: cfg.AppendToBackground,
		MessagePageSize:    cfg.MessagePageSize,
		ClosedPageSize:     cfg.ClosedPageSize,
		TaskPollInterval:   cfg.PollInterval,
	}, log)
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	transport, checks, closeTransport, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}

	var live atomic.Bool
	live.Store(true)
	checks["events"] = live.Load
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer live.Store(false)
		if err := session.Run(ctx, transport); err != nil {
			log.Error("live events stopped", zap.Error(err))
			return
		}
		log.Info("live events closed")
	}()
	// The router must be done before the session closes.
	defer func() {
		closeTransport()
		<-runDone
	}()

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(session, handler.RouterConfig{
			AllowedOrigins:    cfg.AllowedOrigins,
			JWTSecret:         cfg.JWTSecret,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			ReadyChecks:       checks,
		}, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// openTransport connects the live event source selected by EVENTS_TRANSPORT,
// along with any readiness checks it contributes.
func openTransport(ctx context.Context, cfg *config.Config, log *logger.Logger) (realtime.Transport, map[string]handler.ReadyCheck, func(), error) {
	checks := map[string]handler.ReadyCheck{}

	switch cfg.EventsTransport {
	case config.TransportNATS:
		client, err := connectNATS(ctx, cfg, log)
		if err != nil {
			return nil, nil, nil, err
		}
		streams := natsclient.NewStreamManager(client)
		if err := streams.EnsureStream(ctx); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
		feed, err := streams.Subscribe(ctx, cfg.OperatorID)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		checks["nats"] = client.IsConnected
		return feed, checks, func() {
			feed.Close()
			client.Close()
		}, nil

	default:
		ws, err := realtime.DialWebSocket(ctx, realtime.WSConfig{
			URL:        cfg.EventsURL,
			OperatorID: cfg.OperatorID,
			Token:      cfg.OperatorToken,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("event connection established", zap.String("url", cfg.EventsURL))
		return ws, checks, func() { ws.Close() }, nil
	}
}

func connectNATS(ctx context.Context, cfg *config.Config, log *logger.Logger) (*natsclient.Client, error) {
	return natsclient.Connect(ctx, natsclient.Config{
		URL:        cfg.NATSURL,
		CAFile:     cfg.NATSCAFile,
		CertFile:   cfg.NATSCertFile,
		KeyFile:    cfg.NATSKeyFile,
		Token:      cfg.NATSToken,
		OperatorID: cfg.OperatorID,
	}, log)
}
