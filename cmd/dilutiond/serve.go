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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dilution-ops-backend/internal/api"
	"dilution-ops-backend/internal/backend"
	"dilution-ops-backend/internal/console"
	"dilution-ops-backend/internal/db"
	"dilution-ops-backend/internal/faceid"
	"dilution-ops-backend/internal/notification"
	"dilution-ops-backend/internal/robot"
	"dilution-ops-backend/internal/session"
	"dilution-ops-backend/internal/store"
)

const sessionSweepInterval = 15 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the robot task monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer zap.S().Sync() //nolint:errcheck

		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		appStore := store.NewGormStore(gormDB)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		backendClient := backend.New(cfg.Endpoints.BackendURL, cfg.Endpoints.Timeout)
		faceClient := faceid.New(cfg.Endpoints.FaceIDURL, cfg.Endpoints.Timeout)
		robotClient := robot.New(cfg.Endpoints.RobotURL, cfg.Endpoints.Timeout)

		sessions := session.NewManager(backendClient, appStore, cfg.Session.TTL)
		consoles := console.NewRegistry(ctx, console.Deps{
			Gateway:       backendClient,
			Device:        faceClient,
			Robot:         robotClient,
			PollInterval:  cfg.Gate.PollInterval,
			DismissDelay:  cfg.Gate.DismissDelay,
			RobotInterval: cfg.Robot.PollInterval,
		}, cfg.Session.ConsoleIdle)
		defer consoles.Close()

		var webpushOptions *webpush.Options
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			zap.S().Warn("VAPID keys are not configured; robot task notifications are disabled")
		} else {
			webpushOptions = &webpush.Options{
				VAPIDPublicKey:  cfg.Push.PublicKey,
				VAPIDPrivateKey: cfg.Push.PrivateKey,
				Subscriber:      cfg.Push.Subject,
				TTL:             cfg.Push.TTL,
			}
			pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
			monitor := robot.NewMonitor(&cfg.Robot, robotClient, appStore, pool)
			go monitor.Run(ctx)
		}

		go sweepSessions(ctx, appStore)

		router := api.NewRouter(api.Deps{
			Store:       appStore,
			Sessions:    sessions,
			Consoles:    consoles,
			References:  backendClient,
			Faces:       faceClient,
			Passthrough: backendClient,
			Webpush:     webpushOptions,
		}, cfg.Server)
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.S().Infof("HTTP server starting on port %d", cfg.Server.Port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			zap.S().Info("Shutdown signal received, stopping services...")
		case err := <-errCh:
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server Shutdown: %w", err)
		}

		zap.S().Info("Server gracefully stopped")
		return nil
	},
}

// sweepSessions deletes expired sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, st store.Store) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredSessions(ctx, time.Now().UTC())
			if err != nil {
				zap.S().Warnf("session sweep failed: %v", err)
				continue
			}
			if n > 0 {
				zap.S().Infof("removed %d expired sessions", n)
			}
		}
	}
}
