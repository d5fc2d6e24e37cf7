package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/fleetmesh/fleetmesh/internal/api/http"
	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/auth"
	"github.com/fleetmesh/fleetmesh/internal/commands"
	"github.com/fleetmesh/fleetmesh/internal/configs"
	"github.com/fleetmesh/fleetmesh/internal/db"
	"github.com/fleetmesh/fleetmesh/internal/nodes"
	"github.com/fleetmesh/fleetmesh/internal/security"
	"github.com/fleetmesh/fleetmesh/internal/store/postgres"
	"github.com/fleetmesh/fleetmesh/internal/users"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Fleetmesh Controller", "version", AppVersion)

	if err := db.RunMigrations(config.Database.Url, config.Database.Schema); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.InitDB(ctx, config.Database.Url, config.Database.Schema)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	stores := postgres.NewStores(pool)

	auditor := audit.NewRecorder(stores.Audit)
	userService := users.NewService(stores.Users)

	// The guards live for the whole process: the auth service writes
	// them, the API reads them through the auth service.
	lockout := security.NewLockoutGuard()
	revocation := security.NewRevocationGuard()
	authService := auth.NewService(userService, lockout, revocation, auditor, config.Auth)

	var nodeService *nodes.Service
	commandService := commands.NewService(stores.Commands,
		commands.NodeDirectoryFunc(func(ctx context.Context, nodeID string) (bool, error) {
			return nodeService.NodeExists(ctx, nodeID)
		}))
	heartbeatTimeout := time.Duration(config.Controller.HeartbeatTimeoutSeconds) * time.Second
	nodeService = nodes.NewService(stores.Nodes, commandService, heartbeatTimeout)

	configService := configs.NewService(stores.Configs)

	services := &internalhttp.Services{
		Auth:     authService,
		Users:    userService,
		Nodes:    nodeService,
		Commands: commandService,
		Configs:  configService,
		Audit:    auditor,
		Version:  AppVersion,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweeps(sweepCtx, commandService, nodeService)
	}()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	wg.Wait()
	slog.Info("Shutdown complete")
}

// runSweeps periodically times out overdue commands and demotes silent
// nodes to OFFLINE.
func runSweeps(ctx context.Context, commandService *commands.Service, nodeService *nodes.Service) {
	interval := time.Duration(config.Controller.SweepIntervalSeconds) * time.Second
	horizon := time.Duration(config.Controller.CommandTimeoutSeconds) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := commandService.TimeoutOverdue(ctx, horizon); err != nil {
				slog.Error("Command timeout sweep failed", "error", err)
			}
			if _, err := nodeService.MarkStale(ctx); err != nil {
				slog.Error("Stale node sweep failed", "error", err)
			}
		}
	}
}
