package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/fleetmesh/fleetmesh/internal/agent"
	"github.com/fleetmesh/fleetmesh/internal/agent/actions"
	"github.com/fleetmesh/fleetmesh/internal/commands"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Fleetmesh Agent", "version", AppVersion, "node_id", config.Node.NodeID)

	if len(config.Controller.Endpoints) == 0 {
		slog.Error("No controller endpoints configured")
		os.Exit(1)
	}
	if config.Node.NodeID == "" {
		slog.Error("Node ID not configured")
		os.Exit(1)
	}

	transport := agent.NewTransport(config.Controller.Endpoints, config.Controller.InsecureSkipVerify, agent.RetryPolicy{
		MaxAttempts:    config.Controller.MaxAttempts,
		BackoffBase:    time.Duration(config.Controller.BackoffBaseMs) * time.Millisecond,
		RequestTimeout: time.Duration(config.Controller.RequestTimeoutSeconds) * time.Second,
	})

	registry := actions.NewRegistry()
	registry.Register(commands.TypePing, actions.Ping())
	registry.Register(commands.TypeReloadConfig, actions.ReloadConfig(ReloadConfig))
	registry.Register(commands.TypeUpdateConfig, actions.UpdateConfig(viper.ConfigFileUsed()))
	registry.Register(commands.TypeCustom, actions.RunScript(config.Agent.Scripts,
		time.Duration(config.Agent.ScriptTimeoutSeconds)*time.Second))

	runner := agent.NewRunner(agent.Config{
		NodeID:            config.Node.NodeID,
		Name:              config.Node.Name,
		Description:       config.Node.Description,
		NodeType:          config.Node.NodeType,
		HeartbeatInterval: time.Duration(config.Agent.HeartbeatIntervalSeconds) * time.Second,
		StatePath:         config.Agent.StatePath,
	}, transport, registry)
	registry.Register(commands.TypeChangeRole, actions.ChangeRole(runner.ApplyRole))

	slog.Info("Command handlers registered", "types", registry.Types())

	if err := runner.Start(); err != nil {
		slog.Error("Failed to start agent runner", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	slog.Info("Received shutdown signal", "signal", sig)

	if err := runner.Stop(); err != nil {
		slog.Error("Agent runner stop error", "error", err)
	}
	slog.Info("Shutdown complete")
}
