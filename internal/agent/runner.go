package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fleetmesh/fleetmesh/internal/agent/actions"
	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
)

const (
	initialDelay  = 1 * time.Second
	maxDelay      = 30 * time.Second
	backoffFactor = 2

	// maxHeartbeatFailures is how many consecutive heartbeat failures the
	// runner tolerates before it assumes its token or registration is
	// gone and starts over.
	maxHeartbeatFailures = 3
)

// Config is everything the runner needs to represent one node.
type Config struct {
	NodeID            string
	Name              string
	Description       string
	NodeType          string
	HeartbeatInterval time.Duration
	StatePath         string
}

// Runner drives the agent's life against the controller: register, then
// heartbeat on an interval, executing whatever commands each heartbeat
// brings back. Registration failures back off with capped doubling;
// repeated heartbeat failures drop the runner back to registration.
type Runner struct {
	config    Config
	transport *Transport
	registry  *actions.Registry

	registerDelay time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state *State
}

func NewRunner(config Config, transport *Transport, registry *actions.Registry) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		config:        config,
		transport:     transport,
		registry:      registry,
		registerDelay: initialDelay,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (r *Runner) Start() error {
	state, err := LoadState(r.config.StatePath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	if state.AuthToken != "" && state.NodeID == r.config.NodeID {
		slog.Info("Resuming with persisted token", "node_id", r.config.NodeID)
		r.transport.SetToken(state.AuthToken)
	}

	go r.run()
	return nil
}

func (r *Runner) Stop() error {
	slog.Info("Stopping agent runner")
	close(r.stopCh)
	r.cancel()
	<-r.doneCh
	slog.Info("Agent runner stopped")
	return nil
}

func (r *Runner) run() {
	defer close(r.doneCh)

	// A persisted token lets the runner skip straight to heartbeats; the
	// first 401 sends it back through registration.
	registered := r.transport.Token() != ""

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		if !registered {
			if err := r.register(); err != nil {
				slog.Error("Registration failed", "error", err, "retry_in", r.registerDelay)
				if !r.sleep(r.registerDelay) {
					return
				}
				r.increaseRegisterDelay()
				continue
			}
			r.registerDelay = initialDelay
			registered = true
		}

		if !r.heartbeatLoop() {
			return
		}
		// The heartbeat loop only exits on repeated failure; start over.
		registered = false
	}
}

// heartbeatLoop sends heartbeats on the configured interval until
// maxHeartbeatFailures consecutive failures or an auth rejection.
// Returns false when the runner is shutting down.
func (r *Runner) heartbeatLoop() bool {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := r.heartbeat(); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				slog.Warn("Controller rejected token, re-registering")
				return !r.stopped()
			}
			failures++
			slog.Error("Heartbeat failed", "error", err, "consecutive_failures", failures)
			if failures >= maxHeartbeatFailures {
				slog.Warn("Too many heartbeat failures, re-registering")
				return !r.stopped()
			}
		} else {
			failures = 0
		}

		select {
		case <-r.stopCh:
			return false
		case <-ticker.C:
		}
	}
}

func (r *Runner) register() error {
	slog.Info("Registering with controller", "node_id", r.config.NodeID, "endpoint", r.transport.Endpoint())

	var resp dto.RegisterNodeResponse
	err := r.transport.Do(r.ctx, http.MethodPost, "/api/v1/nodes/register", dto.RegisterNodeRequest{
		NodeID:      r.config.NodeID,
		Name:        r.config.Name,
		Description: r.config.Description,
		NodeType:    r.config.NodeType,
	}, &resp)
	if err != nil {
		return err
	}

	r.transport.SetToken(resp.AuthToken)
	r.persistState(func(s *State) {
		s.NodeID = r.config.NodeID
		s.AuthToken = resp.AuthToken
		s.RegisteredAt = time.Now().UTC()
	})

	slog.Info("Registered with controller", "node_id", r.config.NodeID)
	return nil
}

func (r *Runner) heartbeat() error {
	metrics := CollectMetrics(r.ctx)

	var resp dto.HeartbeatResponse
	err := r.transport.Do(r.ctx, http.MethodPost, "/api/v1/nodes/heartbeat", dto.HeartbeatRequest{
		CPUUsage:    metrics.CPUUsage,
		MemoryUsage: metrics.MemoryUsage,
		DiskUsage:   metrics.DiskUsage,
		Custom:      metrics.Custom,
	}, &resp)
	if err != nil {
		return err
	}

	for i := range resp.DueCommands {
		r.execute(&resp.DueCommands[i])
	}
	return nil
}

// execute acknowledges one command, runs its handler and reports the
// outcome. Report failures are logged and dropped; the controller's
// timeout sweep covers commands whose reports never arrive.
func (r *Runner) execute(cmd *dto.CommandResponse) {
	slog.Info("Executing command", "command_id", cmd.ID, "type", cmd.Type)

	r.report(cmd.ID, "acknowledged", nil, "")

	result, err := r.registry.Execute(r.ctx, cmd.Type, cmd.Payload)
	if err != nil {
		slog.Error("Command failed", "command_id", cmd.ID, "type", cmd.Type, "error", err)
		r.report(cmd.ID, "failed", nil, err.Error())
		return
	}

	slog.Info("Command completed", "command_id", cmd.ID, "type", cmd.Type)
	r.report(cmd.ID, "completed", result, "")
}

func (r *Runner) report(commandID, status string, result map[string]any, errMsg string) {
	err := r.transport.Do(r.ctx, http.MethodPost, "/api/v1/commands/"+commandID+"/result", dto.ReportResultRequest{
		Status: status,
		Result: result,
		Error:  errMsg,
	}, nil)
	if err != nil {
		slog.Error("Failed to report command status", "command_id", commandID, "status", status, "error", err)
	}
}

// ApplyRole persists a controller-assigned role; wired into the
// change_role action.
func (r *Runner) ApplyRole(role string) error {
	return r.persistState(func(s *State) {
		s.Role = role
	})
}

func (r *Runner) persistState(mutate func(*State)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = &State{}
	}
	mutate(r.state)
	if err := SaveState(r.config.StatePath, r.state); err != nil {
		slog.Error("Failed to persist agent state", "error", err)
		return err
	}
	return nil
}

func (r *Runner) increaseRegisterDelay() {
	r.registerDelay *= backoffFactor
	if r.registerDelay > maxDelay {
		r.registerDelay = maxDelay
	}
}

func (r *Runner) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-r.stopCh:
		return false
	}
}

func (r *Runner) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}
