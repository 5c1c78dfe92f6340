// Package composition assembles every component into a running
// Container: it is the only place concrete constructors from the other
// internal packages are called side by side, replacing the module-level
// singletons the teacher's CLI entrypoint otherwise relies on.
package composition

import (
	"context"
	"fmt"
	"time"

	"github.com/desktopai/runcontrol/internal/bridge"
	"github.com/desktopai/runcontrol/internal/broadcast"
	"github.com/desktopai/runcontrol/internal/config"
	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/durablestore"
	"github.com/desktopai/runcontrol/internal/executor"
	"github.com/desktopai/runcontrol/internal/gateway"
	"github.com/desktopai/runcontrol/internal/httpapi"
	"github.com/desktopai/runcontrol/internal/logging"
	"github.com/desktopai/runcontrol/internal/metrics"
	"github.com/desktopai/runcontrol/internal/orchestrator"
	"github.com/desktopai/runcontrol/internal/planner"
	"github.com/desktopai/runcontrol/internal/runner"
	"github.com/desktopai/runcontrol/internal/statestore"
)

// Container holds every constructed component and the wiring between
// them. Its exported fields are read by cmd/desktopai-server to mount
// the HTTP router and the collector gateway.
type Container struct {
	Logger  logging.Logger
	Config  config.Config
	Durable *durablestore.Store

	StateStore   *statestore.Store
	Bridge       *bridge.Bridge
	Executor     executor.Executor
	Hub          *broadcast.Hub
	Orchestrator *orchestrator.Orchestrator
	Runner       *runner.Runner
	Gateway      *gateway.Gateway
	Router       *httpapi.RouterDeps
}

// Build constructs every component from cfg and hydrates orchestrator
// and runner state from the durable store before returning. The caller
// is expected to mount Router and Gateway onto an HTTP server and begin
// accepting traffic only after Build returns successfully.
func Build(cfg config.Config, logger logging.Logger) (*Container, error) {
	logger = logging.OrNop(logger)

	durable, err := durablestore.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	state := statestore.New()

	cmdBridge := bridge.New(logger)

	execCfg := executor.FactoryConfig{
		Mode:                 cfg.ActionExecutorMode,
		BridgeTimeout:        cfg.ExecutorBridgeTimeout,
		Bridge:               &meteredBridge{inner: cmdBridge},
		BrowserDebugEndpoint: cfg.BrowserCDPEndpoint,
		Logger:               logger,
	}
	exec, err := executor.Build(execCfg)
	if err != nil {
		return nil, fmt.Errorf("build action executor: %w", err)
	}

	hub := broadcast.New(broadcast.Config{
		MaxConnections: cfg.BroadcastMaxConnections,
		SendTimeout:    cfg.BroadcastSendTimeout,
		Logger:         logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Executor:   exec,
		StateStore: state,
		RetryCount: cfg.ExecutorRetryCount,
		RetryDelay: cfg.ExecutorRetryDelay,
		OnUpdate:   taskUpdateHandler(durable, hub),
		Logger:     logger,
	})

	run := runner.New(runner.Config{
		Orchestrator: orch,
		Planner:      planner.NewDeterministic(),
		AgentLogCap:  cfg.RunAgentLogCap,
		OnUpdate:     runUpdateHandler(durable, hub),
		Logger:       logger,
	})

	gw := gateway.New(gateway.Config{
		Bridge:       cmdBridge,
		StateStore:   state,
		BroadcastHub: hub,
		DurableStore: durable,
		Logger:       logger,
	})

	orch.HydrateTasks(durable.LoadedTasks())
	run.HydrateRuns(durable.LoadedRuns())

	routerDeps := httpapi.RouterDeps{
		Tasks:     orch,
		Runs:      run,
		Hub:       hub,
		Collector: gw,
		Logger:    logger,
	}

	return &Container{
		Logger:       logger,
		Config:       cfg,
		Durable:      durable,
		StateStore:   state,
		Bridge:       cmdBridge,
		Executor:     exec,
		Hub:          hub,
		Orchestrator: orch,
		Runner:       run,
		Gateway:      gw,
		Router:       &routerDeps,
	}, nil
}

// taskUpdateHandler persists every task transition and fans it out to
// the Broadcast Hub, recording the resulting status in metrics.
func taskUpdateHandler(durable *durablestore.Store, hub *broadcast.Hub) orchestrator.UpdateFunc {
	return func(task *domain.TaskRecord) {
		durable.UpsertTask(task)
		metrics.TaskTransitions.WithLabelValues(string(task.Status)).Inc()
		hub.BroadcastJSON(map[string]any{"type": "task", "task": task})
		metrics.BroadcastSubscribers.Set(float64(hub.Count()))
	}
}

// runUpdateHandler mirrors taskUpdateHandler for autonomy run records.
func runUpdateHandler(durable *durablestore.Store, hub *broadcast.Hub) runner.UpdateFunc {
	return func(run *domain.AutonomyRunRecord) {
		durable.UpsertRun(run)
		metrics.RunTransitions.WithLabelValues(string(run.Status)).Inc()
		hub.BroadcastJSON(map[string]any{"type": "run", "run": run})
	}
}

// Shutdown drains in-flight runner workers (up to grace), waits for
// outstanding update callbacks to finish, and closes the durable store.
func (c *Container) Shutdown(ctx context.Context) {
	c.Runner.Shutdown(ctx, c.Config.ShutdownGrace)
	c.Runner.DrainUpdates()
	c.Orchestrator.DrainUpdates()
	if err := c.Durable.Close(); err != nil {
		c.Logger.Warn("close durable store: %v", err)
	}
}

// meteredBridge wraps the Command Bridge to observe round-trip latency
// in the runcontrol_bridge_round_trip_seconds histogram without changing
// the bridge package's own public surface.
type meteredBridge struct {
	inner *bridge.Bridge
}

func (m *meteredBridge) Execute(ctx context.Context, action string, parameters map[string]any, timeout time.Duration) (map[string]any, error) {
	start := time.Now()
	result, err := m.inner.Execute(ctx, action, parameters, timeout)
	label := "true"
	if err != nil {
		label = "false"
	}
	metrics.BridgeRoundTrip.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return result, err
}

func (m *meteredBridge) Status() bridge.Status {
	return m.inner.Status()
}
