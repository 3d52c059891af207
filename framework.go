// Package mas wires the event bus, agent roles, capacity guard and
// resilient messaging into one manufacturing coordination system.
// Most programs only need this package:
//
//	sys, err := mas.NewSystem(mas.WithName("plant-a"), mas.WithMaxCapacity(50))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Shutdown(context.Background())
//
// The building blocks live in their own packages for finer control:
//   - github.com/itsneelabh/gomind-mas/bus - subjects and subscribers
//   - github.com/itsneelabh/gomind-mas/agents - order, resource and scheduler roles
//   - github.com/itsneelabh/gomind-mas/scheduling - capacity validation and planning
//   - github.com/itsneelabh/gomind-mas/resilience - exponential backoff
//   - github.com/itsneelabh/gomind-mas/messaging - agent-to-agent delivery
//   - github.com/itsneelabh/gomind-mas/telemetry - OpenTelemetry export
package mas

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/itsneelabh/gomind-mas/agents"
	"github.com/itsneelabh/gomind-mas/bus"
	"github.com/itsneelabh/gomind-mas/core"
	"github.com/itsneelabh/gomind-mas/messaging"
	"github.com/itsneelabh/gomind-mas/resilience"
	"github.com/itsneelabh/gomind-mas/scheduling"
	"github.com/itsneelabh/gomind-mas/telemetry"
)

// Re-export core types so callers can stay on one import
type (
	Config       = core.Config
	Option       = core.Option
	Logger       = core.Logger
	Telemetry    = core.Telemetry
	Event        = core.Event
	EventType    = core.EventType
	Payload      = core.Payload
	OrderPayload = core.OrderPayload
	Priority     = core.Priority
	Status       = core.Status
)

// Re-export constants
const (
	EventCapacityCheck = core.EventCapacityCheck
	EventAllocate      = core.EventAllocate
	EventUrgentOrder   = core.EventUrgentOrder

	PriorityLow    = core.PriorityLow
	PriorityMedium = core.PriorityMedium
	PriorityHigh   = core.PriorityHigh

	StatusAvailable = core.StatusAvailable
	StatusBusy      = core.StatusBusy
)

// Re-export configuration options
var (
	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig

	WithName               = core.WithName
	WithRetry              = core.WithRetry
	WithMaxRetryDelay      = core.WithMaxRetryDelay
	WithMaxCapacity        = core.WithMaxCapacity
	WithDeliveryPolicy     = core.WithDeliveryPolicy
	WithStrategy           = core.WithStrategy
	WithJobsFile           = core.WithJobsFile
	WithPlanCron           = core.WithPlanCron
	WithFailureRate        = core.WithFailureRate
	WithMessagingRateLimit = core.WithMessagingRateLimit
	WithLogLevel           = core.WithLogLevel
	WithLogFormat          = core.WithLogFormat
	WithTelemetry          = core.WithTelemetry
	WithConfigFile         = core.WithConfigFile
	WithDevelopmentMode    = core.WithDevelopmentMode
)

// System holds one fully wired coordination core.
type System struct {
	Config    *core.Config
	Logger    core.Logger
	Telemetry core.Telemetry

	Orders    *agents.OrderAgent
	Validator *scheduling.CapacityValidator
	Executor  *resilience.BackoffExecutor
	Link      *messaging.SimulatedLink
	Messenger *messaging.ResilientMessenger
	Strategy  agents.ReoptimizationStrategy
	Jobs      scheduling.JobRepository
	Planner   *scheduling.Planner

	provider *telemetry.Provider

	mu       sync.Mutex
	shutdown bool
}

// NewSystem builds configuration from opts and wires every component.
// Telemetry is only initialised when enabled in the configuration.
func NewSystem(opts ...core.Option) (*System, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	s := &System{
		Config:    cfg,
		Logger:    logger,
		Telemetry: &core.NoOpTelemetry{},
	}

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(context.Background(), cfg.Telemetry,
			telemetry.WithServiceVersion(Version),
			telemetry.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise telemetry: %w", err)
		}
		s.provider = provider
		s.Telemetry = provider
	}

	policy, err := bus.ParseDeliveryPolicy(cfg.Bus.DeliveryPolicy)
	if err != nil {
		return nil, err
	}
	s.Orders = agents.NewOrderAgent(cfg.Name+"-orders",
		bus.WithLogger(logger),
		bus.WithTelemetry(s.Telemetry),
		bus.WithDeliveryPolicy(policy),
	)
	s.Orders.SetLogger(logger)

	if s.Strategy, err = agents.StrategyByName(cfg.Scheduling.Strategy); err != nil {
		return nil, err
	}

	s.Validator, err = scheduling.NewCapacityValidator(cfg.Scheduling.MaxCapacity,
		scheduling.WithLogger(logger),
		scheduling.WithTelemetry(s.Telemetry),
	)
	if err != nil {
		return nil, err
	}

	s.Executor, err = resilience.NewBackoffExecutor(resilience.BackoffConfigFrom(cfg.Resilience.Retry),
		resilience.WithLogger(logger),
		resilience.WithTelemetry(s.Telemetry),
	)
	if err != nil {
		return nil, err
	}

	s.Link, err = messaging.NewSimulatedLink(cfg.Messaging.FailureRate, cfg.Messaging.Seed,
		messaging.WithLinkLogger(logger),
		messaging.WithRateLimit(cfg.Messaging.RateLimit, cfg.Messaging.RateBurst),
	)
	if err != nil {
		return nil, err
	}
	s.Messenger = messaging.NewResilientMessenger(s.Link, s.Executor,
		messaging.WithLogger(logger),
		messaging.WithTelemetry(s.Telemetry),
	)

	if cfg.Scheduling.JobsFile != "" {
		s.Jobs = scheduling.NewFileJobRepository(cfg.Scheduling.JobsFile)
	} else {
		s.Jobs = scheduling.NewMemoryJobRepository()
	}
	s.Planner = scheduling.NewPlanner(scheduling.NewForwardScheduler(s.Jobs).Generate, s.Validator,
		scheduling.WithPlannerLogger(logger),
	)

	logger.Info("System initialised", map[string]interface{}{
		"operation":       "init",
		"name":            cfg.Name,
		"delivery_policy": policy.String(),
		"strategy":        s.Strategy.Name(),
		"max_capacity":    cfg.Scheduling.MaxCapacity,
		"max_attempts":    cfg.Resilience.Retry.MaxAttempts,
		"telemetry":       cfg.Telemetry.Enabled,
	})
	return s, nil
}

func (s *System) attach(agent *core.BaseAgent) {
	agent.SetLogger(s.Logger)
	if s.provider != nil {
		telemetry.EnableTelemetry(agent, s.provider)
	}
}

// NewResourceAgent creates a resource agent and subscribes it to the order stream.
func (s *System) NewResourceAgent(name string) (*agents.ResourceAgent, error) {
	agent := agents.NewResourceAgent(name)
	s.attach(agent.BaseAgent)
	if err := agents.Subscribe(agent, s.Orders); err != nil {
		return nil, err
	}
	return agent, nil
}

// NewSchedulerAgent creates a scheduler agent using the configured strategy
// and subscribes it to the order stream.
func (s *System) NewSchedulerAgent(name string) (*agents.SchedulerAgent, error) {
	agent := agents.NewSchedulerAgent(name, s.Strategy)
	s.attach(agent.BaseAgent)
	if err := agents.Subscribe(agent, s.Orders); err != nil {
		return nil, err
	}
	return agent, nil
}

// SendMessage delivers body to target over the resilient messenger.
func (s *System) SendMessage(ctx context.Context, target, body string) error {
	return s.Messenger.Send(ctx, target, body)
}

// PlanWeek runs one guarded planning pass over the job repository.
func (s *System) PlanWeek(ctx context.Context) (*scheduling.CapacityResult, error) {
	return s.Planner.RunOnce(ctx)
}

// Run starts the planner on the configured cron expression, if any, and
// blocks until ctx is done.
func (s *System) Run(ctx context.Context) error {
	if spec := s.Config.Scheduling.PlanCron; spec != "" {
		if err := s.Planner.Start(ctx, spec); err != nil {
			return fmt.Errorf("failed to start planner: %w", err)
		}
		defer s.Planner.Stop()
	}
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown stops the planner and flushes telemetry. Calling it more than
// once is a no-op.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	s.Planner.Stop()

	var errs []error
	if s.provider != nil {
		if err := s.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	s.Logger.Info("System shut down", map[string]interface{}{
		"operation": "shutdown",
		"name":      s.Config.Name,
	})
	return errors.Join(errs...)
}
