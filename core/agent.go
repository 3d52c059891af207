package core

import (
	"fmt"

	"github.com/google/uuid"
)

// BaseAgent carries the identity and ambient dependencies shared by every
// agent role. Roles embed it and add their own state and event handling.
type BaseAgent struct {
	ID        string
	Name      string
	Logger    Logger
	Telemetry Telemetry
}

// NewBaseAgent creates an agent with a generated ID and no-op logging and
// telemetry.
func NewBaseAgent(name string) *BaseAgent {
	if name == "" {
		name = "mas-agent"
	}
	return &BaseAgent{
		ID:        fmt.Sprintf("%s-%s", name, uuid.New().String()[:8]),
		Name:      name,
		Logger:    &NoOpLogger{},
		Telemetry: &NoOpTelemetry{},
	}
}

// GetID returns the agent ID.
func (b *BaseAgent) GetID() string {
	return b.ID
}

// GetName returns the agent name.
func (b *BaseAgent) GetName() string {
	return b.Name
}

// SetLogger installs logger scoped to the agent/<name> component.
func (b *BaseAgent) SetLogger(logger Logger) {
	b.Logger = ComponentLogger(logger, "agent/"+b.Name)
}

// SetTelemetry installs t, falling back to a no-op implementation for nil.
func (b *BaseAgent) SetTelemetry(t Telemetry) {
	b.Telemetry = TelemetryOrNoOp(t)
}
