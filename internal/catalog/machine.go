package catalog

import (
	"sync"
	"time"

	"github.com/vinayprograms/taskforce/internal/protocol"
)

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Machine is the state of one task. Every task owns its own Machine.
type Machine struct {
	mu      sync.RWMutex
	current State
	history []Transition
}

// NewMachine returns a machine in the Idle state.
func NewMachine() *Machine {
	return &Machine{current: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to state to and records it. It has no other effect.
func (m *Machine) Transition(to State) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Transition{From: m.current, To: to, At: time.Now()}
	m.current = to
	m.history = append(m.history, t)
	return t
}

// History returns a copy of every transition so far.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Available returns the kinds legal in the current state.
func (m *Machine) Available() []protocol.Kind {
	return AvailableTools(m.State())
}

// Validate checks kind against the current state.
func (m *Machine) Validate(kind protocol.Kind) (bool, string) {
	return Validate(kind, m.State())
}

// Render returns RenderCatalog for the current state.
func (m *Machine) Render() string {
	return RenderCatalog(m.State())
}

// Bias returns DecodingBias for the current state.
func (m *Machine) Bias() map[string]float64 {
	return DecodingBias(m.State())
}

// Guidance returns the instructions for the current state.
func (m *Machine) Guidance() string {
	return Guidance(m.State())
}

// Stats summarizes masking for the current state.
type Stats struct {
	CurrentState     State `json:"current_state"`
	TotalTools       int   `json:"total_tools"`
	AvailableTools   int   `json:"available_tools"`
	MaskedTools      int   `json:"masked_tools"`
	StateTransitions int   `json:"state_transitions"`
}

// Stats returns masking statistics.
func (m *Machine) Stats() Stats {
	m.mu.RLock()
	state, transitions := m.current, len(m.history)
	m.mu.RUnlock()

	available := len(AvailableTools(state))
	return Stats{
		CurrentState:     state,
		TotalTools:       len(tools),
		AvailableTools:   available,
		MaskedTools:      len(tools) - available,
		StateTransitions: transitions,
	}
}
