package phase

import (
	"sync"
)

// Change describes one transition. Cause is set when the transition was
// forced by a failure.
type Change struct {
	From  Phase
	To    Phase
	Cause error
}

// Machine guards the current Phase of one session. The emit hook runs
// inside TransitionTo while the machine lock is held, so changes are
// observed in the order they happened and before TransitionTo returns.
// The hook must not call back into the Machine.
type Machine struct {
	mu      sync.Mutex
	current Phase
	emit    func(Change)
}

func NewMachine(initial Phase, emit func(Change)) *Machine {
	if emit == nil {
		emit = func(Change) {}
	}
	return &Machine{current: initial, emit: emit}
}

func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Machine) TransitionTo(next Phase, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current
	n, err := prev.TransitionTo(next)
	if err != nil {
		return err
	}
	m.current = n
	m.emit(Change{From: prev, To: n, Cause: cause})
	return nil
}

// TransitionFrom transitions only if the current phase is from. It reports
// whether the transition happened.
func (m *Machine) TransitionFrom(from, next Phase, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != from {
		return false
	}
	n, err := from.TransitionTo(next)
	if err != nil {
		return false
	}
	m.current = n
	m.emit(Change{From: from, To: n, Cause: cause})
	return true
}
