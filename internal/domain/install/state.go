package install

// State is a phase of the installation transaction.
type State string

// Transaction states in the order a successful run visits them.
const (
	StateInit               State = "Init"
	StateProbing            State = "Probing"
	StateFetching           State = "Fetching"
	StateVerifying          State = "Verifying"
	StateInstalling         State = "Installing"
	StateConfiguring        State = "Configuring"
	StateRegisteringService State = "RegisteringService"
	StateComplete           State = "Complete"
	StateFailed             State = "Failed"
	StateRolledBack         State = "RolledBack"
)

// forwardOrder lists the non-terminal states a transaction walks through.
//
//nolint:gochecknoglobals // Read-only lookup table.
var forwardOrder = []State{
	StateInit,
	StateProbing,
	StateFetching,
	StateVerifying,
	StateInstalling,
	StateConfiguring,
	StateRegisteringService,
}

// ForwardStates returns the non-terminal states in the order a successful run visits them.
func ForwardStates() []State {
	return append([]State(nil), forwardOrder...)
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateRolledBack
}

// CanTransition reports whether moving from s to next is allowed.
// Staying in the same forward state is allowed so several steps may share a phase.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateComplete, StateRolledBack:
		return false
	case StateFailed:
		return next == StateRolledBack
	}

	switch next {
	case StateFailed:
		return true
	case StateComplete:
		return s == StateRegisteringService
	case StateRolledBack, StateInit:
		return false
	}

	from, to := s.index(), next.index()

	return from >= 0 && to >= 0 && (to == from || to == from+1)
}

func (s State) index() int {
	for i, state := range forwardOrder {
		if state == s {
			return i
		}
	}

	return -1
}
