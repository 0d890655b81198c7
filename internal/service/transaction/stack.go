package transaction

// Stack is the LIFO rollback stack.
type Stack struct {
	actions []Action
}

// Push appends an action.
func (s *Stack) Push(a Action) {
	s.actions = append(s.actions, a)
}

// Pop removes and returns the most recently pushed action.
func (s *Stack) Pop() (Action, bool) {
	if len(s.actions) == 0 {
		return nil, false
	}

	last := len(s.actions) - 1
	a := s.actions[last]
	s.actions[last] = nil
	s.actions = s.actions[:last]

	return a, true
}

// Len returns the number of pending actions.
func (s *Stack) Len() int {
	return len(s.actions)
}

// Snapshot returns the pending actions in push order.
func (s *Stack) Snapshot() []Action {
	return append([]Action(nil), s.actions...)
}

// Clear drops every pending action.
func (s *Stack) Clear() {
	s.actions = nil
}
