// Package transaction is the all-or-nothing engine of an installation.
//
// A Transaction walks the install.State machine one Step at a time. Each step
// returns the compensating Actions of the mutations it performed; they are
// pushed on a LIFO Stack before the state advances. When a step fails or the
// context is cancelled, Abort pops and executes every action in reverse order,
// logging but never propagating individual compensation failures, and the
// original error is returned. Commit discards the stack. In dry-run mode steps
// only report their Plan and the stack stays empty.
//
// Actions are plain data over a closed set of kinds, so the stack can be
// inspected and tested without executing anything; Executor owns one typed
// function per kind.
package transaction
