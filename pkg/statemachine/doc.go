// Package statemachine implements a small, typed finite state machine.
//
// States and events are string-based types chosen by the caller, so a
// transition table reads as plain constants:
//
//	type State string
//	type Event string
//
//	sm := statemachine.MustNew[State, Event]("anonymous",
//	    statemachine.WithTransition[State, Event]("anonymous", "authenticated", "login"),
//	    statemachine.WithTransition[State, Event]("authenticated", "anonymous", "logout"),
//	)
//	err := sm.Fire(ctx, "login", nil)
//
// Several transitions may share a (from, event) pair; the first one whose
// guards all pass wins. Actions run in order before the state changes and any
// action error aborts the transition. Hooks registered with WithHook run after
// the state has changed, outside the machine's lock, so they may safely read
// Current.
package statemachine
