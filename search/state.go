package search

import (
	"github.com/git-pkgs/reposearch/internal/core"
)

// Phase is the orchestrator's lifecycle position.
type Phase int

const (
	Idle Phase = iota
	PendingDebounce
	InFlight
	Settled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PendingDebounce:
		return "pending"
	case InFlight:
		return "in-flight"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// Token identifies one issued remote call. Zero means no call.
type Token uint64

// State is a snapshot of the orchestrator. Which fields are meaningful
// depends on Phase:
//
//	Idle             nothing; Result is the zero value
//	PendingDebounce  Query
//	InFlight         Query, Token
//	Settled          Query, Token, and Result or Err
type State[T any] struct {
	Phase  Phase
	Query  string
	Token  Token
	Result T
	Err    *core.Error
}

// Loading reports whether a result for Query is still on its way.
func (s State[T]) Loading() bool {
	return s.Phase == PendingDebounce || s.Phase == InFlight
}

// Failed reports whether the state settled with an error.
func (s State[T]) Failed() bool {
	return s.Phase == Settled && s.Err != nil
}
