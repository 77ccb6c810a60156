package ingest

import "fmt"

// State is the lifecycle position of a Loader.
type State int

const (
	// NotStarted: nothing has been read or written.
	NotStarted State = iota
	// SchemaCreated: the destination table exists and is empty.
	SchemaCreated
	// Appending: at least one chunk has been written.
	Appending
	// Done: every chunk has been written.
	Done
	// Failed: a fatal error stopped the load. Chunks already written remain.
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case SchemaCreated:
		return "SCHEMA_CREATED"
	case Appending:
		return "APPENDING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

var transitions = map[State][]State{
	NotStarted:    {SchemaCreated, Failed},
	SchemaCreated: {Appending, Done, Failed},
	Appending:     {Appending, Done, Failed},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
