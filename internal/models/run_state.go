package models

import "time"

// RunState is the progress of one invocation over the ordered import rows.
// Offset is the next index to process; only Offset outlives the invocation.
type RunState struct {
	RunID     string
	Offset    int
	StartedAt time.Time
}

// Advance returns the state after the record at index i has been processed
func (s RunState) Advance(i int) RunState {
	s.Offset = i + 1
	return s
}
