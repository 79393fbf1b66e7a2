package logsink

import (
	"time"

	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
)

type EventType string

const (
	EventLog       EventType = "log"
	EventState     EventType = "state"
	EventCompleted EventType = "completed"
)

// Event is a single entry of the panel log. Seq is strictly
// increasing in the order events were appended.
type Event struct {
	Seq   uint64            `json:"seq"`
	Type  EventType         `json:"type"`
	Time  time.Time         `json:"time"`
	Slot  supervisor.SlotID `json:"slot"`
	RunID string            `json:"run_id,omitempty"`

	// set for log events
	Level string `json:"level,omitempty"`
	Text  string `json:"text,omitempty"`

	// set for state events
	State string `json:"state,omitempty"`

	// set for completed events
	Result *Completion `json:"result,omitempty"`
}

// Completion is the serializable outcome of a run.
type Completion struct {
	ExitCode  int    `json:"exit_code"`
	Signal    *int   `json:"signal,omitempty"`
	Cancelled bool   `json:"cancelled"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func newCompletion(result supervisor.RunResult) *Completion {
	c := &Completion{
		ExitCode:  result.ExitCode,
		Signal:    result.Signal,
		Cancelled: result.Cancelled,
		Success:   result.Success(),
		ElapsedMs: result.Duration().Milliseconds(),
	}

	if result.Err != nil {
		c.Error = result.Err.Error()
	}

	return c
}
