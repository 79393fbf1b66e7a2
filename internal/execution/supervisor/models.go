package supervisor

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrUnknownSlot     = errors.New("unknown slot")
	ErrAlreadyRunning  = errors.New("slot is already running")
	ErrNothingToCancel = errors.New("nothing to cancel")
	ErrWorkerNotFound  = errors.New("worker not found")
	ErrShutdown        = errors.New("supervisor is shut down")
)

// WorkerIOError reports a failure spawning or talking to a worker.
type WorkerIOError struct {
	Op  string
	Err error
}

func (e *WorkerIOError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.Op, e.Err)
}

func (e *WorkerIOError) Unwrap() error {
	return e.Err
}

// SlotID identifies one of the two fixed run positions.
type SlotID int

const (
	Slot1 SlotID = 1
	Slot2 SlotID = 2
)

// Slots lists all slots in order.
var Slots = []SlotID{Slot1, Slot2}

func (id SlotID) Valid() bool {
	return id == Slot1 || id == Slot2
}

func (id SlotID) String() string {
	return "slot " + strconv.Itoa(int(id))
}

// ParseSlot parses "1" or "2".
func ParseSlot(s string) (SlotID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !SlotID(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, s)
	}

	return SlotID(n), nil
}

type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Level int

const (
	// LevelOutput marks a line produced by a worker
	LevelOutput Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelOutput:
		return "output"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Line is a single log record. Output lines carry the run they were
// produced by, so late lines are never attributed to a newer run.
type Line struct {
	Slot  SlotID
	RunID string
	Level Level
	Text  string
	Time  time.Time
}

// RunResult describes how a run ended.
type RunResult struct {
	RunID string

	// ExitCode is the exit code of the worker, -1 if it was
	// terminated by a signal or never ran.
	ExitCode int

	// Signal is the signal that terminated the worker, if any.
	Signal *int

	// Cancelled is set if the run was cancelled.
	Cancelled bool

	// Err is set if the worker could not be spawned or its
	// output could not be read.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the worker ran and exited with code 0.
func (r RunResult) Success() bool {
	return r.Err == nil && r.Signal == nil && r.ExitCode == 0
}

func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Listener receives notifications about slots. Calls for one slot
// arrive in order; calls for different slots may interleave.
//
// State changes, run notices and results are delivered while the
// supervisor holds its slot lock, so a listener that blocks stalls
// Start, Cancel and Status for both slots. Notices about rejected
// requests are delivered after the lock is released. Implementations
// must not call back into the supervisor.
type Listener interface {
	OnLogLine(line Line)
	OnSlotStateChanged(slot SlotID, state State, runID string)
	OnRunCompleted(slot SlotID, result RunResult)
}

// SlotStatus is a snapshot of a slot.
type SlotStatus struct {
	Slot      SlotID     `json:"slot"`
	State     State      `json:"state"`
	RunID     string     `json:"run_id,omitempty"`
	Pid       int        `json:"pid,omitempty"`
	Worker    string     `json:"worker,omitempty"`
	URL       string     `json:"url,omitempty"`
	Output    string     `json:"output,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// StartParams are the inputs of a start request.
type StartParams struct {
	// Worker is the path of the worker executable or script. If
	// empty, the configured default of the slot is used.
	Worker string

	// URL is the team or squad page to scrape.
	URL string

	// Output is the directory the worker writes its results to.
	Output string
}
