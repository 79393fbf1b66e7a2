package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/squadscrape/squadpanel/internal/execution/relay"
	"github.com/squadscrape/squadpanel/internal/execution/validation"
	"github.com/squadscrape/squadpanel/internal/execution/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Supervisor interface {
	// Start validates the request, spawns a worker in the slot and
	// returns once the slot is Running. The output is relayed and the
	// exit awaited in the background. A worker that cannot be spawned
	// completes its run before Start returns the error.
	Start(slot SlotID, params StartParams) (*Run, error)

	// Cancel asks the worker of a running slot to terminate. It does
	// not wait for the worker to exit. A slot that is still Starting
	// is cancelled as soon as its worker is spawned.
	Cancel(slot SlotID) error

	// State returns the current state of a slot.
	State(slot SlotID) State

	// Status returns a snapshot of all slots.
	Status() []SlotStatus

	// Shutdown rejects further starts, cancels all running workers
	// and waits for them to exit.
	Shutdown(ctx context.Context) error
}

// SpawnFunc starts a worker process.
type SpawnFunc func(worker.StartConfig, *zap.Logger) (worker.Handle, error)

type Params struct {
	// Config is the config used to set up the supervisor and its workers.
	Config Config

	// Listener receives log lines, state changes and run results.
	Listener Listener

	// Spawn is called to start a worker process. Defaults to worker.Spawn.
	Spawn SpawnFunc

	// Log is the logger to use for the supervisor
	Log *zap.Logger
}

type slot struct {
	id    SlotID
	state State
	run   *Run
}

// ProcessSupervisor owns the slot table. All slot transitions happen
// under its lock.
type ProcessSupervisor struct {
	mu     sync.Mutex
	slots  map[SlotID]*slot
	closed bool

	config   Config
	gate     *validation.Gate
	spawn    SpawnFunc
	listener Listener

	log *zap.Logger
}

var _ Supervisor = (*ProcessSupervisor)(nil)

func New(params Params) *ProcessSupervisor {
	if params.Spawn == nil {
		params.Spawn = defaultSpawn
	}

	if params.Listener == nil {
		params.Listener = nopListener{}
	}

	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	slots := make(map[SlotID]*slot, len(Slots))
	for _, id := range Slots {
		slots[id] = &slot{id: id, state: Idle}
	}

	return &ProcessSupervisor{
		slots:    slots,
		config:   params.Config,
		gate:     validation.NewGate(params.Config.SourceURL),
		spawn:    params.Spawn,
		listener: params.Listener,
		log:      log.Named("supervisor"),
	}
}

func (s *ProcessSupervisor) Start(id SlotID, params StartParams) (*Run, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSlot, int(id))
	}

	log := s.log.With(zap.Stringer("slot", id))

	workerPath := params.Worker
	if workerPath == "" {
		workerPath = s.config.DefaultWorker(id)
	}

	err := s.gate.Validate(params.URL, params.Output)
	if err == nil && workerPath == "" {
		err = &validation.Error{Field: "worker", Reason: "must not be empty"}
	}

	if err != nil {
		log.Debug("start rejected", zap.Error(err))
		s.notice(id, "", LevelError, "start rejected: %v", err)
		return nil, err
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		s.notice(id, "", LevelWarning, "start rejected: shutting down")
		return nil, ErrShutdown
	}

	sl := s.slots[id]
	if sl.state != Idle {
		state, runID := sl.state, sl.run.id
		s.mu.Unlock()

		log.Debug("slot busy", zap.Stringer("state", state))
		s.notice(id, runID, LevelWarning, "%s is already running, start ignored", id)
		return nil, ErrAlreadyRunning
	}

	url := validation.NormalizeURL(params.URL)
	run := newRun(
		uuid.NewString(),
		id,
		workerPath,
		url,
		params.Output,
		s.config.invocation(workerPath, url, params.Output),
	)

	sl.run = run
	s.setState(sl, Starting)

	log.Info("starting worker",
		zap.String("run_id", run.id),
		zap.String("worker", workerPath),
		zap.String("url", url),
		zap.String("output", params.Output),
	)
	s.notice(id, run.id, LevelInfo, "starting %s for %s", workerPath, url)

	s.mu.Unlock()

	handle, err := s.spawnWorker(run, log)
	if err != nil {
		log.Error("spawn failed", zap.Error(err))
		s.complete(sl, run, nil, err)
		return nil, err
	}

	s.attach(sl, run, handle)

	// the relay unit of this run
	go s.supervise(sl, run, handle)

	return run, nil
}

func (s *ProcessSupervisor) Cancel(id SlotID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, int(id))
	}

	s.mu.Lock()

	sl := s.slots[id]
	switch sl.state {
	case Running:
	case Starting:
		// terminated once the worker is attached
		s.cancelLocked(sl, sl.run)
		s.mu.Unlock()
		return nil
	default:
		state := sl.state
		s.mu.Unlock()

		s.notice(id, "", LevelInfo, "%s is %s, nothing to cancel", id, state)
		return ErrNothingToCancel
	}

	run := sl.run
	s.cancelLocked(sl, run)

	s.mu.Unlock()

	if err := run.handle.Terminate(); err != nil {
		s.log.Error("terminate failed", zap.Stringer("slot", id), zap.Error(err))
		s.notice(id, run.id, LevelError, "terminate failed: %v", err)
		return &WorkerIOError{Op: "terminate", Err: err}
	}

	return nil
}

func (s *ProcessSupervisor) State(id SlotID) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sl, ok := s.slots[id]; ok {
		return sl.state
	}

	return Idle
}

func (s *ProcessSupervisor) Status() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make([]SlotStatus, 0, len(Slots))
	for _, id := range Slots {
		sl := s.slots[id]

		st := SlotStatus{Slot: id, State: sl.state}
		if run := sl.run; run != nil {
			startedAt := run.startedAt
			st.RunID = run.id
			st.Worker = run.workerPath
			st.URL = run.url
			st.Output = run.output
			st.StartedAt = &startedAt
			if run.handle != nil {
				st.Pid = run.handle.Pid()
			}
		}

		status = append(status, st)
	}

	return status
}

func (s *ProcessSupervisor) Shutdown(ctx context.Context) error {
	s.log.Debug("shutting down")

	s.mu.Lock()

	s.closed = true

	var runs []*Run
	var handles []worker.Handle
	for _, id := range Slots {
		sl := s.slots[id]
		if sl.run == nil {
			continue
		}

		runs = append(runs, sl.run)

		switch sl.state {
		case Running:
			s.cancelLocked(sl, sl.run)
			handles = append(handles, sl.run.handle)
		case Starting:
			// terminated once the worker is attached
			s.cancelLocked(sl, sl.run)
		}
	}

	s.mu.Unlock()

	for _, handle := range handles {
		if err := handle.Terminate(); err != nil {
			s.log.Error("terminate failed", zap.Int("pid", handle.Pid()), zap.Error(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			_, err := run.Wait(ctx)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error("error waiting for workers to exit", zap.Error(err))
		return err
	}

	s.log.Debug("shut down")

	return nil
}

// supervise drains the output of a spawned worker until the stream
// closes and completes the run once the worker exited.
func (s *ProcessSupervisor) supervise(sl *slot, run *Run, handle worker.Handle) {
	log := s.log.With(
		zap.Stringer("slot", sl.id),
		zap.String("run_id", run.id),
	)

	r := relay.New(relay.Params{
		Source: handle,
		Sink: relay.SinkFunc(func(text string) {
			s.listener.OnLogLine(Line{
				Slot:  sl.id,
				RunID: run.id,
				Level: LevelOutput,
				Text:  text,
				Time:  time.Now(),
			})
		}),
		Log: log,
	})

	var runErr error
	if readErr := r.Run(); readErr != nil {
		runErr = &WorkerIOError{Op: "read", Err: readErr}

		// nobody drains the stream anymore, make sure the worker
		// does not block on a full pipe
		handle.Close()
		if err := handle.Terminate(); err != nil {
			log.Warn("terminate after read failure failed", zap.Error(err))
		}
	}

	exit, waitErr := handle.Wait()
	if waitErr != nil && runErr == nil {
		runErr = &WorkerIOError{Op: "wait", Err: waitErr}
	}

	if err := handle.Close(); err != nil {
		log.Debug("close output failed", zap.Error(err))
	}

	log.Debug("worker exited",
		zap.Int("lines", r.Lines()),
		zap.Int("exit_code", exit.ExitCode()),
	)

	s.complete(sl, run, &exit, runErr)
}

func (s *ProcessSupervisor) spawnWorker(run *Run, log *zap.Logger) (worker.Handle, error) {
	invocation := run.Invocation()

	// with an interpreter a missing script only shows up as a
	// failing interpreter, so check for it upfront
	if s.config.Interpreter != "" {
		script := run.workerPath
		if !filepath.IsAbs(script) && invocation.Cwd != "" {
			script = filepath.Join(invocation.Cwd, script)
		}

		if _, err := os.Stat(script); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrWorkerNotFound, err)
		}
	}

	handle, err := s.spawn(invocation, log)
	if err == nil {
		return handle, nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrWorkerNotFound, err)
	}

	return nil, &WorkerIOError{Op: "spawn", Err: err}
}

// attach stores the spawned handle in the slot and marks it Running.
// A run cancelled while spawning stays Stopping and its worker is
// terminated right away.
func (s *ProcessSupervisor) attach(sl *slot, run *Run, handle worker.Handle) {
	s.mu.Lock()

	run.handle = handle

	terminate := run.cancelled
	if !terminate {
		s.setState(sl, Running)
	}

	s.notice(sl.id, run.id, LevelInfo, "worker started (pid %d)", handle.Pid())

	s.mu.Unlock()

	if terminate {
		if err := handle.Terminate(); err != nil {
			s.log.Error("terminate failed", zap.Int("pid", handle.Pid()), zap.Error(err))
		}
	}
}

// complete runs the completion path of a run exactly once. It reports
// the outcome, clears the slot and resets it to Idle.
func (s *ProcessSupervisor) complete(sl *slot, run *Run, exit *worker.ExitEvent, err error) {
	run.once.Do(func() {
		result := RunResult{
			RunID:      run.id,
			ExitCode:   -1,
			Err:        err,
			StartedAt:  run.startedAt,
			FinishedAt: time.Now(),
		}

		if exit != nil {
			result.ExitCode = exit.ExitCode()
			result.Signal = exit.Signal
		}

		s.mu.Lock()

		result.Cancelled = run.cancelled

		if sl.run == run {
			if sl.state == Running {
				s.setState(sl, Stopping)
			}

			s.reportResult(sl.id, result)

			sl.run = nil
			s.setState(sl, Idle)
		} else {
			s.log.Warn("stale run completed", zap.Stringer("slot", sl.id), zap.String("run_id", run.id))
		}

		s.listener.OnRunCompleted(sl.id, result)

		run.result = result

		s.mu.Unlock()

		close(run.done)
	})
}

func (s *ProcessSupervisor) reportResult(id SlotID, result RunResult) {
	elapsed := result.Duration().Round(time.Second)

	log := s.log.With(
		zap.Stringer("slot", id),
		zap.String("run_id", result.RunID),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("cancelled", result.Cancelled),
		zap.Duration("elapsed", result.Duration()),
	)

	switch {
	case errors.Is(result.Err, ErrWorkerNotFound):
		log.Warn("worker not found", zap.Error(result.Err))
		s.notice(id, result.RunID, LevelError, "%v", result.Err)
	case result.Err != nil:
		log.Error("worker failed", zap.Error(result.Err))
		s.notice(id, result.RunID, LevelError, "run failed: %v", result.Err)
	case result.Cancelled:
		log.Info("run cancelled")
		s.notice(id, result.RunID, LevelInfo, "run cancelled, worker exited (%s) after %s", describeExit(result), elapsed)
	case result.Success():
		log.Info("run completed")
		s.notice(id, result.RunID, LevelInfo, "run completed (exit code 0) after %s", elapsed)
	default:
		log.Warn("run finished with failure")
		s.notice(id, result.RunID, LevelWarning, "run finished (%s) after %s", describeExit(result), elapsed)
	}
}

func (s *ProcessSupervisor) cancelLocked(sl *slot, run *Run) {
	run.cancelled = true
	s.setState(sl, Stopping)

	s.log.Info("cancelling run", zap.Stringer("slot", sl.id), zap.String("run_id", run.id))
	s.notice(sl.id, run.id, LevelInfo, "cancelling run, waiting for worker to exit")
}

func (s *ProcessSupervisor) setState(sl *slot, state State) {
	sl.state = state

	var runID string
	if sl.run != nil {
		runID = sl.run.id
	}

	s.listener.OnSlotStateChanged(sl.id, state, runID)
}

func (s *ProcessSupervisor) notice(id SlotID, runID string, level Level, format string, args ...any) {
	s.listener.OnLogLine(Line{
		Slot:  id,
		RunID: runID,
		Level: level,
		Text:  fmt.Sprintf(format, args...),
		Time:  time.Now(),
	})
}

// MARK: - Helpers

func describeExit(result RunResult) string {
	if result.Signal != nil {
		return fmt.Sprintf("signal %d", *result.Signal)
	}

	return fmt.Sprintf("exit code %d", result.ExitCode)
}

func defaultSpawn(config worker.StartConfig, log *zap.Logger) (worker.Handle, error) {
	return worker.Spawn(config, log)
}

type nopListener struct{}

func (nopListener) OnLogLine(Line)                          {}
func (nopListener) OnSlotStateChanged(SlotID, State, string) {}
func (nopListener) OnRunCompleted(SlotID, RunResult)        {}
