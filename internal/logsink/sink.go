package logsink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
	"go.uber.org/zap"
)

// DefaultBuffer is the number of events a subscriber may lag behind
// before it is evicted.
const DefaultBuffer = 256

type Params struct {
	// Writers receive every log event as a plain text line. Writes
	// are synchronous, a slow writer slows down the workers.
	Writers []io.Writer

	// Log is the logger to use for the sink
	Log *zap.Logger
}

// Sink is the shared append-only log of the panel. It assigns a
// sequence number to every event, writes log lines to its writers
// and fans all events out to subscribers.
type Sink struct {
	mu      sync.Mutex
	seq     uint64
	writers []io.Writer
	subs    map[*Subscription]struct{}
	closed  bool

	log *zap.Logger
}

var _ supervisor.Listener = (*Sink)(nil)

func New(params Params) *Sink {
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Sink{
		writers: params.Writers,
		subs:    make(map[*Subscription]struct{}),
		log:     log.Named("logsink"),
	}
}

func (s *Sink) OnLogLine(line supervisor.Line) {
	s.append(Event{
		Type:  EventLog,
		Time:  line.Time,
		Slot:  line.Slot,
		RunID: line.RunID,
		Level: line.Level.String(),
		Text:  line.Text,
	})
}

func (s *Sink) OnSlotStateChanged(slot supervisor.SlotID, state supervisor.State, runID string) {
	s.append(Event{
		Type:  EventState,
		Time:  time.Now(),
		Slot:  slot,
		RunID: runID,
		State: state.String(),
	})
}

func (s *Sink) OnRunCompleted(slot supervisor.SlotID, result supervisor.RunResult) {
	s.append(Event{
		Type:   EventCompleted,
		Time:   result.FinishedAt,
		Slot:   slot,
		RunID:  result.RunID,
		Result: newCompletion(result),
	})
}

// Subscribe registers a subscriber that receives all events appended
// from now on. A subscriber that falls more than buffer events behind
// is evicted and its channel closed.
func (s *Sink) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	sub := &Subscription{
		sink:   s,
		events: make(chan Event, buffer),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(sub.events)
		sub.gone = true
		return sub
	}

	s.subs[sub] = struct{}{}

	s.log.Debug("subscriber added", zap.Int("subscribers", len(s.subs)))

	return sub
}

func (s *Sink) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

// Close closes all subscriptions. Events appended afterwards are
// still written to the writers.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for sub := range s.subs {
		s.removeLocked(sub)
	}

	return nil
}

func (s *Sink) append(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	evt.Seq = s.seq

	s.logEvent(evt)

	if evt.Type == EventLog {
		text := Format(evt)
		for _, w := range s.writers {
			if _, err := io.WriteString(w, text+"\n"); err != nil {
				s.log.Warn("write failed", zap.Error(err))
			}
		}
	}

	for sub := range s.subs {
		select {
		case sub.events <- evt:
		default:
			s.log.Warn("subscriber too slow, evicting", zap.Uint64("seq", evt.Seq))
			s.removeLocked(sub)
		}
	}
}

func (s *Sink) logEvent(evt Event) {
	log := s.log.With(
		zap.Uint64("seq", evt.Seq),
		zap.Int("slot", int(evt.Slot)),
		zap.String("run_id", evt.RunID),
	)

	switch evt.Type {
	case EventState:
		log.Debug("slot state changed", zap.String("state", evt.State))
	case EventCompleted:
		log.Debug("run completed",
			zap.Int("exit_code", evt.Result.ExitCode),
			zap.Bool("success", evt.Result.Success),
		)
	case EventLog:
		switch evt.Level {
		case supervisor.LevelOutput.String():
			log.Info("worker output", zap.String("line", evt.Text))
		case supervisor.LevelWarning.String():
			log.Warn(evt.Text)
		case supervisor.LevelError.String():
			log.Error(evt.Text)
		default:
			log.Info(evt.Text)
		}
	}
}

func (s *Sink) removeLocked(sub *Subscription) {
	if sub.gone {
		return
	}

	sub.gone = true
	delete(s.subs, sub)
	close(sub.events)
}

// Format renders a log event as a single line of text.
func Format(evt Event) string {
	ts := evt.Time.Format("15:04:05")

	if evt.Level == "" || evt.Level == supervisor.LevelOutput.String() {
		return fmt.Sprintf("%s [%s] %s", ts, evt.Slot, evt.Text)
	}

	return fmt.Sprintf("%s [%s] %s: %s", ts, evt.Slot, evt.Level, evt.Text)
}

// Subscription receives events from a sink.
type Subscription struct {
	sink   *Sink
	events chan Event

	// guarded by the sink lock
	gone bool
}

// Events returns the event channel. It is closed when the
// subscription is closed or evicted.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()

	s.sink.removeLocked(s)
}
