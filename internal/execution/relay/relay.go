package relay

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Source yields output lines until it returns io.EOF.
type Source interface {
	ReadLine() (string, error)
}

// Sink receives relayed lines in the order they were read.
type Sink interface {
	WriteLine(line string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(line string)

func (f SinkFunc) WriteLine(line string) {
	f(line)
}

type Params struct {
	// Source is the line stream to drain
	Source Source

	// Sink receives every line read from Source
	Sink Sink

	// Log is the logger to use for the relay
	Log *zap.Logger
}

// Relay forwards every line of a source to a sink until the
// source is exhausted.
type Relay struct {
	source Source
	sink   Sink
	lines  int

	log *zap.Logger
}

func New(params Params) *Relay {
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Relay{
		source: params.Source,
		sink:   params.Sink,
		log:    log.Named("relay"),
	}
}

// Run drains the source and blocks until it is exhausted. It returns nil
// once the source reports io.EOF, or the read error otherwise.
func (r *Relay) Run() error {
	for {
		line, err := r.source.ReadLine()
		if errors.Is(err, io.EOF) {
			r.log.Debug("end of stream", zap.Int("lines", r.lines))
			return nil
		}

		if err != nil {
			r.log.Error("read failed", zap.Error(err), zap.Int("lines", r.lines))
			return fmt.Errorf("read line %d: %w", r.lines+1, err)
		}

		r.lines++
		r.sink.WriteLine(line)
	}
}

// Lines returns the number of relayed lines. Only meaningful
// after Run returned.
func (r *Relay) Lines() int {
	return r.lines
}
