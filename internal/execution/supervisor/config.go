package supervisor

import (
	"strconv"

	"github.com/squadscrape/squadpanel/internal/execution/worker"
)

type Config struct {
	// SourceURL is the base url of the data source. Start requests
	// must point at a team or squad page below it.
	SourceURL string `conf:"source_url"`

	// Interpreter is prepended to every worker invocation if set,
	// e.g. "python3" for script workers.
	Interpreter string `conf:"interpreter"`

	// InterpreterArgs are passed to the interpreter before the
	// worker path, e.g. "-u".
	InterpreterArgs []string `conf:"interpreter_args"`

	// Workers maps slot numbers ("1", "2") to the worker used when
	// a start request does not name one.
	Workers map[string]string `conf:"workers"`

	// Cwd is the working directory of the workers.
	Cwd string `conf:"cwd"`

	// Env holds additional environment variables for the workers.
	Env map[string]string `conf:"env"`
}

// DefaultWorker returns the configured worker of a slot.
func (c Config) DefaultWorker(slot SlotID) string {
	return c.Workers[strconv.Itoa(int(slot))]
}

// invocation builds the start config for one run:
// [interpreter [args...]] <worker> --url <url> --output <output>
func (c Config) invocation(workerPath, url, output string) worker.StartConfig {
	args := []string{"--url", url, "--output", output}

	if c.Interpreter == "" {
		return worker.StartConfig{
			Cmd:  workerPath,
			Args: args,
			Cwd:  c.Cwd,
			Env:  c.Env,
		}
	}

	full := make([]string, 0, len(c.InterpreterArgs)+1+len(args))
	full = append(full, c.InterpreterArgs...)
	full = append(full, workerPath)
	full = append(full, args...)

	return worker.StartConfig{
		Cmd:  c.Interpreter,
		Args: full,
		Cwd:  c.Cwd,
		Env:  c.Env,
	}
}
