// Package graphconfig implements the configuration loader (C7): it parses
// the 3-line-per-agent text format, instantiates agents via the
// compile-time factory table, wraps each in a parallel.Agent, and tracks
// their lifecycle for a later Close.
package graphconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zazi341/dataflow-graph-server/internal/agent"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/parallel"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

// ParseError covers a malformed configuration: a line count not a
// multiple of 3. An unregistered agent-type name is not a ParseError;
// Create logs it and skips that block.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "graphconfig: parse error: " + e.Reason }

// IoError wraps a failure to read the configuration source.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return "graphconfig: io error: " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// minCapacity and capacityPerInput implement the ParallelAgent capacity
// policy of spec.md §4.3: capacity = max(10, 5×input_count).
const (
	minCapacity      = 10
	capacityPerInput = 5
)

func capacityFor(inputCount int) int {
	c := capacityPerInput * inputCount
	if c < minCapacity {
		return minCapacity
	}
	return c
}

// Loader owns the list of ParallelAgent-wrapped agents instantiated from
// one configuration load.
type Loader struct {
	reg     *topic.Registry
	logger  zerolog.Logger
	metrics *metrics.Metrics
	agents  []*parallel.Agent
}

// New constructs an empty loader bound to reg. m may be nil (no metrics
// recorded), matching the ParallelAgents it creates.
func New(reg *topic.Registry, logger zerolog.Logger, m *metrics.Metrics) *Loader {
	return &Loader{reg: reg, logger: logger, metrics: m}
}

// Name identifies the loader implementation.
func (l *Loader) Name() string { return "graphconfig-loader" }

// Version is the loader's format version; currently always 1.
func (l *Loader) Version() int { return 1 }

// Agents returns a snapshot of the wrapped agents created by this loader.
func (l *Loader) Agents() []*parallel.Agent {
	out := make([]*parallel.Agent, len(l.agents))
	copy(out, l.agents)
	return out
}

// CreateFile reads path and calls Create on its contents, wrapping any
// read failure as an IoError.
func (l *Loader) CreateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &IoError{Err: err}
	}
	defer f.Close()
	return l.Create(f)
}

// Create parses r as a 3-line-per-agent configuration and instantiates
// agents into this loader. A line-count violation or a single global
// parse condition aborts the whole call (ParseError); an individual
// block's factory-lookup failure is logged and that block is skipped,
// never aborting the overall load. Agents created by earlier blocks in
// the same call are retained even if a later block fails or the call
// aborts.
func (l *Loader) Create(r io.Reader) error {
	lines, err := readLines(r)
	if err != nil {
		return &IoError{Err: err}
	}
	if len(lines)%3 != 0 {
		return &ParseError{Reason: fmt.Sprintf("line count %d is not a multiple of 3", len(lines))}
	}

	for i := 0; i < len(lines); i += 3 {
		typeName := lines[i]
		inputs := splitFields(lines[i+1])
		outputs := splitFields(lines[i+2])

		factory, err := agent.Lookup(typeName)
		if err != nil {
			l.logger.Error().Err(err).Str("type", typeName).Msg("skipping unrecognized agent type")
			continue
		}

		inner := factory(inputs, outputs, l.reg)
		capacity := capacityFor(len(inputs))
		wrapped := parallel.New(inner, capacity, l.metrics)

		for _, in := range inputs {
			l.reg.Get(in).Subscribe(wrapped)
		}
		for _, out := range outputs {
			l.reg.Get(out).AddPublisher(wrapped)
		}

		l.agents = append(l.agents, wrapped)
	}
	return nil
}

// Close calls Close on every wrapped agent in construction order, logging
// but continuing past individual failures, then drops the list.
func (l *Loader) Close() error {
	for _, a := range l.agents {
		if err := a.Close(); err != nil {
			l.logger.Error().Err(err).Str("agent", a.Name()).Msg("error closing agent during loader shutdown")
		}
	}
	l.agents = nil
	return nil
}

// readLines reads r fully, trims trailing whitespace from each line, and
// returns them. Trailing blank lines are not stripped before counting —
// they count toward the multiple-of-3 requirement.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), " \t\r\n"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// splitFields splits strictly on "," with no whitespace trimming within
// fields, preserving empty strings between commas. A blank line yields a
// single-element slice containing the empty string, not an empty slice.
func splitFields(line string) []string {
	return strings.Split(line, ",")
}
