package harness

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"turbodecode/internal/decode"
	"turbodecode/internal/errors"
	"turbodecode/internal/obs"
	"turbodecode/internal/record"
	"turbodecode/internal/sink"
	"turbodecode/pkg/exception"
)

var ErrAlreadyRun = errors.New("harness already run")

// Report summarizes one run.
type Report struct {
	State          State
	Input          string
	Strategies     []string
	Lines          int
	Accepted       int
	Rejected       int
	DecodeFailures map[string]int
	Outputs        map[string]string
	Cause          string
	Started        time.Time
	Finished       time.Time
}

// Harness drives one batch run: parse each input line, decode it once
// per strategy and write each value to that strategy's sink.
type Harness struct {
	cfg     Config
	reg     *decode.Registry
	metrics *obs.Metrics
	state   atomic.Uint32

	openInput func(name string) (io.ReadCloser, error)
}

// Option configures a Harness.
type Option func(*Harness)

// WithMetrics records run counters and decode latency into m.
func WithMetrics(m *obs.Metrics) Option {
	return func(h *Harness) {
		if m != nil {
			h.metrics = m
		}
	}
}

// New creates a harness in the Init state.
func New(cfg Config, reg *decode.Registry, opts ...Option) *Harness {
	h := &Harness{cfg: cfg, reg: reg, openInput: openFile}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the current lifecycle state.
func (h *Harness) State() State {
	return State(h.state.Load())
}

func (h *Harness) transition(to State) {
	for {
		from := h.State()
		if !validTransition(from, to) {
			return
		}
		if h.state.CompareAndSwap(uint32(from), uint32(to)) {
			return
		}
	}
}

// Run executes the whole batch. The returned error is nil only when the
// run reached Finished; rejected lines and decode failures are counted in
// the report and never fail the run.
func (h *Harness) Run(ctx context.Context) (Report, error) {
	report := Report{
		State:          h.State(),
		Input:          h.cfg.Input,
		Strategies:     append([]string(nil), h.cfg.Strategies...),
		DecodeFailures: make(map[string]int, len(h.cfg.Strategies)),
		Started:        time.Now().UTC(),
	}
	if report.State != StateInit {
		return report, ErrAlreadyRun
	}

	bindings, err := h.init()
	if err != nil {
		return h.abort(report, err)
	}
	h.transition(StateReady)

	input, sinks, err := h.open()
	if err != nil {
		return h.abort(report, err)
	}
	h.transition(StateStreaming)
	logs.Infof("harness: streaming %s into %d sinks", h.cfg.Input, len(bindings))

	err = h.stream(ctx, input, sinks, bindings, &report)
	_ = input.Close()
	if err != nil {
		_ = sinks.Abort()
		return h.abort(report, err)
	}
	if err := sinks.Commit(); err != nil {
		return h.abort(report, err)
	}

	report.Outputs = make(map[string]string, len(bindings))
	for _, b := range bindings {
		path, _ := sinks.Path(b.Name)
		report.Outputs[b.Name] = path
	}
	h.transition(StateFinished)
	report.State = h.State()
	report.Finished = time.Now().UTC()
	logs.Infof("harness: finished lines=%d accepted=%d rejected=%d decode_failures=%v",
		report.Lines, report.Accepted, report.Rejected, report.DecodeFailures)
	return report, nil
}

func (h *Harness) init() ([]decode.Binding, error) {
	if h.reg == nil {
		return nil, errors.Join(exception.ErrConfiguration, errors.Wrap(exception.ErrNilInstance, "registry"))
	}
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}
	bindings, err := h.reg.Resolve(h.cfg.Strategies)
	if err != nil {
		return nil, errors.Join(exception.ErrConfiguration, err)
	}
	return bindings, nil
}

func openFile(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

func (h *Harness) open() (io.ReadCloser, *sink.MultiWriter, error) {
	input, err := h.openInput(h.cfg.Input)
	if err != nil {
		return nil, nil, errors.Join(exception.ErrInputRead, err)
	}
	sinks, err := sink.Open(h.cfg.Sink, h.cfg.Strategies)
	if err != nil {
		_ = input.Close()
		return nil, nil, err
	}
	return input, sinks, nil
}

func (h *Harness) abort(report Report, err error) (Report, error) {
	h.transition(StateAborted)
	report.State = h.State()
	report.Cause = err.Error()
	report.Finished = time.Now().UTC()
	logs.Errorf("harness: aborted after %d lines, err: %+v", report.Lines, err)
	return report, err
}

func (h *Harness) stream(ctx context.Context, input io.Reader, sinks *sink.MultiWriter, bindings []decode.Binding, report *Report) error {
	parser := h.cfg.Parser
	reader := bufio.NewReaderSize(input, defaultReadBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "stream canceled")
		}

		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return errors.Wrapf(errors.Join(exception.ErrInputRead, readErr), "line %d", report.Lines+1)
		}
		if len(line) == 0 && readErr == io.EOF {
			return nil
		}

		report.Lines++
		h.metrics.IncLine()
		rec, err := parser.Parse(strings.TrimSuffix(line, "\n"))
		if err != nil {
			report.Rejected++
			h.metrics.IncRejected()
			logs.Warnf("harness: skip line %d, err: %+v", report.Lines, err)
		} else {
			report.Accepted++
			h.metrics.IncAccepted()
			if err := h.process(ctx, rec, sinks, bindings, report); err != nil {
				return errors.Wrapf(err, "line %d", report.Lines)
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

type result struct {
	value string
	err   error
}

// process decodes rec once per binding and writes the values in binding
// order. Results live in a per-record slice.
func (h *Harness) process(ctx context.Context, rec record.Record, sinks *sink.MultiWriter, bindings []decode.Binding, report *Report) error {
	results := make([]result, len(bindings))
	if h.cfg.Parallel && len(bindings) > 1 {
		var wg sync.WaitGroup
		for i, b := range bindings {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = h.decode(ctx, b, rec.Symbol)
			}()
		}
		wg.Wait()
	} else {
		for i, b := range bindings {
			results[i] = h.decode(ctx, b, rec.Symbol)
			if fatal(ctx, results[i].err) {
				break
			}
		}
	}

	for i, b := range bindings {
		value, err := results[i].value, results[i].err
		if fatal(ctx, err) {
			return errors.Wrapf(err, "decode %s", b.Name)
		}
		if err == nil && containsLineBreak(value) {
			err = errors.Wrap(exception.ErrDecodeFailure, "value contains a line break")
		}
		if err != nil {
			value = h.cfg.Sentinel
			report.DecodeFailures[b.Name]++
			h.metrics.IncDecodeFailure(b.Name)
			logs.Warnf("harness: %s failed on key %s, writing sentinel, err: %+v", b.Name, rec.Key, err)
		}
		if err := sinks.Write(b.Name, rec.Key, value); err != nil {
			return err
		}
	}

	if h.cfg.Progress != nil {
		_, _ = fmt.Fprintf(h.cfg.Progress, "%s | %s\n", rec.Key, rec.Symbol)
	}
	return nil
}

func (h *Harness) decode(ctx context.Context, b decode.Binding, symbol string) result {
	start := time.Now()
	value, err := b.Decoder.Decode(ctx, symbol, h.cfg.Channel)
	h.metrics.ObserveDecode(b.Name, time.Since(start))
	return result{value: value, err: err}
}

// fatal reports whether a decode error must abort the run rather than be
// replaced by the sentinel.
func fatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exception.ErrUnknownStrategy) {
		return true
	}
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
