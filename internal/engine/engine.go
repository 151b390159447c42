// Package engine implements command execution: synchronous,
// asynchronous, and batch execution over a small fixed worker pool, with a
// dangerous-command/sanitizer safety policy, timeout-only retry, and a
// circuit breaker guarding a host debugger whose calls keep failing.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
	"github.com/vibedbg/vibedbg-ext/internal/capture"
	"github.com/vibedbg/vibedbg-ext/internal/circuit"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
	"github.com/vibedbg/vibedbg-ext/internal/metrics"
	"github.com/vibedbg/vibedbg-ext/internal/protocol"
	"github.com/vibedbg/vibedbg-ext/internal/router"
	"github.com/vibedbg/vibedbg-ext/internal/sessionstate"
)

// maxCommandBytes is the engine-level raw-command-length cap, distinct
// from and smaller than the wire-level protocol.MaxCommandLength the
// codec enforces on the envelope field.
const maxCommandBytes = 1024

// Config controls worker count, retry behavior, and breaker thresholds.
type Config struct {
	Workers           int
	QueueSize         int
	DefaultTimeout    time.Duration
	MaxRetries        int
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

// DefaultConfig is a 2-worker pool, one retry on timeout, and a breaker
// that opens after 5 consecutive failures.
func DefaultConfig() Config {
	return Config{
		Workers:          2,
		QueueSize:        32,
		DefaultTimeout:   30 * time.Second,
		MaxRetries:       1,
		BreakerThreshold: 5,
		BreakerCooldown:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultConfig().Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultConfig().QueueSize
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultConfig().MaxRetries
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultConfig().BreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultConfig().BreakerCooldown
	}
	return c
}

// Result is the outcome of executing one command.
type Result struct {
	Success      bool
	Output       string
	ErrorCode    protocol.ErrorCode
	ErrorMessage string
	DurationMs   int64
	Retried      bool
}

// Stats are cumulative, atomically-updated execution counters exposed by
// the status API and the extension controller.
type Stats struct {
	Executed           int64
	Succeeded          int64
	Failed             int64
	Retried            int64
	DenylistRejections int64
	TimedOut           int64
	BreakerRejections  int64
}

type job struct {
	ctx      context.Context
	command  string
	timeout  time.Duration
	resultCh chan Result
}

// Engine executes router-resolved commands against a debugger adapter over
// a fixed worker pool.
type Engine struct {
	cfg      Config
	debugger adapter.Debugger
	table    *router.Table
	store    *sessionstate.Store
	breaker  *circuit.Breaker
	logger   logging.Logger

	queue chan job
	wg    sync.WaitGroup

	executed, succeeded, failed, retried, denylisted, timedOut, breakerRej atomic.Int64
}

// New constructs an Engine. Start must be called before Execute* methods
// are used.
func New(cfg Config, debugger adapter.Debugger, table *router.Table, store *sessionstate.Store, logger logging.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{
		cfg:      cfg,
		debugger: debugger,
		table:    table,
		store:    store,
		breaker:  circuit.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:   logger.With("engine"),
		queue:    make(chan job, cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (e *Engine) Start() {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// Stop closes the queue, letting workers drain queued jobs, and waits for
// them to return. Execute* methods must not be called after Stop.
func (e *Engine) Stop() {
	close(e.queue)
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for j := range e.queue {
		j.resultCh <- e.run(j.ctx, j.command, j.timeout)
	}
}

// longRunningTimeout applies to command prefixes that routinely exceed the
// default: resuming execution and crash analysis.
const longRunningTimeout = 60 * time.Second

// defaultTimeoutFor picks the timeout when the caller didn't override.
func (e *Engine) defaultTimeoutFor(command string) time.Duration {
	lower := strings.ToLower(strings.TrimSpace(command))
	if lower == "g" || strings.HasPrefix(lower, "g ") || strings.HasPrefix(lower, "!analyze") {
		if longRunningTimeout > e.cfg.DefaultTimeout {
			return longRunningTimeout
		}
	}
	return e.cfg.DefaultTimeout
}

// ExecuteSync enqueues command and blocks until it completes or ctx is
// done.
func (e *Engine) ExecuteSync(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeoutFor(command)
	}
	resultCh := make(chan Result, 1)
	select {
	case e.queue <- job{ctx: ctx, command: command, timeout: timeout, resultCh: resultCh}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-resultCh:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ExecuteAsync enqueues command and returns immediately with a channel the
// caller can receive the eventual Result from.
func (e *Engine) ExecuteAsync(ctx context.Context, command string, timeout time.Duration) (<-chan Result, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeoutFor(command)
	}
	resultCh := make(chan Result, 1)
	select {
	case e.queue <- job{ctx: ctx, command: command, timeout: timeout, resultCh: resultCh}:
		return resultCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BatchResult aggregates the outcome of an ExecuteBatch call.
type BatchResult struct {
	Results    []Result
	Successful int
	Failed     int
	TotalTime  time.Duration
	AllOK      bool
}

// ProgressFunc is invoked after each command in a batch completes.
type ProgressFunc func(completed, total int)

// ExecuteBatch runs commands in order. Failures do not abort the batch;
// progress, if non-nil, is called after each command. The returned error
// is non-nil only when ctx ends before the batch does.
func (e *Engine) ExecuteBatch(ctx context.Context, commands []string, timeout time.Duration, progress ProgressFunc) (BatchResult, error) {
	batch := BatchResult{Results: make([]Result, 0, len(commands))}
	start := time.Now()
	for i, cmd := range commands {
		res, err := e.ExecuteSync(ctx, cmd, timeout)
		if err != nil {
			batch.TotalTime = time.Since(start)
			batch.AllOK = false
			return batch, err
		}
		batch.Results = append(batch.Results, res)
		if res.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
		if progress != nil {
			progress(i+1, len(commands))
		}
	}
	batch.TotalTime = time.Since(start)
	batch.AllOK = batch.Failed == 0
	return batch, nil
}

// CancelAllPending drains queued-but-unstarted jobs, resolving each with a
// canceled failure. In-flight work is not interrupted. Returns the number
// of jobs canceled.
func (e *Engine) CancelAllPending() int {
	n := 0
	for {
		select {
		case j := <-e.queue:
			j.resultCh <- Result{
				ErrorCode:    protocol.ErrorCodeCommandFailed,
				ErrorMessage: "command canceled before execution",
			}
			n++
		default:
			return n
		}
	}
}

// run validates length and the dangerous-command/sanitizer policy, routes
// via internal/router (falling through to generic pass-through when
// nothing matches), rewrites parameterized commands, and performs the
// actual call (with one timeout-only retry), updating stats as it goes.
// It never runs on the caller's goroutine directly — only from a worker —
// so e.breaker and e.store see one call at a time per worker, and the
// debugger itself is expected to be wrapped in adapter.Serialize if it is
// not safe for concurrent workers.
func (e *Engine) run(ctx context.Context, command string, timeout time.Duration) Result {
	e.executed.Add(1)

	reg := metrics.Get()

	if e.breaker.IsInCooldown() {
		e.breakerRej.Add(1)
		e.failed.Add(1)
		reg.BreakerOpenEvents.Inc()
		res := Result{
			ErrorCode:    protocol.ErrorCodeCommandFailed,
			ErrorMessage: fmt.Sprintf("engine circuit breaker open, retry in %s", e.breaker.CooldownRemaining()),
		}
		reg.RecordError(fmt.Sprintf("%d", res.ErrorCode))
		reg.RecordCommand("breaker_open", 0)
		return res
	}

	if strings.TrimSpace(command) == "" {
		return e.reject(protocol.ErrorCodeInvalidParameter, "empty command", "empty_command", reg)
	}
	if len(command) > maxCommandBytes {
		return e.reject(protocol.ErrorCodeInvalidParameter,
			fmt.Sprintf("command exceeds maximum length of %d bytes", maxCommandBytes), "command_too_long", reg)
	}
	if ContainsDestructiveFilesystemToken(command) {
		return e.reject(protocol.ErrorCodeInvalidParameter,
			fmt.Sprintf("command %q contains a filesystem-destructive token and was rejected by the sanitizer", command),
			"sanitizer_rejected", reg)
	}

	// First command through the engine initializes session state.
	e.store.Snapshot(ctx)

	rule, tokens, ok := e.table.Resolve(command)
	kind := router.KindPassthrough
	if ok {
		kind = rule.Kind
	}

	switch kind {
	case router.KindComposite:
		return e.runComposite(ctx, timeout)

	case router.KindTyped:
		if rule.HasParams {
			text, errMsg := router.RewriteParams(rule.Name, tokens)
			if errMsg != "" {
				return e.reject(protocol.ErrorCodeInvalidParameter, errMsg, "malformed_parameter", reg)
			}
			command = text
		}
		// Typed commands skip the dangerous-command policy. Their text
		// reaches the adapter as written, or as RewriteParams rebuilt it
		// for a family with HasParams set.

	default: // router.KindPassthrough, including the unresolved-name fallback
		if err := CheckDangerous(command); err != nil {
			e.denylisted.Add(1)
			return e.reject(protocol.ErrorCodeInvalidParameter, err.Error(), "dangerous_command", reg)
		}
		if ok && rule.HasParams {
			text, errMsg := router.RewriteParams(rule.Name, tokens)
			if errMsg != "" {
				return e.reject(protocol.ErrorCodeInvalidParameter, errMsg, "malformed_parameter", reg)
			}
			command = text
		}
		command = Sanitize(command)
	}

	attempt := 0
	for {
		res := e.execOnce(ctx, command, timeout)
		if res.ErrorCode != protocol.ErrorCodeTimeout || attempt >= e.cfg.MaxRetries {
			if res.Success {
				e.succeeded.Add(1)
				e.breaker.RecordSuccess()
				reg.RecordCommand("success", float64(res.DurationMs)/1000)
			} else {
				e.failed.Add(1)
				if e.breaker.RecordFailure() {
					e.logger.Warn("circuit breaker opened", "command", command)
					reg.BreakerOpenEvents.Inc()
				}
				reg.RecordError(fmt.Sprintf("%d", res.ErrorCode))
				reg.RecordCommand("failure", float64(res.DurationMs)/1000)
			}
			res.Retried = attempt > 0
			return res
		}
		attempt++
		e.retried.Add(1)
		e.timedOut.Add(1)
		reg.RetriesTotal.Inc()
	}
}

// reject records a failed, adapter-never-invoked outcome — used for every
// validation rejection ahead of the retry loop (empty/oversized/sanitizer/
// dangerous-command/malformed-parameter).
func (e *Engine) reject(code protocol.ErrorCode, message, outcome string, reg *metrics.Registry) Result {
	e.failed.Add(1)
	res := Result{ErrorCode: code, ErrorMessage: message}
	reg.RecordError(fmt.Sprintf("%d", code))
	reg.RecordCommand(outcome, 0)
	return res
}

// runComposite implements the "!deadlock" composite: four
// fixed sub-commands run directly against the adapter, bypassing
// router/dangerous-command resolution, since none of their text is
// user-derived — with labeled sections concatenated into one Output.
func (e *Engine) runComposite(ctx context.Context, timeout time.Duration) Result {
	sections := []struct {
		label, command string
	}{
		{"List Threads", "~"},
		{"All Thread Stacks", "~*k"},
		{"Locks", "!locks"},
		{"Critical Sections", "!cs"},
	}

	var b strings.Builder
	start := time.Now()
	for _, s := range sections {
		res := e.execOnce(ctx, s.command, timeout)
		fmt.Fprintf(&b, "=== %s ===\n", s.label)
		if res.Success {
			b.WriteString(res.Output)
		} else {
			fmt.Fprintf(&b, "error: %s\n", res.ErrorMessage)
		}
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	duration := time.Since(start).Milliseconds()

	e.succeeded.Add(1)
	e.breaker.RecordSuccess()
	metrics.Get().RecordCommand("success", float64(duration)/1000)
	return Result{Success: true, Output: b.String(), DurationMs: duration}
}

func (e *Engine) execOnce(ctx context.Context, command string, timeout time.Duration) Result {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sink := capture.NewSink(func() {
		e.logger.Warn("command output truncated", "command", command)
		metrics.Get().OutputTruncations.Inc()
	})
	execRes, err := e.debugger.ExecuteTextCommand(callCtx, command, sink)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return Result{ErrorCode: protocol.ErrorCodeTimeout, ErrorMessage: "command execution timed out", DurationMs: duration}
		}
		return Result{ErrorCode: protocol.ErrorCodeInternalError, ErrorMessage: err.Error(), DurationMs: duration}
	}
	if !execRes.Success {
		return Result{
			ErrorCode:    protocol.ErrorCodeCommandFailed,
			ErrorMessage: fmt.Sprintf("debugger reported failure (hresult 0x%x)", uint32(execRes.HResult)),
			Output:       sink.Output(),
			DurationMs:   duration,
		}
	}
	return Result{Success: true, Output: sink.Output(), DurationMs: duration}
}

// SnapshotStats returns a consistent copy of the cumulative counters.
func (e *Engine) SnapshotStats() Stats {
	return Stats{
		Executed:           e.executed.Load(),
		Succeeded:          e.succeeded.Load(),
		Failed:             e.failed.Load(),
		Retried:            e.retried.Load(),
		DenylistRejections: e.denylisted.Load(),
		TimedOut:           e.timedOut.Load(),
		BreakerRejections:  e.breakerRej.Load(),
	}
}
