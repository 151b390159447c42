package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
	"github.com/vibedbg/vibedbg-ext/internal/router"
	"github.com/vibedbg/vibedbg-ext/internal/sessionstate"
	"github.com/vibedbg/vibedbg-ext/internal/simadapter"
)

func newTestEngine(t *testing.T, debugger adapter.Debugger, cfg Config) *Engine {
	t.Helper()
	tbl := router.Default()
	store := sessionstate.New(debugger, nil)
	e := New(cfg, debugger, tbl, store, nil)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestExecuteSyncKnownCommand(t *testing.T) {
	e := newTestEngine(t, simadapter.New(), DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "lm", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

// An unrecognized command name is not rejected: it falls through to
// generic pass-through and reaches the simulated adapter,
// which answers any unrecognized text with a successful "no export found".
func TestExecuteSyncUnknownCommandFallsThroughToPassthrough(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "frobnicate", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected pass-through success, got %+v", res)
	}
	if sim.CallCount() != 1 {
		t.Errorf("expected the adapter to be invoked once, got %d", sim.CallCount())
	}
}

// "ed 0x1000 0x41" is on the dangerous-command
// prefix set and must be rejected without ever invoking the adapter.
func TestExecuteSyncDangerousCommandRejected(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "ed 0x1000 0x41", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected dangerous command to fail")
	}
	if !strings.Contains(res.ErrorMessage, "unsafe") {
		t.Errorf("expected error message to contain %q, got %q", "unsafe", res.ErrorMessage)
	}
	if sim.CallCount() != 0 {
		t.Errorf("expected the adapter to never be invoked, got %d calls", sim.CallCount())
	}
	stats := e.SnapshotStats()
	if stats.DenylistRejections != 1 {
		t.Errorf("expected 1 dangerous-command rejection, got %d", stats.DenylistRejections)
	}
}

// .detach is itself on the dangerous-command prefix list, but the router
// resolves it as KindTyped, so the engine never runs it through
// CheckDangerous.
func TestExecuteSyncTypedCommandBypassesDangerousPolicy(t *testing.T) {
	e := newTestEngine(t, simadapter.New(), DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), ".detach", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected typed .detach to succeed, got %+v", res)
	}
}

func TestExecuteSyncRetriesOnceOnTimeout(t *testing.T) {
	sim := simadapter.New()
	sim.InjectFault(simadapter.Fault{Prefix: "g", Latency: 50 * time.Millisecond, Remaining: 1})
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	e := newTestEngine(t, sim, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := e.ExecuteSync(ctx, "g", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || !res.Retried {
		t.Fatalf("expected retried success, got %+v", res)
	}
	if sim.CallCount() != 2 {
		t.Errorf("expected exactly 2 calls (original + 1 retry), got %d", sim.CallCount())
	}
}

func TestExecuteSyncDoesNotRetryNonTimeoutError(t *testing.T) {
	sim := simadapter.New()
	sim.InjectFault(simadapter.Fault{Prefix: "g", Err: errors.New("boom")})
	e := newTestEngine(t, sim, DefaultConfig())

	res, err := e.ExecuteSync(context.Background(), "g", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Retried {
		t.Fatalf("expected single failed attempt, got %+v", res)
	}
	if sim.CallCount() != 1 {
		t.Errorf("expected exactly 1 call, got %d", sim.CallCount())
	}
}

func TestBreakerOpensAfterRepeatedTimeouts(t *testing.T) {
	sim := simadapter.New()
	sim.InjectFault(simadapter.Fault{Prefix: "g", Latency: 50 * time.Millisecond})
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Second
	e := newTestEngine(t, sim, cfg)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = e.ExecuteSync(ctx, "g", 5*time.Millisecond)
		cancel()
	}

	res, err := e.ExecuteSync(context.Background(), "g", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected breaker to reject the call")
	}
	stats := e.SnapshotStats()
	if stats.BreakerRejections != 1 {
		t.Errorf("expected 1 breaker rejection, got %d", stats.BreakerRejections)
	}
}

// A failing command does not abort the batch; the progress callback fires
// once per command and the aggregate counts reflect the mixed outcome.
func TestExecuteBatchContinuesPastFailures(t *testing.T) {
	e := newTestEngine(t, simadapter.New(), DefaultConfig())

	var progress []int
	batch, err := e.ExecuteBatch(context.Background(), []string{"lm", "ed 0x1000 0x41", "r"}, 0,
		func(completed, total int) {
			if total != 3 {
				t.Errorf("expected total 3, got %d", total)
			}
			progress = append(progress, completed)
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(batch.Results))
	}
	if batch.Successful != 2 || batch.Failed != 1 || batch.AllOK {
		t.Errorf("unexpected aggregate: %+v", batch)
	}
	if len(progress) != 3 || progress[0] != 1 || progress[2] != 3 {
		t.Errorf("unexpected progress sequence: %v", progress)
	}
}

// CancelAllPending resolves queued jobs without running them; the job that
// is already in flight completes normally.
func TestCancelAllPendingClearsQueueOnly(t *testing.T) {
	sim := simadapter.New()
	sim.InjectFault(simadapter.Fault{Prefix: "g", Latency: 100 * time.Millisecond})
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.MaxRetries = 0
	e := newTestEngine(t, sim, cfg)

	inflight, err := e.ExecuteAsync(context.Background(), "g", time.Second)
	if err != nil {
		t.Fatalf("enqueue in-flight: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	queued, err := e.ExecuteAsync(context.Background(), "lm", time.Second)
	if err != nil {
		t.Fatalf("enqueue pending: %v", err)
	}

	if n := e.CancelAllPending(); n != 1 {
		t.Fatalf("expected 1 canceled job, got %d", n)
	}
	select {
	case res := <-queued:
		if res.Success || !strings.Contains(res.ErrorMessage, "canceled") {
			t.Errorf("expected canceled result, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled job never resolved")
	}
	select {
	case res := <-inflight:
		if !res.Success {
			t.Errorf("expected in-flight job to complete, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight job never resolved")
	}
}

// Executed always equals Succeeded+Failed, across successes, validation
// rejections, adapter failures, and breaker rejections.
func TestStatsExecutedEqualsSucceededPlusFailed(t *testing.T) {
	sim := simadapter.New()
	sim.InjectFault(simadapter.Fault{Prefix: "r", Err: errors.New("boom"), Remaining: 1})
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.BreakerThreshold = 1
	cfg.BreakerCooldown = time.Minute
	e := newTestEngine(t, sim, cfg)

	for _, cmd := range []string{"lm", "ed 0x1000 0x41", "r", "k"} {
		if _, err := e.ExecuteSync(context.Background(), cmd, 0); err != nil {
			t.Fatalf("%q: %v", cmd, err)
		}
	}

	stats := e.SnapshotStats()
	if stats.Executed != stats.Succeeded+stats.Failed {
		t.Fatalf("invariant violated: executed=%d succeeded=%d failed=%d", stats.Executed, stats.Succeeded, stats.Failed)
	}
	if stats.BreakerRejections == 0 {
		t.Error("expected the final command to be rejected by the open breaker")
	}
}

func TestDefaultTimeoutForLongRunningPrefixes(t *testing.T) {
	e := newTestEngine(t, simadapter.New(), DefaultConfig())
	if got := e.defaultTimeoutFor("g"); got != longRunningTimeout {
		t.Errorf("g: got %s", got)
	}
	if got := e.defaultTimeoutFor("!analyze -v"); got != longRunningTimeout {
		t.Errorf("!analyze: got %s", got)
	}
	if got := e.defaultTimeoutFor("lm"); got != e.cfg.DefaultTimeout {
		t.Errorf("lm: got %s", got)
	}
	// "gu"/"gh"/"gn" are distinct commands, not the long-running "g".
	if got := e.defaultTimeoutFor("gu"); got != e.cfg.DefaultTimeout {
		t.Errorf("gu: got %s", got)
	}
}

func TestExecuteAsyncDeliversResult(t *testing.T) {
	e := newTestEngine(t, simadapter.New(), DefaultConfig())
	ch, err := e.ExecuteAsync(context.Background(), "lm", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case res := <-ch:
		if !res.Success {
			t.Fatalf("expected success, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async result")
	}
}

// The adapter is invoked with the text exactly
// "bp main" for a symbol argument.
func TestExecuteSyncRoutesBreakpointBySymbol(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "bp main", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if sim.LastCommand() != "bp main" {
		t.Errorf("expected adapter text %q, got %q", "bp main", sim.LastCommand())
	}
}

// The adapter is invoked with text starting
// "bp 0x7ffaa120" (hex formatting) for an address argument.
func TestExecuteSyncRoutesBreakpointByAddress(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "bp 0x7ffaa120", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.HasPrefix(sim.LastCommand(), "bp 0x7ffaa120") {
		t.Errorf("expected adapter text to start with %q, got %q", "bp 0x7ffaa120", sim.LastCommand())
	}
}

// "bc abc" fails to parse (the id is not decimal);
// the response text begins with "Error:" and echoes the malformed
// argument, and the adapter is never invoked.
func TestExecuteSyncMalformedBreakpointIDReturnsErrorPrefixed(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "bc abc", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected malformed breakpoint id to fail")
	}
	if !strings.HasPrefix(res.ErrorMessage, "Error:") {
		t.Errorf("expected Error: prefix, got %q", res.ErrorMessage)
	}
	if !strings.Contains(res.ErrorMessage, "abc") {
		t.Errorf("expected error to echo the malformed id, got %q", res.ErrorMessage)
	}
	if sim.CallCount() != 0 {
		t.Errorf("expected the adapter to never be invoked, got %d calls", sim.CallCount())
	}
}

// A command exactly 1024 bytes long is accepted.
func TestExecuteSyncAcceptsCommandAtLengthBoundary(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	cmd := strings.Repeat("a", maxCommandBytes)
	res, err := e.ExecuteSync(context.Background(), cmd, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected a 1024-byte command to be accepted, got %+v", res)
	}
	if sim.CallCount() != 1 {
		t.Errorf("expected the adapter to be invoked once, got %d", sim.CallCount())
	}
}

// A command one byte over 1024 is rejected without
// invoking the adapter.
func TestExecuteSyncRejectsCommandOverLengthBoundary(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	cmd := strings.Repeat("a", maxCommandBytes+1)
	res, err := e.ExecuteSync(context.Background(), cmd, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected a 1025-byte command to be rejected")
	}
	if sim.CallCount() != 0 {
		t.Errorf("expected the adapter to never be invoked, got %d calls", sim.CallCount())
	}
}

// Any command containing "rm " or "del " is rejected
// by the sanitizer and never reaches the adapter, independent of whether
// its leading token matches a dangerous prefix.
func TestExecuteSyncRejectsDestructiveFilesystemToken(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "!run rm -rf /tmp/demo", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected command containing a destructive filesystem token to be rejected")
	}
	if sim.CallCount() != 0 {
		t.Errorf("expected the adapter to never be invoked, got %d calls", sim.CallCount())
	}
}

// !deadlock runs four labeled sub-commands and concatenates their output,
// invoking the adapter once per sub-command.
func TestExecuteSyncDeadlockCompositeConcatenatesSections(t *testing.T) {
	sim := simadapter.New()
	e := newTestEngine(t, sim, DefaultConfig())
	res, err := e.ExecuteSync(context.Background(), "!deadlock", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	for _, label := range []string{"List Threads", "All Thread Stacks", "Locks", "Critical Sections"} {
		if !strings.Contains(res.Output, label) {
			t.Errorf("expected output to contain section %q, got %q", label, res.Output)
		}
	}
	if sim.CallCount() != 4 {
		t.Errorf("expected exactly 4 adapter calls, got %d", sim.CallCount())
	}
}
