package simadapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
)

type collectSink struct{ strings.Builder }

func (c *collectSink) Append(s string) { c.WriteString(s) }

func TestExecuteTextCommandRendersKnownPrefix(t *testing.T) {
	a := New()
	var sink collectSink
	res, err := a.ExecuteTextCommand(context.Background(), "lm", &sink)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if !strings.Contains(sink.String(), "demo.exe") {
		t.Errorf("expected module listing, got %q", sink.String())
	}
}

func TestExecuteTextCommandUnknownProducesNoExport(t *testing.T) {
	a := New()
	var sink collectSink
	_, err := a.ExecuteTextCommand(context.Background(), "frobnicate", &sink)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(sink.String(), "No export frobnicate found") {
		t.Errorf("got %q", sink.String())
	}
}

func TestInjectedFaultReturnsError(t *testing.T) {
	a := New()
	wantErr := errors.New("boom")
	a.InjectFault(Fault{Prefix: "!analyze", Err: wantErr, Remaining: 1})

	var sink collectSink
	_, err := a.ExecuteTextCommand(context.Background(), "!analyze", &sink)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected injected error, got %v", err)
	}

	// Fault consumed; next call succeeds.
	_, err = a.ExecuteTextCommand(context.Background(), "!analyze", &sink)
	if err != nil {
		t.Fatalf("expected fault to be single-use, got %v", err)
	}
}

func TestContextCancellationDuringLatency(t *testing.T) {
	a := New()
	a.InjectFault(Fault{Latency: 500 * time.Millisecond, Remaining: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var sink collectSink
	_, err := a.ExecuteTextCommand(ctx, "g", &sink)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestResolveSymbolAndSymbolAt(t *testing.T) {
	a := New()
	addr, err := a.ResolveSymbol(context.Background(), "main")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	info, err := a.SymbolAt(context.Background(), addr+0x10)
	if err != nil {
		t.Fatalf("symbol at: %v", err)
	}
	if info.Name != "main" || info.Displacement != 0x10 {
		t.Errorf("got %+v", info)
	}
}

func TestCurrentProcessAndThread(t *testing.T) {
	a := New()
	p, err := a.CurrentProcess(context.Background())
	if err != nil || p.PID == 0 {
		t.Fatalf("process: %+v %v", p, err)
	}
	th, err := a.CurrentThread(context.Background())
	if err != nil || !th.IsCurrent {
		t.Fatalf("thread: %+v %v", th, err)
	}
}

func TestDetachReleasesProcessHandle(t *testing.T) {
	a := New()
	if !a.AttachedHandleValid() {
		t.Fatal("expected handle valid before detach")
	}
	var sink collectSink
	if _, err := a.ExecuteTextCommand(context.Background(), ".detach", &sink); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.AttachedHandleValid() {
		t.Error("expected handle released after .detach")
	}
}

func TestKillReleasesProcessHandleIdempotently(t *testing.T) {
	a := New()
	var sink collectSink
	if _, err := a.ExecuteTextCommand(context.Background(), ".kill", &sink); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.AttachedHandleValid() {
		t.Error("expected handle released after .kill")
	}
	if _, err := a.ExecuteTextCommand(context.Background(), ".kill", &sink); err != nil {
		t.Fatalf("second kill should be a harmless no-op, got: %v", err)
	}
}

var _ adapter.Debugger = (*Adapter)(nil)
