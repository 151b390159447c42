// Package simadapter implements adapter.Debugger against an in-memory,
// deterministic fake debugging session. It is the load-bearing seam the
// rest of the system — engine, router, pipe server — is exercised through
// in the absence of a real DbgEng binding.
package simadapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
	"github.com/vibedbg/vibedbg-ext/internal/oshandle"
)

// Fault lets tests inject a failure for the next N matching commands.
type Fault struct {
	// Prefix matches commands whose lowercased text starts with this
	// string; empty matches every command.
	Prefix string
	Err    error
	// Latency, if set, is slept before the fault (or success) is
	// returned, to exercise the engine's timeout path.
	Latency time.Duration
	// Remaining is how many more calls this fault applies to; 0 means
	// unlimited.
	Remaining int
}

// Adapter is a goroutine-safe simulated debugger.
type Adapter struct {
	mu        sync.Mutex
	processes []adapter.ProcessInfo
	threads   []adapter.ThreadInfo
	symbols   map[string]uint64
	modules   []string
	faults    []Fault
	calls     int
	lastCmd   string

	// processHandle models the OS handle the original extension holds for
	// its attached target (original_source/ext/src/core/session_manager.cpp
	// keeps the process HANDLE alive for the duration of the attach). A
	// real adapter would Adopt() the HANDLE WinDbg's client hands it;
	// simulated attach just adopts a placeholder value so .detach/.kill
	// exercise the same release path a live adapter would.
	processHandle *oshandle.Owner
}

// New returns a simulated adapter with a small fixed attached process, two
// threads, and a handful of resolvable symbols — enough to drive every
// router-recognized command without a live target.
func New() *Adapter {
	return &Adapter{
		processes: []adapter.ProcessInfo{
			{PID: 4242, Name: "demo.exe", ImagePath: `C:\demo\demo.exe`, Attached: true},
		},
		threads: []adapter.ThreadInfo{
			{TID: 1, PID: 4242, IsCurrent: true, State: "running"},
			{TID: 2, PID: 4242, IsCurrent: false, State: "waiting"},
		},
		symbols: map[string]uint64{
			"main":               0x140001000,
			"demo!main":          0x140001000,
			"ntdll!RtlUserThread": 0x7ffa00001000,
		},
		modules:       []string{"demo.exe", "ntdll.dll", "kernel32.dll"},
		processHandle: oshandle.Adopt(oshandle.Handle(0x1000), func(oshandle.Handle) error { return nil }),
	}
}

// AttachedHandleValid reports whether the simulated process handle is still
// held, i.e. whether .detach or .kill has run yet. Exposed for tests;
// mirrors the real adapter's sense of "is the target still attached".
func (a *Adapter) AttachedHandleValid() bool {
	return a.processHandle.Valid()
}

// InjectFault queues f to apply to the next matching ExecuteTextCommand
// call(s).
func (a *Adapter) InjectFault(f Fault) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faults = append(a.faults, f)
}

func (a *Adapter) takeFault(command string) *Fault {
	a.mu.Lock()
	defer a.mu.Unlock()
	lower := strings.ToLower(command)
	for i := range a.faults {
		f := &a.faults[i]
		if f.Prefix == "" || strings.HasPrefix(lower, strings.ToLower(f.Prefix)) {
			if f.Remaining == 1 {
				out := *f
				a.faults = append(a.faults[:i], a.faults[i+1:]...)
				return &out
			}
			if f.Remaining > 1 {
				f.Remaining--
			}
			out := *f
			return &out
		}
	}
	return nil
}

func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// LastCommand returns the text of the most recent ExecuteTextCommand call,
// i.e. what the engine actually sent after router rewriting. Exposed for
// tests that assert on the rewritten form of a parameterized command.
func (a *Adapter) LastCommand() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCmd
}

// ExecuteTextCommand produces canned output for the prefixes the router
// recognizes and for a small set of raw pass-through commands, honoring
// context cancellation so the engine's timeout path is real.
func (a *Adapter) ExecuteTextCommand(ctx context.Context, text string, sink adapter.Sink) (adapter.ExecResult, error) {
	a.mu.Lock()
	a.calls++
	a.lastCmd = text
	a.mu.Unlock()

	if fault := a.takeFault(text); fault != nil {
		if fault.Latency > 0 {
			select {
			case <-time.After(fault.Latency):
			case <-ctx.Done():
				return adapter.ExecResult{}, ctx.Err()
			}
		}
		if fault.Err != nil {
			return adapter.ExecResult{}, fault.Err
		}
	}

	select {
	case <-ctx.Done():
		return adapter.ExecResult{}, ctx.Err()
	default:
	}

	out := a.render(text)
	sink.Append(out)
	return adapter.ExecResult{Success: true, RawOutput: out}, nil
}

func (a *Adapter) render(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case lower == "lm" || lower == "!modules":
		var b strings.Builder
		for _, m := range a.modules {
			fmt.Fprintf(&b, "00000000`00000000 00000000`00001000   %s\n", m)
		}
		return b.String()
	case strings.HasPrefix(lower, "k"):
		return "Child-SP          RetAddr           Call Site\n" +
			"00000000`0010fa00 00007ffa`00010203 demo!main+0x10\n"
	case strings.HasPrefix(lower, "~"):
		var b strings.Builder
		for _, t := range a.threads {
			marker := "  "
			if t.IsCurrent {
				marker = ". "
			}
			fmt.Fprintf(&b, "%s%d  Id: %d.%d  %s\n", marker, t.TID, t.PID, t.TID, t.State)
		}
		return b.String()
	case lower == "!process" || lower == "!processes":
		var b strings.Builder
		for _, p := range a.processes {
			fmt.Fprintf(&b, "PROCESS %08x  Pid %d  Image: %s\n", p.PID, p.PID, p.Name)
		}
		return b.String()
	case lower == "r":
		return "rax=0000000000000000 rbx=0000000000000000 rcx=0000000000000000\n"
	case lower == "bl":
		return "No breakpoints set.\n"
	case lower == "g" || lower == "p" || lower == "t" || lower == "gu" || lower == "gh" || lower == "gn":
		return "\n"
	case lower == ".detach":
		_ = a.processHandle.Close()
		return "Detached from process.\n"
	case lower == ".kill":
		_ = a.processHandle.Close()
		return "Process terminated.\n"
	case lower == ".restart":
		return "Restarting process.\n"
	case strings.HasPrefix(lower, ".attach"):
		return "Attached to process.\n"
	case strings.HasPrefix(lower, ".create"):
		return "Created process.\n"
	case strings.HasPrefix(lower, ".dump"):
		return "Dump file loaded.\n"
	case strings.HasPrefix(lower, "bp ") || strings.HasPrefix(lower, "bc ") ||
		strings.HasPrefix(lower, "bd ") || strings.HasPrefix(lower, "be "):
		return "\n"
	case strings.HasPrefix(lower, "db ") || strings.HasPrefix(lower, "dd ") ||
		strings.HasPrefix(lower, "dw ") || strings.HasPrefix(lower, "dq "):
		return "00000000`00001000  00 01 02 03 04 05 06 07-08 09 0a 0b 0c 0d 0e 0f\n"
	case lower == "!analyze":
		return "FAULTING_IP:\ndemo!main+0x10\nBucket: SIMPLE_FAULT\n"
	default:
		return "^ No export " + firstToken(text) + " found\n"
	}
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return text
	}
	return fields[0]
}

func (a *Adapter) ReadMemory(ctx context.Context, addr uint64, length uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = byte((addr + uint64(i)) & 0xff)
	}
	return buf, nil
}

func (a *Adapter) ResolveSymbol(ctx context.Context, name string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.symbols[name]
	if !ok {
		return 0, fmt.Errorf("symbol not found: %s", name)
	}
	return addr, nil
}

var errNoSymbolNear = errors.New("no symbol found near address")

func (a *Adapter) SymbolAt(ctx context.Context, addr uint64) (adapter.SymbolInfo, error) {
	if err := ctx.Err(); err != nil {
		return adapter.SymbolInfo{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	type candidate struct {
		name string
		base uint64
	}
	var candidates []candidate
	for name, base := range a.symbols {
		if base <= addr {
			candidates = append(candidates, candidate{name, base})
		}
	}
	if len(candidates) == 0 {
		return adapter.SymbolInfo{}, errNoSymbolNear
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].base != candidates[j].base {
			return candidates[i].base > candidates[j].base
		}
		if len(candidates[i].name) != len(candidates[j].name) {
			return len(candidates[i].name) < len(candidates[j].name)
		}
		return candidates[i].name < candidates[j].name
	})
	best := candidates[0]
	return adapter.SymbolInfo{Name: best.name, Displacement: addr - best.base}, nil
}

func (a *Adapter) CurrentProcess(ctx context.Context) (adapter.ProcessInfo, error) {
	if err := ctx.Err(); err != nil {
		return adapter.ProcessInfo{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.processes) == 0 {
		return adapter.ProcessInfo{}, errors.New("no current process")
	}
	return a.processes[0], nil
}

func (a *Adapter) CurrentThread(ctx context.Context) (adapter.ThreadInfo, error) {
	if err := ctx.Err(); err != nil {
		return adapter.ThreadInfo{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.threads {
		if t.IsCurrent {
			return t, nil
		}
	}
	return adapter.ThreadInfo{}, errors.New("no current thread")
}

var _ adapter.Debugger = (*Adapter)(nil)
