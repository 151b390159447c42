// Package adapter defines the seam between the command engine and the host
// debugger. Nothing in this package or its callers references a native
// debugger interface by name — a real binding (DbgEng via cgo, on Windows)
// implements Debugger without this package knowing anything about COM.
package adapter

import "context"

// ExecResult is the outcome of a single text-command execution.
type ExecResult struct {
	Success   bool
	RawOutput string
	// HResult carries the native status code when a real adapter is
	// backing this call; 0 for the simulated adapter's successes.
	HResult int32
}

// ProcessInfo mirrors the subset of process state the session store needs.
type ProcessInfo struct {
	PID        uint32
	Name       string
	ImagePath  string
	Attached   bool
}

// ThreadInfo mirrors the subset of thread state the session store needs.
type ThreadInfo struct {
	TID       uint32
	PID       uint32
	IsCurrent bool
	State     string
}

// SymbolInfo is the result of resolving an address to symbol+displacement.
type SymbolInfo struct {
	Name         string
	Displacement uint64
}

// Debugger is the thin seam to the host debugger. Every operation returns a
// status alongside its result; none of them panic. ctx bounds how long the
// caller will wait; an implementation that never checks ctx.Done() leaves
// callers unable to enforce any timeout at all.
type Debugger interface {
	// ExecuteTextCommand runs text as a WinDbg command, routing its
	// console output into sink for the duration of the call.
	ExecuteTextCommand(ctx context.Context, text string, sink Sink) (ExecResult, error)
	ReadMemory(ctx context.Context, addr uint64, length uint32) ([]byte, error)
	ResolveSymbol(ctx context.Context, name string) (uint64, error)
	SymbolAt(ctx context.Context, addr uint64) (SymbolInfo, error)
	CurrentProcess(ctx context.Context) (ProcessInfo, error)
	CurrentThread(ctx context.Context) (ThreadInfo, error)
}

// Sink is the narrow capture.Sink surface the adapter package needs,
// declared locally to avoid an import cycle with internal/capture (which a
// real cgo-backed adapter also depends on for capture.InstallScoped).
type Sink interface {
	Append(text string)
}
