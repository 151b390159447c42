package adapter

import (
	"context"
	"sync"
)

// SerializingDebugger wraps a Debugger and serializes every call behind a
// single mutex. The host debugger documents no thread-safety contract for
// concurrent command execution, so the extension controller wraps every
// adapter in this before handing it to the engine's workers.
type SerializingDebugger struct {
	mu       sync.Mutex
	delegate Debugger
}

// Serialize wraps d so that only one call runs against it at a time.
func Serialize(d Debugger) *SerializingDebugger {
	return &SerializingDebugger{delegate: d}
}

func (s *SerializingDebugger) ExecuteTextCommand(ctx context.Context, text string, sink Sink) (ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.ExecuteTextCommand(ctx, text, sink)
}

func (s *SerializingDebugger) ReadMemory(ctx context.Context, addr uint64, length uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.ReadMemory(ctx, addr, length)
}

func (s *SerializingDebugger) ResolveSymbol(ctx context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.ResolveSymbol(ctx, name)
}

func (s *SerializingDebugger) SymbolAt(ctx context.Context, addr uint64) (SymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.SymbolAt(ctx, addr)
}

func (s *SerializingDebugger) CurrentProcess(ctx context.Context) (ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.CurrentProcess(ctx)
}

func (s *SerializingDebugger) CurrentThread(ctx context.Context) (ThreadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.CurrentThread(ctx)
}

var _ Debugger = (*SerializingDebugger)(nil)
