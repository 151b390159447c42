// Package sessionstate holds the session state entity: a
// thread-safe, lazily-initialized snapshot of connection status and the
// current process/thread, shared multi-reader/single-writer across the
// pipe server's workers and the engine.
package sessionstate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
)

// ProcessInfo is the optional current-process snapshot.
type ProcessInfo struct {
	PID        uint32
	Name       string
	ImagePath  string
	Attached   bool
	AttachTime time.Time
}

// ThreadInfo is the optional current-thread snapshot.
type ThreadInfo struct {
	TID       uint32
	PID       uint32
	IsCurrent bool
	State     string
}

// Snapshot is an immutable copy of the session state entity.
type Snapshot struct {
	Connected      bool
	TargetRunning  bool
	SessionStart   time.Time
	CurrentProcess *ProcessInfo
	CurrentThread  *ThreadInfo
	Metadata       map[string]any
}

// SuggestedCommands is the fixed ordered list of common user-mode debugger
// primitives returned by Store.SuggestedCommandsList.
var SuggestedCommands = []string{
	"k",   // stack trace
	"r",   // registers
	"u",   // unassemble/disassembly
	"d",   // display memory
	"~",   // list threads
	"lm",  // list modules
	"bp",  // set breakpoint
	"g",   // continue
	"p",   // step over
	"t",   // step into
}

// Store holds the Session state entity behind a shared-exclusive lock.
// Initialization of the sub-queries (current process/thread) is deferred to
// the first read; a failed sub-query leaves the corresponding optional
// field nil and the store is still considered initialized afterward.
type Store struct {
	mu           sync.RWMutex
	initialized  atomic.Bool
	state        Snapshot
	debugger     adapter.Debugger
	logger       logging.Logger
}

// New constructs a Store bound to debugger. Construction never queries the
// debugger — that happens lazily on first Snapshot() call, so the
// controller can construct the store before the debugger has a current
// process to report.
func New(debugger adapter.Debugger, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		debugger: debugger,
		logger:   logger,
		state: Snapshot{
			SessionStart: time.Now(),
			Metadata:     map[string]any{},
		},
	}
}

// Snapshot returns a copy of the current session state, initializing it on
// first call.
func (s *Store) Snapshot(ctx context.Context) Snapshot {
	s.ensureInitialized(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.state)
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := in
	if in.CurrentProcess != nil {
		p := *in.CurrentProcess
		out.CurrentProcess = &p
	}
	if in.CurrentThread != nil {
		t := *in.CurrentThread
		out.CurrentThread = &t
	}
	out.Metadata = make(map[string]any, len(in.Metadata))
	for k, v := range in.Metadata {
		out.Metadata[k] = v
	}
	return out
}

func (s *Store) ensureInitialized(ctx context.Context) {
	if s.initialized.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized.Load() {
		return
	}

	s.state.Connected = true
	s.state.TargetRunning = true

	if proc, err := s.debugger.CurrentProcess(ctx); err == nil {
		s.state.CurrentProcess = &ProcessInfo{
			PID:        proc.PID,
			Name:       proc.Name,
			ImagePath:  proc.ImagePath,
			Attached:   proc.Attached,
			AttachTime: time.Now(),
		}
	} else {
		s.logger.Debug("sessionstate: current process unavailable during lazy init", "error", err)
	}

	if thr, err := s.debugger.CurrentThread(ctx); err == nil {
		s.state.CurrentThread = &ThreadInfo{
			TID:       thr.TID,
			PID:       thr.PID,
			IsCurrent: thr.IsCurrent,
			State:     thr.State,
		}
	} else {
		s.logger.Debug("sessionstate: current thread unavailable during lazy init", "error", err)
	}

	s.initialized.Store(true)
}

// Update replaces the stored snapshot wholesale (the sole-writer path aside
// from lazy init).
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cloneSnapshot(snap)
	s.initialized.Store(true)
}

// SwitchToThread updates the current-thread field to reflect a thread
// switch, creating it if no thread was known yet.
func (s *Store) SwitchToThread(tid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentThread != nil {
		s.state.CurrentThread.TID = tid
		s.state.CurrentThread.IsCurrent = true
	} else {
		pid := uint32(0)
		if s.state.CurrentProcess != nil {
			pid = s.state.CurrentProcess.PID
		}
		s.state.CurrentThread = &ThreadInfo{TID: tid, PID: pid, IsCurrent: true, State: "running"}
	}
}

// SuggestedCommandsList returns a copy of the fixed suggested-command list.
func (s *Store) SuggestedCommandsList() []string {
	out := make([]string, len(SuggestedCommands))
	copy(out, SuggestedCommands)
	return out
}
