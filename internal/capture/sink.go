// Package capture implements the output capture sink: a transient buffer
// installed as the debugger's text-output callback for the duration of one
// command invocation.
package capture

import (
	"strings"
	"sync"
)

// MaxOutputSize is the cap on captured bytes before truncation kicks in.
const MaxOutputSize = 1024 * 1024

// TruncationSentinel is appended, verbatim, the moment the cap is hit.
const TruncationSentinel = "[Output truncated - maximum size exceeded]"

const (
	warningNeedle    = ".cache forcedecodeuser is not enabled"
	extensionNeedle  = "is not extension gallery command"
	noExportNeedleA  = "No export"
	noExportNeedleB  = "found"
)

// Sink accumulates text chunks from the debugger's output callback. It is
// safe to call Append from any thread; it is scoped to a single command
// invocation and must never be shared across commands.
type Sink struct {
	mu              sync.Mutex
	buf             strings.Builder
	truncated       bool
	sawWarning      bool
	sawExtensionErr bool
	sawExportErr    bool
	onTruncate      func()
}

// NewSink returns an empty Sink. onTruncate, if non-nil, is invoked exactly
// once the first time the output cap is hit — the seam metrics hooks into.
func NewSink(onTruncate func()) *Sink {
	return &Sink{onTruncate: onTruncate}
}

// Append adds a chunk of captured text, applying the size cap and the
// three line classifications, each rewritten at most once per capture.
func (s *Sink) Append(chunk string) {
	if chunk == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.truncated {
		return
	}
	if s.buf.Len()+len(chunk) > MaxOutputSize {
		s.buf.WriteString(TruncationSentinel)
		s.truncated = true
		if s.onTruncate != nil {
			s.onTruncate()
		}
		return
	}
	s.buf.WriteString(s.classify(chunk))
}

func (s *Sink) classify(line string) string {
	switch {
	case !s.sawWarning && strings.Contains(line, warningNeedle):
		s.sawWarning = true
		return "Note: " + line
	case !s.sawExtensionErr && strings.Contains(line, extensionNeedle):
		s.sawExtensionErr = true
		return rewriteExtensionError(line)
	case !s.sawExportErr && strings.Contains(line, noExportNeedleA) && strings.Contains(line, noExportNeedleB):
		s.sawExportErr = true
		return rewriteExportError(line)
	default:
		return line
	}
}

func rewriteExtensionError(line string) string {
	idx := strings.Index(line, extensionNeedle)
	if idx < 0 {
		return line
	}
	cmdName := strings.TrimSpace(line[:idx])
	if cmdName == "modinfo" {
		return "Note: The !modinfo command is not available. Using alternative lmv command instead.\n"
	}
	return "Error: Command '" + cmdName + "' is not available. Make sure the required extension is loaded.\n"
}

func rewriteExportError(line string) string {
	const prefix = "No export "
	start := strings.Index(line, prefix)
	if start < 0 {
		return line
	}
	start += len(prefix)
	end := strings.Index(line[start:], " found")
	if end < 0 {
		return line
	}
	cmdName := line[start : start+end]
	return "Note: Command '" + cmdName + "' is not available in the current debugging context.\n"
}

// Output returns everything captured so far.
func (s *Sink) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Truncated reports whether the size cap has been hit.
func (s *Sink) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

// Reset clears the buffer and classification state so the sink can be
// reused for a fresh capture, resuming the drop-all-chunks behavior only
// until Reset is called.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.truncated = false
	s.sawWarning = false
	s.sawExtensionErr = false
	s.sawExportErr = false
}
