// Package router maps raw command text to a handler Kind and arity
// through a prefix/arity/handler table.
package router

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes how the engine should execute a matched command.
type Kind int

const (
	// KindPassthrough sends the raw command text to the debugger adapter
	// unchanged (after sanitization) and is subject to the denylist.
	KindPassthrough Kind = iota
	// KindTyped skips the denylist. Its text is sent as written, except
	// for a family with HasParams set, which RewriteParams rebuilds from
	// the parsed argument.
	KindTyped
	// KindComposite runs a small fixed sequence of other commands and
	// aggregates their output (e.g. deadlock analysis).
	KindComposite
)

// Rule describes one recognized command family.
type Rule struct {
	Name string
	Kind Kind
	// MinArgs/MaxArgs bound the number of whitespace-separated tokens
	// after the command name; -1 means unbounded. Informational only —
	// Resolve no longer rejects on arity; a family with HasParams set
	// reports its own malformed-argument errors via RewriteParams.
	MinArgs, MaxArgs int
	// HasParams marks a family whose argument needs parsing/rewriting
	// (hex address vs. symbol, decimal id, hex pid, memory-display
	// size) before the command reaches the adapter. RewriteParams
	// dispatches on Name for every rule with HasParams set.
	HasParams bool
}

// Table is an ordered, case-insensitive lookup from a command's leading
// token to its Rule.
type Table struct {
	byName map[string]Rule
}

// Default returns the fixed command table covering every family the
// original command surface documents: stack variants, thread listing,
// process listing, module listing, registers, execution control, the
// breakpoint family, attach/detach/kill/restart/create/dump, memory
// display, crash analysis, and the deadlock-analysis composite.
func Default() *Table {
	t := &Table{byName: map[string]Rule{}}

	passthrough := func(names []string, min, max int) {
		for _, n := range names {
			t.byName[n] = Rule{Name: n, Kind: KindPassthrough, MinArgs: min, MaxArgs: max}
		}
	}
	passthroughParams := func(names []string, min, max int) {
		for _, n := range names {
			t.byName[n] = Rule{Name: n, Kind: KindPassthrough, MinArgs: min, MaxArgs: max, HasParams: true}
		}
	}
	typed := func(names []string, min, max int) {
		for _, n := range names {
			t.byName[n] = Rule{Name: n, Kind: KindTyped, MinArgs: min, MaxArgs: max}
		}
	}
	typedParams := func(names []string, min, max int) {
		for _, n := range names {
			t.byName[n] = Rule{Name: n, Kind: KindTyped, MinArgs: min, MaxArgs: max, HasParams: true}
		}
	}

	passthrough([]string{"k", "kn", "kl", "kp", "kv"}, 0, 2)
	passthrough([]string{"~"}, 0, 1)
	passthrough([]string{"!process", "!processes"}, 0, 1)
	passthrough([]string{"lm", "!modules"}, 0, 1)
	passthrough([]string{"r"}, 0, 1)
	passthrough([]string{"g", "p", "t", "gu", "gh", "gn"}, 0, 1)
	passthrough([]string{"bl"}, 0, 0)
	passthroughParams([]string{"bc", "bd", "be"}, 1, 1)
	passthroughParams([]string{"bp"}, 1, 3)
	passthroughParams([]string{"db", "dd", "dw", "dq"}, 1, 2)
	passthrough([]string{"!analyze"}, 0, 2)
	passthrough([]string{".shell"}, 0, -1)
	passthrough([]string{".dbgeng"}, 0, -1)
	passthrough([]string{"!load"}, 1, 1)
	passthrough([]string{".load"}, 1, 1)

	typed([]string{".detach"}, 0, 0)
	typed([]string{".kill"}, 0, 0)
	typed([]string{".restart"}, 0, 0)
	typedParams([]string{".attach"}, 1, 1)
	typed([]string{".create"}, 1, -1)
	typed([]string{".dump"}, 1, 1)

	t.byName["!deadlock"] = Rule{Name: "!deadlock", Kind: KindComposite, MinArgs: 0, MaxArgs: 0}

	return t
}

// Resolve splits command into tokens and looks up its leading token. ok
// reports whether the leading token names a recognized family; it is not
// an arity check. A false ok means "no typed handler recognizes this
// command" — the caller (the engine) is expected to fall through to
// generic pass-through in that case, not reject the command. An empty
// command never resolves.
func (t *Table) Resolve(command string) (rule Rule, tokens []string, ok bool) {
	tokens = strings.Fields(command)
	if len(tokens) == 0 {
		return Rule{}, tokens, false
	}
	r, found := t.byName[strings.ToLower(tokens[0])]
	if !found {
		return Rule{}, tokens, false
	}
	return r, tokens, true
}

// Lookup returns the Rule for name, used by callers that already know the
// name (e.g. the composite handler invoking a sub-command it built
// itself).
func (t *Table) Lookup(name string) (Rule, bool) {
	r, ok := t.byName[strings.ToLower(name)]
	return r, ok
}

// RewriteParams parses and rewrites the arguments of a parameterized
// command family. It returns either a rewritten command
// text ready for the adapter, or a non-empty errMsg starting with "Error:"
// describing a malformed argument — in the error case the adapter must
// not be invoked. tokens is the full token slice including the command
// name at index 0.
func RewriteParams(name string, tokens []string) (text string, errMsg string) {
	switch strings.ToLower(name) {
	case "bp":
		return rewriteBreakpointSet(tokens)
	case "bc", "bd", "be":
		return rewriteBreakpointID(tokens)
	case ".attach":
		return rewriteAttach(tokens)
	case "db", "dd", "dw", "dq":
		return rewriteMemoryDisplay(tokens)
	default:
		return strings.Join(tokens, " "), ""
	}
}

func rewriteBreakpointSet(tokens []string) (string, string) {
	if len(tokens) < 2 {
		return "", fmt.Sprintf("Error: bp requires an address or symbol, got %q", strings.Join(tokens, " "))
	}
	arg := tokens[1]
	if looksLikeHex(arg) {
		addr, err := parseHexUint(arg)
		if err != nil {
			return "", fmt.Sprintf("Error: malformed address %q for bp: %v", arg, err)
		}
		return fmt.Sprintf("bp 0x%x", addr), ""
	}
	return "bp " + arg, ""
}

func rewriteBreakpointID(tokens []string) (string, string) {
	name := strings.ToLower(tokens[0])
	if len(tokens) < 2 {
		return "", fmt.Sprintf("Error: %s requires a breakpoint id, got %q", name, strings.Join(tokens, " "))
	}
	id, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		return "", fmt.Sprintf("Error: malformed breakpoint id %q for %s: %v", tokens[1], name, err)
	}
	return fmt.Sprintf("%s %d", name, id), ""
}

func rewriteAttach(tokens []string) (string, string) {
	if len(tokens) < 2 {
		return "", fmt.Sprintf("Error: .attach requires a process id, got %q", strings.Join(tokens, " "))
	}
	pid, err := parseHexUint(tokens[1])
	if err != nil {
		return "", fmt.Sprintf("Error: malformed process id %q for .attach: %v", tokens[1], err)
	}
	return fmt.Sprintf(".attach 0x%x", pid), ""
}

func rewriteMemoryDisplay(tokens []string) (string, string) {
	name := strings.ToLower(tokens[0])
	if len(tokens) < 2 {
		return "", fmt.Sprintf("Error: %s requires an address, got %q", name, strings.Join(tokens, " "))
	}
	addr, err := parseHexUint(tokens[1])
	if err != nil {
		return "", fmt.Sprintf("Error: malformed address %q for %s: %v", tokens[1], name, err)
	}

	const defaultSize = 0x100
	count := uint64(defaultSize)
	switch name {
	case "dw":
		count = defaultSize * 2
	case "dq":
		count = defaultSize * 8
	}

	if len(tokens) >= 3 {
		parsed, err := parseHexCount(tokens[2])
		if err != nil {
			return "", fmt.Sprintf("Error: malformed count %q for %s: %v", tokens[2], name, err)
		}
		count = parsed
		switch name {
		case "dw":
			count *= 2
		case "dq":
			count *= 8
		}
	}

	return fmt.Sprintf("%s 0x%x L0x%x", name, addr, count), ""
}

// looksLikeHex reports whether arg should be parsed as a hex address: it
// matches a hex prefix (0x/0X) or starts with a hex digit. This rule
// alone cannot distinguish an address from an all-hex-digit symbol name.
func looksLikeHex(arg string) bool {
	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		return true
	}
	if arg == "" {
		return false
	}
	return isHexDigit(arg[0])
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func parseHexUint(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(trimmed, 16, 64)
}

// parseHexCount parses an optional "L<hex-count>" memory-display length
// token, accepting either the "L"-prefixed form or a bare hex number.
func parseHexCount(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "L")
	s = strings.TrimPrefix(s, "l")
	return parseHexUint(s)
}
