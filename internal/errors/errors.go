// Package errors defines the diagnostic types shared by the compiler and
// the virtual machine: compile errors collected per source, and runtime
// errors carrying a synthesized call trace.
package errors

import (
	"fmt"
	"strings"
)

// CompileError is one diagnostic produced while scanning or compiling.
// Where names the offending token; it is empty for malformed tokens that
// carry their own message. AtEnd marks errors raised at end of input.
type CompileError struct {
	Line    int
	Where   string
	AtEnd   bool
	Message string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[line %d] Error", e.Line)
	if e.AtEnd {
		sb.WriteString(" at end of file")
	} else if e.Where != "" {
		fmt.Fprintf(&sb, " at '%s'", e.Where)
	}
	fmt.Fprintf(&sb, ": %s", e.Message)
	return sb.String()
}

// CompileErrorList collects every diagnostic for one source text, so a
// single run can surface multiple independent errors.
type CompileErrorList struct {
	Errors []*CompileError
}

func (l *CompileErrorList) Add(err *CompileError) {
	l.Errors = append(l.Errors, err)
}

func (l *CompileErrorList) HasErrors() bool {
	return len(l.Errors) > 0
}

func (l *CompileErrorList) Error() string {
	msgs := make([]string, len(l.Errors))
	for i, err := range l.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// StackFrame is one entry of a runtime error trace: the function the frame
// was executing and the line it had reached.
type StackFrame struct {
	Function string
	Line     int
}

// RuntimeError is fatal to the interpret call that raised it. Trace lists
// the active frames innermost first.
type RuntimeError struct {
	Message string
	Trace   []StackFrame
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, frame := range e.Trace {
		name := frame.Function
		if name == "" {
			name = "script"
		} else {
			name = name + "()"
		}
		fmt.Fprintf(&sb, "\n[line %d] in %s", frame.Line, name)
	}
	return sb.String()
}
