package machine

import "strings"

// RuntimeError is what Run returns when the VM aborts mid-execution: a type
// mismatch, undefined variable, bad call, arity mismatch, or stack overflow.
// It carries the formatted stack trace spec.md §7 requires, one line per
// call frame from innermost to outermost: "[line N] in <name>(<arity>)" or
// "[line N] in script" for the top-level frame.
type RuntimeError struct {
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, l := range e.Trace {
		b.WriteByte('\n')
		b.WriteString(l)
	}
	return b.String()
}
