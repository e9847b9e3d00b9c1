package interpreter

import (
	"context"
	"errors"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// Evaluator resolves meta G-code expressions: `if`/`elif`/`while`
// conditions, `var`/`set` right-hand sides, and `{expr}` interpolation
// inside echoed text. It is the one capability the interpreter never
// implements itself: the object-model store and firmware variable
// namespace it must consult live outside this package.
type Evaluator interface {
	// Evaluate resolves code's expression (held in code.KeywordArg) and
	// returns its textual result. When expectBool is true, the caller
	// requires the result to parse as "true" or "false".
	Evaluate(code *gcode.Code, expectBool bool) (string, error)
}

// Flusher waits for every code previously read for channel to reach a
// terminal state before the interpreter re-seeks the underlying file,
// so a loop body's side effects are fully applied before it repeats.
type Flusher interface {
	Flush(ctx context.Context, channel gcode.Channel) error
}

// VariableScope clears variables declared with `var` or `global` when
// their owning block is popped off the stack.
type VariableScope interface {
	ClearLocals(names []string)
}

// ErrBreakOutsideLoop and ErrContinueOutsideLoop are returned by
// ReadCode to tell the caller a break/continue was seen with no
// enclosing while block.
var (
	ErrBreakOutsideLoop    = errors.New("interpreter: break outside while loop")
	ErrContinueOutsideLoop = errors.New("interpreter: continue outside while loop")
	ErrElseWithoutIf       = errors.New("interpreter: elif/else without matching if")
	ErrEmptyWhileBody      = errors.New("interpreter: while loop has no body")
	ErrNotInLoop           = errors.New("interpreter: not currently inside a while loop")
)

// AbortError is returned from ReadCode when an `abort` keyword is
// encountered; Message is the optional abort text.
type AbortError struct {
	Message string
}

func (e *AbortError) Error() string {
	if e.Message == "" {
		return "interpreter: aborted"
	}
	return "interpreter: aborted: " + e.Message
}
