package interpreter

import (
	"context"
	"io"
	"strings"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// ReadSeekCloser is what a macro/job-file resolver hands the scheduler:
// a seekable stream the Reader can rewind for a while loop, closed once
// the macro stack frame is popped.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// Reader is a conditional G-code file interpreter: it turns a
// byte stream into a sequence of Codes, evaluating if/elif/else/while
// control flow inline and re-seeking the underlying stream to repeat a
// loop body, the way RepRapFirmware's own GCodeBuffer does for
// macro and job files.
type Reader struct {
	src       io.ReadSeeker
	channel   gcode.Channel
	origin    gcode.Origin
	evaluator Evaluator
	flusher   Flusher
	scope     VariableScope

	stack      []*CodeBlock
	iterCounts map[int64]int
	fileLocals []string

	pos        int64
	lineNumber int
	closed     bool
}

// NewReader wraps src (positioned at its start) as a conditional G-code
// stream for channel. evaluator is required; flusher and scope may be
// nil (no loop-flush wait, no local-variable clearing) for callers that
// don't need those capabilities, e.g. unit tests.
func NewReader(src io.ReadSeeker, channel gcode.Channel, origin gcode.Origin, evaluator Evaluator, flusher Flusher, scope VariableScope) *Reader {
	return &Reader{
		src:        src,
		channel:    channel,
		origin:     origin,
		evaluator:  evaluator,
		flusher:    flusher,
		scope:      scope,
		iterCounts: make(map[int64]int),
		lineNumber: 1,
	}
}

// Position returns the reader's current byte offset and line number.
func (r *Reader) Position() gcode.Position {
	return gcode.Position{Byte: r.pos, Line: r.lineNumber}
}

// SetPosition is the external position setter (M26-style): it seeks
// the underlying stream to byteOffset and discards every open if/while
// block, since a jump invalidates their nesting context. Line tracking
// resets to 1 only when jumping to the start of the file; otherwise
// the line number becomes unknown and is reported as -1 for the codes
// read after the jump.
func (r *Reader) SetPosition(byteOffset int64) error {
	line := -1
	if byteOffset == 0 {
		line = 1
	}
	if err := r.seekTo(gcode.Position{Byte: byteOffset, Line: line}); err != nil {
		return err
	}
	r.stack = nil
	r.closed = false
	return nil
}

// seekTo is the internal reseek used when a while loop repeats: both
// the byte offset and line number are already known exactly, since
// they were recorded when the loop's starting code was first parsed.
// It never touches the block stack; the caller (popTop) has already
// removed exactly the blocks the loop iteration invalidates.
func (r *Reader) seekTo(pos gcode.Position) error {
	if _, err := r.src.Seek(pos.Byte, io.SeekStart); err != nil {
		return err
	}
	r.pos = pos.Byte
	r.lineNumber = pos.Line
	return nil
}

// GetIterations returns the current pass count of the innermost while
// loop enclosing code, for resolving an `iterations` expression
// identifier. It is the loop analogue of Position: external callers
// (the expression evaluator, parameter interpolation) consult it while
// a code read from this reader is still in scope.
func (r *Reader) GetIterations(code *gcode.Code) (int, error) {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].isWhile() {
			return r.stack[i].Iterations, nil
		}
	}
	return 0, ErrNotInLoop
}

// Close releases any file-scoped locals. The underlying stream is the
// caller's to close.
func (r *Reader) Close() {
	if r.scope != nil && len(r.fileLocals) > 0 {
		r.scope.ClearLocals(r.fileLocals)
	}
	r.closed = true
}

// ReadCode returns the next code to execute, or (nil, nil) at EOF with
// no pending loop to repeat. It may block on Flusher.Flush while
// re-seeking a while loop.
func (r *Reader) ReadCode(ctx context.Context) (*gcode.Code, error) {
	if r.closed {
		return nil, nil
	}
	for {
		lineStart := r.pos
		line, eof, err := r.readRawLine()
		if err != nil {
			return nil, err
		}
		if eof {
			reseeked, err := r.popAllAtEOF(ctx)
			if err != nil {
				return nil, err
			}
			if reseeked {
				continue
			}
			r.closed = true
			return nil, nil
		}

		lineNo := r.lineNumber
		if r.lineNumber > 0 {
			r.lineNumber++
		}
		indent := leadingIndent(line)
		code, err := parseLine(line, indent, lineNo, r.channel)
		if err != nil {
			return nil, err
		}
		code.Pos.Byte = lineStart
		if isBlankOrComment(code) {
			continue
		}

		if code.Keyword == gcode.KeywordElif || code.Keyword == gcode.KeywordElse {
			handled, err := r.continueConditional(code)
			if err != nil {
				return nil, err
			}
			if handled {
				continue
			}
		}

		reseeked, err := r.reconcileStack(ctx, indent)
		if err != nil {
			return nil, err
		}
		if reseeked {
			continue
		}

		for _, b := range r.stack {
			b.SeenCodes = true
		}

		switch code.Keyword {
		case gcode.KeywordIf:
			r.pushConditional(code)
			continue
		case gcode.KeywordWhile:
			r.pushWhile(code)
			continue
		case gcode.KeywordBreak:
			if r.active() {
				if err := r.breakOrContinue(false); err != nil {
					return nil, err
				}
			}
			continue
		case gcode.KeywordContinue:
			if r.active() {
				if err := r.breakOrContinue(true); err != nil {
					return nil, err
				}
			}
			continue
		case gcode.KeywordVar, gcode.KeywordGlobal:
			if !r.active() {
				continue
			}
			r.declareLocal(code)
			code.Channel, code.Origin = r.channel, r.origin
			return code, nil
		case gcode.KeywordAbort:
			if !r.active() {
				continue
			}
			return nil, &AbortError{Message: code.KeywordArg}
		case gcode.KeywordReturn:
			if !r.active() {
				continue
			}
			code.Channel, code.Origin = r.channel, r.origin
			r.closed = true
			return code, nil
		default:
			if !r.active() {
				continue
			}
			code.Channel, code.Origin = r.channel, r.origin
			return code, nil
		}
	}
}

// active reports whether every block currently open has taken its
// branch; a single false ancestor makes everything beneath it inert.
func (r *Reader) active() bool {
	for _, b := range r.stack {
		if !b.ProcessBlock {
			return false
		}
	}
	return true
}

func (r *Reader) activeBelow(idx int) bool {
	for i := 0; i < idx; i++ {
		if !r.stack[i].ProcessBlock {
			return false
		}
	}
	return true
}

func (r *Reader) evalBool(code *gcode.Code) (bool, error) {
	if r.evaluator == nil {
		return false, nil
	}
	result, err := r.evaluator.Evaluate(code, true)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(result), "true"), nil
}

func (r *Reader) pushConditional(code *gcode.Code) {
	if !r.active() {
		r.stack = append(r.stack, &CodeBlock{StartingCode: code, Indent: code.Indent})
		return
	}
	result, err := r.evalBool(code)
	if err != nil {
		result = false
	}
	r.stack = append(r.stack, &CodeBlock{
		StartingCode:  code,
		Indent:        code.Indent,
		ProcessBlock:  result,
		ExpectingElse: !result,
	})
}

func (r *Reader) pushWhile(code *gcode.Code) {
	iterations := r.iterCounts[code.Pos.Byte]
	active := r.active()
	// The block goes on the stack before its condition is evaluated, so
	// an `iterations` lookup from the evaluator sees this loop's counter.
	block := &CodeBlock{StartingCode: code, Indent: code.Indent, Iterations: iterations}
	r.stack = append(r.stack, block)
	if !active {
		return
	}
	result, err := r.evalBool(code)
	if err != nil {
		result = false
	}
	block.ProcessBlock = result
}

// continueConditional handles an elif/else that extends the
// still-open if-chain at the top of the stack, rather than dedenting
// past it. When code is not a sibling of the top block (the stack is
// empty, or the top block is not an if/elif/else at the same indent)
// it returns a ParseError; only the top block is considered.
func (r *Reader) continueConditional(code *gcode.Code) (bool, error) {
	if len(r.stack) == 0 {
		return false, &ParseError{Line: code.Pos.Line, Message: "elif/else without matching if"}
	}
	top := r.stack[len(r.stack)-1]
	if top.Indent != code.Indent || !top.isConditional() {
		return false, &ParseError{Line: code.Pos.Line, Message: "elif/else without matching if"}
	}

	if !r.activeBelow(len(r.stack) - 1) {
		top.ProcessBlock = false
		top.StartingCode = code
		return true, nil
	}

	if !top.ExpectingElse {
		top.ProcessBlock = false
		top.StartingCode = code
		return true, nil
	}

	if code.Keyword == gcode.KeywordElse {
		top.ProcessBlock = true
		top.ExpectingElse = false
	} else {
		result, err := r.evalBool(code)
		if err != nil {
			return true, err
		}
		top.ProcessBlock = result
		top.ExpectingElse = !result
	}
	top.StartingCode = code
	return true, nil
}

// reconcileStack pops every block whose starting indent is >= indent,
// since a code at that indent or shallower has left that block's body.
// It returns reseeked=true when a while loop popped mid-reconciliation
// and the caller must go back to reading (the stream has moved).
func (r *Reader) reconcileStack(ctx context.Context, indent int) (bool, error) {
	for len(r.stack) > 0 {
		top := r.stack[len(r.stack)-1]
		if top.Indent < indent {
			return false, nil
		}
		reseek, err := r.popTop(ctx)
		if err != nil {
			return false, err
		}
		if reseek {
			return true, nil
		}
	}
	return false, nil
}

func (r *Reader) popTop(ctx context.Context) (reseek bool, err error) {
	n := len(r.stack)
	b := r.stack[n-1]
	r.stack = r.stack[:n-1]
	if r.scope != nil && len(b.Locals) > 0 {
		r.scope.ClearLocals(b.Locals)
	}
	if !b.isWhile() {
		return false, nil
	}
	if b.ProcessBlock && !b.SeenCodes {
		return false, &ParseError{Line: b.StartingCode.Pos.Line, Message: "while loop has no body"}
	}
	if !b.ProcessBlock && !b.ContinueLoop {
		return false, nil
	}
	if r.flusher != nil {
		if err := r.flusher.Flush(ctx, r.channel); err != nil {
			return false, err
		}
	}
	r.iterCounts[b.StartingCode.Pos.Byte] = b.Iterations + 1
	if err := r.seekTo(b.StartingCode.Pos); err != nil {
		return false, err
	}
	return true, nil
}

// popAllAtEOF unwinds every remaining open block when the stream has
// no more lines. A while block that wants another pass reseeks and the
// caller resumes reading instead of closing.
func (r *Reader) popAllAtEOF(ctx context.Context) (bool, error) {
	for len(r.stack) > 0 {
		reseek, err := r.popTop(ctx)
		if err != nil {
			return false, err
		}
		if reseek {
			return true, nil
		}
	}
	return false, nil
}

func (r *Reader) breakOrContinue(continueLoop bool) error {
	idx := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].isWhile() {
			idx = i
			break
		}
	}
	if idx < 0 {
		if continueLoop {
			return ErrContinueOutsideLoop
		}
		return ErrBreakOutsideLoop
	}
	for i := idx; i < len(r.stack); i++ {
		r.stack[i].ProcessBlock = false
	}
	r.stack[idx].ContinueLoop = continueLoop
	return nil
}

func (r *Reader) declareLocal(code *gcode.Code) {
	name := code.KeywordArg
	if idx := strings.IndexAny(name, " \t="); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if len(r.stack) > 0 {
		r.stack[len(r.stack)-1].addLocal(name)
		return
	}
	r.fileLocals = append(r.fileLocals, name)
}

func (r *Reader) readByte() (byte, error) {
	var b [1]byte
	n, err := r.src.Read(b[:])
	if n == 1 {
		r.pos++
		return b[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (r *Reader) readRawLine() (line string, eof bool, err error) {
	var sb strings.Builder
	for {
		b, rerr := r.readByte()
		if rerr != nil {
			if rerr == io.EOF {
				if sb.Len() == 0 {
					return "", true, nil
				}
				return sb.String(), false, nil
			}
			return "", false, rerr
		}
		if b == '\n' {
			return sb.String(), false, nil
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
	}
}
