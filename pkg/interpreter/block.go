package interpreter

import "github.com/rrflink/sbcd/pkg/gcode"

// CodeBlock is one entry on the interpreter's block stack: an if/elif/else
// chain or a while loop currently open while reading a macro or job file.
type CodeBlock struct {
	StartingCode  *gcode.Code
	Indent        int
	Iterations    int
	ProcessBlock  bool
	ExpectingElse bool
	ContinueLoop  bool
	SeenCodes     bool
	Locals        []string
}

func (b *CodeBlock) isConditional() bool {
	if b.StartingCode == nil {
		return false
	}
	switch b.StartingCode.Keyword {
	case gcode.KeywordIf, gcode.KeywordElif, gcode.KeywordElse:
		return true
	default:
		return false
	}
}

func (b *CodeBlock) isWhile() bool {
	return b.StartingCode != nil && b.StartingCode.Keyword == gcode.KeywordWhile
}

// addLocal records a variable name declared with `var` or `global` inside
// this block, so it can be cleared from scope when the block is popped.
func (b *CodeBlock) addLocal(name string) {
	b.Locals = append(b.Locals, name)
}
