package interpreter

import (
	"strings"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// ParseError is a CodeParserException: a parse/flow-control error tied to
// a specific file and line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return "line " + itoa(e.Line) + ": " + e.Message
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var keywordTable = map[string]gcode.Keyword{
	"if":       gcode.KeywordIf,
	"elif":     gcode.KeywordElif,
	"else":     gcode.KeywordElse,
	"while":    gcode.KeywordWhile,
	"break":    gcode.KeywordBreak,
	"continue": gcode.KeywordContinue,
	"var":      gcode.KeywordVar,
	"global":   gcode.KeywordGlobal,
	"set":      gcode.KeywordSet,
	"echo":     gcode.KeywordEcho,
	"abort":    gcode.KeywordAbort,
	"return":   gcode.KeywordReturn,
}

// ParseLine parses a single standalone line of G/M/T-code text, for
// callers outside a file/macro context, which have no surrounding block
// stack to reconcile against: the IPC server's Command-mode "Code"
// handler and CodeStream mode, and the Aux serial bridge.
func ParseLine(line string, channel gcode.Channel) (*gcode.Code, error) {
	return parseLine(line, leadingIndent(line), 0, channel)
}

// parseLine converts one raw source line into a Code. indent is the
// count of leading whitespace characters the caller already stripped.
func parseLine(line string, indent int, lineNumber int, channel gcode.Channel) (*gcode.Code, error) {
	trimmed := strings.TrimSpace(line)

	c := gcode.NewCode(channel)
	c.Indent = indent
	c.Pos = gcode.Position{Line: lineNumber}

	if trimmed == "" {
		c.Type = gcode.TypeComment
		return c, nil
	}
	if strings.HasPrefix(trimmed, ";") {
		c.Type = gcode.TypeComment
		c.Comment = strings.TrimPrefix(trimmed, ";")
		return c, nil
	}
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		c.Type = gcode.TypeComment
		c.Comment = strings.TrimSuffix(strings.TrimPrefix(trimmed, "("), ")")
		return c, nil
	}

	firstWord := trimmed
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		firstWord = trimmed[:idx]
	}
	if kw, ok := keywordTable[strings.ToLower(firstWord)]; ok {
		c.Type = gcode.TypeKeyword
		c.Keyword = kw
		if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
			c.KeywordArg = strings.TrimSpace(trimmed[idx+1:])
		}
		return c, nil
	}

	letter := trimmed[0]
	switch letter {
	case 'G', 'g':
		c.Type = gcode.TypeG
	case 'M', 'm':
		c.Type = gcode.TypeM
	case 'T', 't':
		c.Type = gcode.TypeT
	default:
		return nil, &ParseError{Line: lineNumber, Message: "unrecognized code: " + trimmed}
	}

	rest := trimmed[1:]
	numEnd := 0
	for numEnd < len(rest) && (isDigit(rest[numEnd]) || rest[numEnd] == '.') {
		numEnd++
	}
	numberText := rest[:numEnd]
	rest = strings.TrimSpace(rest[numEnd:])

	if numberText != "" {
		c.HasMajor = true
		if dot := strings.IndexByte(numberText, '.'); dot >= 0 {
			c.Major = atoi(numberText[:dot])
			c.Minor = atoi(numberText[dot+1:])
		} else {
			c.Major = atoi(numberText)
		}
	}

	c.Parameters = parseParameters(rest)
	return c, nil
}

func parseParameters(rest string) []gcode.Parameter {
	var params []gcode.Parameter
	fields := splitParamFields(rest)
	for _, f := range fields {
		if f == "" {
			continue
		}
		letter := f[0]
		value := strings.TrimSpace(f[1:])
		params = append(params, gcode.Parameter{Letter: letter, Value: value})
	}
	return params
}

// splitParamFields splits a parameter string like `X10 Y20 S"text with spaces"`
// on whitespace, but keeps quoted values intact.
func splitParamFields(s string) []string {
	var fields []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ' ', '\t':
			if !inQuotes {
				if i > start {
					fields = append(fields, s[start:i])
				}
				start = i + 1
			}
		}
	}
	if start < len(s) {
		fields = append(fields, s[start:])
	}
	return fields
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func atoi(s string) int {
	neg := false
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	n := 0
	for ; i < len(s); i++ {
		if !isDigit(s[i]) {
			break
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// leadingIndent counts leading whitespace characters (tabs counted as 1).
func leadingIndent(line string) int {
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return n
}

// isBlankOrComment reports whether a Code should be treated as
// transparent to the block-reconciliation stack: it neither pops nor
// pushes blocks and is never emitted.
func isBlankOrComment(c *gcode.Code) bool {
	return c.Type == gcode.TypeComment
}
