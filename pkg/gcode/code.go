package gcode

import (
	"strconv"
	"time"
)

// Type is the kind of a parsed code.
type Type int

const (
	TypeNone Type = iota
	TypeG
	TypeM
	TypeT
	TypeComment
	TypeKeyword
)

// Keyword identifies a flow-control keyword for TypeKeyword codes.
type Keyword int

const (
	KeywordNone Keyword = iota
	KeywordIf
	KeywordElif
	KeywordElse
	KeywordWhile
	KeywordBreak
	KeywordContinue
	KeywordVar
	KeywordGlobal
	KeywordSet
	KeywordEcho
	KeywordAbort
	KeywordReturn
)

// Flag is a bit in Code.Flags.
type Flag uint32

const (
	FlagAsynchronous Flag = 1 << iota
	FlagInternallyProcessed
	FlagUnbuffered
)

// Parameter is one letter/value pair in a code's argument list, e.g. "X10".
type Parameter struct {
	Letter byte
	Value  string
}

// Origin distinguishes who submitted a code, for message-log attribution
// and for deciding whether a completion is awaited externally.
type Origin int

const (
	OriginIPC Origin = iota
	OriginFile
	OriginMacro
	OriginTrigger
	OriginInternal
	OriginAux
)

// Position is a code's location within its source file, used for
// loop re-seeking and for synthesizing "paused at byte N" replies.
type Position struct {
	Byte int64
	Line int
}

// Code is one parsed G/M/T-code, comment, or flow-control keyword.
type Code struct {
	Channel Channel
	Type    Type
	Major   int
	Minor   int // -1 if absent, e.g. G1 has no minor
	HasMajor bool

	Parameters []Parameter

	Keyword    Keyword
	KeywordArg string

	Indent int
	Pos    Position

	Comment string

	Flags Flag
	Origin Origin

	CreatedAt time.Time

	// Completion is closed/delivered exactly once, when the code's
	// owning QueuedCode reaches Finished or Failed.
	Completion chan Result
}

// NewCode returns a Code with its completion channel allocated and
// CreatedAt stamped, ready to be queued.
func NewCode(channel Channel) *Code {
	return &Code{
		Channel:    channel,
		Minor:      -1,
		CreatedAt:  time.Now(),
		Completion: make(chan Result, 1),
	}
}

// Param returns the value of the first parameter with the given letter.
func (c *Code) Param(letter byte) (string, bool) {
	for _, p := range c.Parameters {
		if p.Letter == letter {
			return p.Value, true
		}
	}
	return "", false
}

// HasFlag reports whether f is set.
func (c *Code) HasFlag(f Flag) bool { return c.Flags&f != 0 }

// Result is delivered exactly once on a Code's Completion channel.
type Result struct {
	Reply string
	Err   error
}

// String renders the code approximately as it appeared in source, for
// logging and for re-transmission to a PanelDue-style Aux display.
func (c *Code) String() string {
	switch c.Type {
	case TypeComment:
		return ";" + c.Comment
	case TypeKeyword:
		s := keywordText(c.Keyword)
		if c.KeywordArg != "" {
			s += " " + c.KeywordArg
		}
		return s
	}
	s := ""
	switch c.Type {
	case TypeG:
		s = "G"
	case TypeM:
		s = "M"
	case TypeT:
		s = "T"
	}
	if c.HasMajor {
		s += strconv.Itoa(c.Major)
		if c.Minor >= 0 {
			s += "." + strconv.Itoa(c.Minor)
		}
	}
	for _, p := range c.Parameters {
		s += " " + string(p.Letter) + p.Value
	}
	return s
}

func keywordText(k Keyword) string {
	switch k {
	case KeywordIf:
		return "if"
	case KeywordElif:
		return "elif"
	case KeywordElse:
		return "else"
	case KeywordWhile:
		return "while"
	case KeywordBreak:
		return "break"
	case KeywordContinue:
		return "continue"
	case KeywordVar:
		return "var"
	case KeywordGlobal:
		return "global"
	case KeywordSet:
		return "set"
	case KeywordEcho:
		return "echo"
	case KeywordAbort:
		return "abort"
	case KeywordReturn:
		return "return"
	default:
		return ""
	}
}
