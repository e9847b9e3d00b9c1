package interpreter

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// iterationsEvaluator resolves `iterations < N` while conditions by
// consulting the Reader's own loop counter, the way the object-model
// evaluator would resolve the built-in `iterations` identifier.
type iterationsEvaluator struct {
	r *Reader
}

func (e *iterationsEvaluator) Evaluate(code *gcode.Code, expectBool bool) (string, error) {
	arg := strings.TrimSpace(code.KeywordArg)
	parts := strings.SplitN(arg, "<", 2)
	if len(parts) != 2 {
		return "false", nil
	}
	bound, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "false", err
	}
	n, err := e.r.GetIterations(code)
	if err != nil {
		return "false", err
	}
	if n < bound {
		return "true", nil
	}
	return "false", nil
}

func TestReader_WhileLoop_ThreeIterations(t *testing.T) {
	src := strings.NewReader("while iterations < 3\n  G1 X1\n")
	r := NewReader(src, gcode.ChannelFile, gcode.OriginFile, nil, nil, nil)
	r.evaluator = &iterationsEvaluator{r: r}

	var seen []int
	for i := 0; i < 10; i++ {
		code, err := r.ReadCode(context.Background())
		if err != nil {
			t.Fatalf("ReadCode: %v", err)
		}
		if code == nil {
			break
		}
		n, err := r.GetIterations(code)
		if err != nil {
			t.Fatalf("GetIterations: %v", err)
		}
		seen = append(seen, n)
	}

	if len(seen) != 3 || seen[0] != 0 || seen[1] != 1 || seen[2] != 2 {
		t.Fatalf("unexpected iteration sequence: %v", seen)
	}
}

func TestReader_IfElse(t *testing.T) {
	src := strings.NewReader("if false\n  G1 X1\nelse\n  G1 X2\n")
	r := NewReader(src, gcode.ChannelFile, gcode.OriginFile, &constEvaluator{result: "false"}, nil, nil)

	code, err := r.ReadCode(context.Background())
	if err != nil {
		t.Fatalf("ReadCode: %v", err)
	}
	if code == nil || code.String() != "G1 X2" {
		t.Fatalf("expected G1 X2 from else branch, got %v", code)
	}

	code, err = r.ReadCode(context.Background())
	if err != nil {
		t.Fatalf("ReadCode: %v", err)
	}
	if code != nil {
		t.Fatalf("expected EOF, got %v", code)
	}
}

type constEvaluator struct{ result string }

func (c *constEvaluator) Evaluate(code *gcode.Code, expectBool bool) (string, error) {
	return c.result, nil
}

func TestReader_BreakExitsLoop(t *testing.T) {
	src := strings.NewReader("while true\n  break\n  G1 X9\n")
	r := NewReader(src, gcode.ChannelFile, gcode.OriginFile, &constEvaluator{result: "true"}, nil, nil)

	code, err := r.ReadCode(context.Background())
	if err != nil {
		t.Fatalf("ReadCode: %v", err)
	}
	if code != nil {
		t.Fatalf("expected no codes emitted after break, got %v", code)
	}
}

type recordingScope struct{ cleared [][]string }

func (s *recordingScope) ClearLocals(names []string) {
	s.cleared = append(s.cleared, names)
}

func TestReader_GlobalDeclarationClearedOnBlockExit(t *testing.T) {
	src := strings.NewReader("if true\n  global gTemp = 0\n  G1 X1\nG1 X2\n")
	scope := &recordingScope{}
	r := NewReader(src, gcode.ChannelFile, gcode.OriginFile, &constEvaluator{result: "true"}, nil, scope)

	var codes []*gcode.Code
	for {
		code, err := r.ReadCode(context.Background())
		if err != nil {
			t.Fatalf("ReadCode: %v", err)
		}
		if code == nil {
			break
		}
		codes = append(codes, code)
	}

	if len(codes) != 3 || codes[0].Keyword != gcode.KeywordGlobal || codes[1].String() != "G1 X1" || codes[2].String() != "G1 X2" {
		t.Fatalf("unexpected codes: %v", codes)
	}

	found := false
	for _, names := range scope.cleared {
		for _, n := range names {
			if n == "gTemp" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected gTemp to be cleared when the if block exited")
	}
}

func TestReader_AbortReturnsError(t *testing.T) {
	src := strings.NewReader("abort out of filament\n")
	r := NewReader(src, gcode.ChannelFile, gcode.OriginFile, &constEvaluator{result: "true"}, nil, nil)

	_, err := r.ReadCode(context.Background())
	if err == nil {
		t.Fatal("expected AbortError")
	}
	if ae, ok := err.(*AbortError); !ok || ae.Message != "out of filament" {
		t.Fatalf("unexpected error: %v", err)
	}
}
