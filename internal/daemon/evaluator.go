package daemon

import (
	"context"
	"fmt"

	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/protocol"
)

// maxEvaluationPumps bounds how many extra transport round trips
// Evaluate will drive waiting for the firmware's answer, mirroring
// scheduler's own Flush bound.
const maxEvaluationPumps = 200

type evalResult struct {
	value   string
	errText string
}

// RemoteEvaluator implements interpreter.Evaluator and
// scheduler.EvaluationSink: expression evaluation is firmware-owned,
// so Evaluate is a synchronous request/reply proxy over the same
// transport pump the scheduler already drives.
type RemoteEvaluator struct {
	machine *protocol.Machine
	pump    func(context.Context) error
	pending chan evalResult
}

// NewRemoteEvaluator returns an Evaluator bound to machine, driving
// pump (one Machine.Tick plus one Scheduler.Tick) while it waits for
// the correlated EvaluationResult.
func NewRemoteEvaluator(machine *protocol.Machine, pump func(context.Context) error) *RemoteEvaluator {
	return &RemoteEvaluator{
		machine: machine,
		pump:    pump,
		pending: make(chan evalResult, 1),
	}
}

// Evaluate sends code.KeywordArg as an EvaluateExpression request and
// pumps the transport until the firmware's reply arrives.
func (e *RemoteEvaluator) Evaluate(code *gcode.Code, expectBool bool) (string, error) {
	if _, err := e.machine.WriteEvaluateExpression(uint8(code.Channel), code.KeywordArg); err != nil {
		return "", fmt.Errorf("daemon: WriteEvaluateExpression: %w", err)
	}

	ctx := context.Background()
	for i := 0; i < maxEvaluationPumps; i++ {
		select {
		case res := <-e.pending:
			if res.errText != "" {
				return "", fmt.Errorf("daemon: evaluation failed: %s", res.errText)
			}
			if expectBool && res.value != "true" && res.value != "false" {
				return "", fmt.Errorf("daemon: expression %q did not evaluate to a boolean, got %q", code.KeywordArg, res.value)
			}
			return res.value, nil
		default:
		}
		if err := e.pump(ctx); err != nil {
			return "", fmt.Errorf("daemon: pumping transport for evaluation: %w", err)
		}
	}
	return "", fmt.Errorf("daemon: evaluation of %q did not converge after %d round trips", code.KeywordArg, maxEvaluationPumps)
}

// DeliverEvaluation implements scheduler.EvaluationSink. Only one
// expression is ever outstanding, since Evaluate blocks the
// interpreter before emitting anything else.
func (e *RemoteEvaluator) DeliverEvaluation(result, errText string) {
	select {
	case e.pending <- evalResult{value: result, errText: errText}:
	default:
	}
}
