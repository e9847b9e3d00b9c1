package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
	"github.com/rrflink/sbcd/pkg/model"
)

// commandPermissions lists the commands each mode may invoke, checked
// against the command set supported by each mode.
var commandPermissions = map[ProcessorKind]map[string]bool{
	ModeCommand: {
		"Code":           true,
		"SimpleCode":     true,
		"Flush":          true,
		"GetObjectModel": true,
	},
	ModePluginService: {
		"GetObjectModel": true,
	},
}

// commandProcessor implements Command and PluginService mode: a
// length-prefixed JSON request/reply loop against the scheduler and
// the model store.
type commandProcessor struct {
	store *model.Store
	sched CodeSubmitter
	mode  ProcessorKind
}

type commandHeader struct {
	Command string `json:"Command"`
}

func (p *commandProcessor) Process(ctx context.Context, conn *Connection, init ClientInitMessage) error {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return err
		}

		var hdr commandHeader
		if err := json.Unmarshal(frame, &hdr); err != nil {
			conn.WriteFrame(errorReply("InvalidCommand", "malformed command envelope"))
			continue
		}

		if !commandPermissions[p.mode][hdr.Command] {
			conn.WriteFrame(errorReply("NotSupported",
				fmt.Sprintf("%q is not supported in %s mode", hdr.Command, p.mode)))
			continue
		}

		result, err := p.dispatch(ctx, hdr.Command, frame)
		if err != nil {
			var ce *ClientError
			if errors.As(err, &ce) {
				conn.WriteFrame(errorReply(ce.Type, ce.Message))
			} else {
				conn.WriteFrame(errorReply("InternalError", err.Error()))
			}
			continue
		}
		if err := conn.WriteFrame(SuccessReply{Success: true, Result: result}); err != nil {
			return err
		}
	}
}

func (p *commandProcessor) dispatch(ctx context.Context, command string, frame []byte) (interface{}, error) {
	switch command {
	case "Code", "SimpleCode":
		return p.handleCode(ctx, frame)
	case "Flush":
		return p.handleFlush(frame)
	case "GetObjectModel":
		return p.handleGetObjectModel(frame)
	default:
		return nil, newClientError("NotSupported", "unknown command %q", command)
	}
}

type codeArgs struct {
	Code    string       `json:"Code"`
	Channel gcode.Channel `json:"Channel"`
}

func (p *commandProcessor) handleCode(ctx context.Context, frame []byte) (interface{}, error) {
	var args codeArgs
	if err := json.Unmarshal(frame, &args); err != nil {
		return nil, newClientError("InvalidCommand", "malformed Code args: %v", err)
	}

	code, err := interpreter.ParseLine(args.Code, args.Channel)
	if err != nil {
		return nil, newClientError("CodeParserException", "%v", err)
	}
	code.Origin = gcode.OriginIPC

	if code.Type == gcode.TypeComment {
		return "", nil
	}

	p.sched.Submit(code)

	select {
	case res := <-code.Completion:
		if res.Err != nil {
			return nil, newClientError("CodeExecutionFailed", "%v", res.Err)
		}
		return res.Reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type flushArgs struct {
	Channel gcode.Channel `json:"Channel"`
}

// handleFlush submits a no-op M400-style sync code and waits for it to
// complete, giving the client a "everything queued so far has run"
// guarantee without a dedicated scheduler hook.
func (p *commandProcessor) handleFlush(frame []byte) (interface{}, error) {
	var args flushArgs
	if err := json.Unmarshal(frame, &args); err != nil {
		return nil, newClientError("InvalidCommand", "malformed Flush args: %v", err)
	}
	code := gcode.NewCode(args.Channel)
	code.Type = gcode.TypeM
	code.HasMajor = true
	code.Major = 400
	code.Origin = gcode.OriginIPC
	p.sched.Submit(code)
	res := <-code.Completion
	if res.Err != nil {
		return nil, newClientError("CodeExecutionFailed", "%v", res.Err)
	}
	return true, nil
}

type getObjectModelArgs struct {
	Key string `json:"Key"`
}

func (p *commandProcessor) handleGetObjectModel(frame []byte) (interface{}, error) {
	var args getObjectModelArgs
	if err := json.Unmarshal(frame, &args); err != nil {
		return nil, newClientError("InvalidCommand", "malformed GetObjectModel args: %v", err)
	}

	g := p.store.AccessReadOnly()
	defer g.Release()

	if args.Key == "" {
		return g.Tree(), nil
	}
	value, ok := g.Get(model.Path{model.Key(args.Key)})
	if !ok {
		return nil, newClientError("NotFound", "no object model entry %q", args.Key)
	}
	return value, nil
}
