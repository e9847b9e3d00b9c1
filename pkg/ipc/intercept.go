package ipc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/scheduler"
)

// interceptOffer is what an Intercept-mode connection receives for
// each code offered to it.
type interceptOffer struct {
	Phase string `json:"Phase"`
	Code  string `json:"Code"`
}

// interceptDecision is what the connection sends back.
type interceptDecision struct {
	Action string `json:"Action"` // "Resolve", "Cancel", or "Ignore"
	Reply  string `json:"Reply,omitempty"`
}

// interceptProcessor implements both Processor (the connection's read
// loop) and scheduler.Interceptor (the scheduler's offer hook): the
// two run on different goroutines, joined by offers/decisions.
type interceptProcessor struct {
	intercepts InterceptRegistry

	mode    InterceptionMode
	pattern string

	offers chan offerRequest
}

type offerRequest struct {
	code    *gcode.Code
	phase   scheduler.InterceptPhase
	replyCh chan offerResponse
}

type offerResponse struct {
	verdict scheduler.InterceptVerdict
	reply   string
	err     error
}

func (p *interceptProcessor) Process(ctx context.Context, conn *Connection, init ClientInitMessage) error {
	p.mode = init.InterceptionMode
	p.pattern = init.Filter
	p.offers = make(chan offerRequest)

	p.intercepts.RegisterInterceptor(p)
	defer p.intercepts.UnregisterInterceptor(p)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-p.offers:
			p.serve(conn, req)
		}
	}
}

// serve is called on the connection's own goroutine (it owns conn),
// having been woken by an Offer call arriving from the scheduler's
// transport-pump goroutine.
func (p *interceptProcessor) serve(conn *Connection, req offerRequest) {
	if err := conn.WriteFrame(interceptOffer{Phase: phaseName(req.phase), Code: req.code.String()}); err != nil {
		req.replyCh <- offerResponse{err: err}
		return
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		req.replyCh <- offerResponse{err: err}
		return
	}
	var decision interceptDecision
	if err := json.Unmarshal(frame, &decision); err != nil {
		req.replyCh <- offerResponse{err: err}
		return
	}
	switch decision.Action {
	case "Resolve":
		req.replyCh <- offerResponse{verdict: scheduler.InterceptResolved, reply: decision.Reply}
	case "Cancel":
		req.replyCh <- offerResponse{verdict: scheduler.InterceptCancelled}
	default:
		req.replyCh <- offerResponse{verdict: scheduler.InterceptIgnored}
	}
}

// Offer implements scheduler.Interceptor. It is called from the
// transport-pump goroutine (T1) and blocks it until this connection's
// goroutine answers or ctx is cancelled: codes really do pause while an
// Intercept client is deciding.
func (p *interceptProcessor) Offer(ctx context.Context, code *gcode.Code, phase scheduler.InterceptPhase) (scheduler.InterceptVerdict, string, error) {
	if !p.matches(code, phase) {
		return scheduler.InterceptIgnored, "", nil
	}

	replyCh := make(chan offerResponse, 1)
	select {
	case p.offers <- offerRequest{code: code, phase: phase, replyCh: replyCh}:
	case <-ctx.Done():
		return scheduler.InterceptIgnored, "", ctx.Err()
	}

	select {
	case resp := <-replyCh:
		return resp.verdict, resp.reply, resp.err
	case <-ctx.Done():
		return scheduler.InterceptIgnored, "", ctx.Err()
	}
}

// matches reports whether code at phase should be offered to this
// connection: the phase must be the one it registered for, and its
// filter (a code-text prefix like "G1" or "M3") must match, with an
// empty filter matching every code.
func (p *interceptProcessor) matches(code *gcode.Code, phase scheduler.InterceptPhase) bool {
	if phase != p.wantedPhase() {
		return false
	}
	if p.pattern == "" {
		return true
	}
	return strings.HasPrefix(code.String(), p.pattern)
}

func (p *interceptProcessor) wantedPhase() scheduler.InterceptPhase {
	switch p.mode {
	case InterceptPost:
		return scheduler.InterceptPost
	case InterceptExecuted:
		return scheduler.InterceptExecuted
	default:
		return scheduler.InterceptPre
	}
}

func phaseName(p scheduler.InterceptPhase) string {
	switch p {
	case scheduler.InterceptPre:
		return "Pre"
	case scheduler.InterceptPost:
		return "Post"
	case scheduler.InterceptExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}
