package ipc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/model"
	"github.com/rrflink/sbcd/pkg/scheduler"
)

func discardLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError, false)
}

// fakeSubmitter records submitted codes and, if autoReply is set,
// finishes them immediately with that text.
type fakeSubmitter struct {
	submitted []*gcode.Code
	autoReply string
}

func (f *fakeSubmitter) Submit(code *gcode.Code) {
	f.submitted = append(f.submitted, code)
	if f.autoReply != "" {
		code.Completion <- gcode.Result{Reply: f.autoReply}
	}
}

// pipeConnPair returns two *Connection values wired by net.Pipe, one
// for the server side (used internally by handleConnection-equivalent
// test helpers) and one for the simulated client.
func pipeConnPair() (*Connection, *Connection) {
	a, b := net.Pipe()
	return newConnection(a), newConnection(b)
}

func runServerSide(t *testing.T, srv *Server, serverConn *Connection) {
	t.Helper()
	go srv.handleConnection(context.Background(), serverConn)
}

func TestServer_HandshakeRejectsIncompatibleVersion(t *testing.T) {
	srv := New("", 0, discardLogger(), model.New(), &fakeSubmitter{}, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	runServerSide(t, srv, serverConn)

	var serverInit ServerInitMessage
	if err := clientConn.ReadLine(&serverInit); err != nil {
		t.Fatalf("reading ServerInitMessage: %v", err)
	}

	if err := clientConn.WriteLine(ClientInitMessage{Version: 999, Mode: ModeCommand}); err != nil {
		t.Fatalf("writing ClientInitMessage: %v", err)
	}

	var reply ErrorReply
	if err := clientConn.ReadLine(&reply); err != nil {
		t.Fatalf("reading error reply: %v", err)
	}
	if reply.Error.Type != "IncompatibleVersion" {
		t.Fatalf("unexpected error type: %+v", reply.Error)
	}
}

func TestServer_CommandModeSubmitsAndRepliesCode(t *testing.T) {
	sub := &fakeSubmitter{autoReply: "ok"}
	srv := New("", 0, discardLogger(), model.New(), sub, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	runServerSide(t, srv, serverConn)

	var serverInit ServerInitMessage
	clientConn.ReadLine(&serverInit)
	clientConn.WriteLine(ClientInitMessage{Version: CurrentProtocolVersion, Mode: ModeCommand})

	clientConn.WriteFrame(map[string]interface{}{"Command": "Code", "Code": "G28"})

	var reply SuccessReply
	if err := clientConn.ReadFrameInto(&reply); err != nil {
		t.Fatalf("reading command reply: %v", err)
	}
	if !reply.Success || reply.Result != "ok" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(sub.submitted) != 1 || sub.submitted[0].Major != 28 {
		t.Fatalf("unexpected submission: %+v", sub.submitted)
	}
}

func TestServer_CommandModeRejectsUnsupportedCommand(t *testing.T) {
	sub := &fakeSubmitter{}
	srv := New("", 0, discardLogger(), model.New(), sub, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	runServerSide(t, srv, serverConn)

	var serverInit ServerInitMessage
	clientConn.ReadLine(&serverInit)
	clientConn.WriteLine(ClientInitMessage{Version: CurrentProtocolVersion, Mode: ModePluginService})

	clientConn.WriteFrame(map[string]interface{}{"Command": "Code", "Code": "G28"})

	var reply ErrorReply
	if err := clientConn.ReadFrameInto(&reply); err != nil {
		t.Fatalf("reading error reply: %v", err)
	}
	if reply.Error.Type != "NotSupported" {
		t.Fatalf("expected NotSupported, got %+v", reply.Error)
	}
}

func TestServer_SubscribeFullModeSendsWholeModelOnWake(t *testing.T) {
	store := model.New()
	g := store.AccessReadWrite()
	g.SetProperty(model.Path{model.Key("state")}, "idle")
	g.Release()

	srv := New("", 20*time.Millisecond, discardLogger(), store, &fakeSubmitter{}, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.handleConnection(ctx, serverConn)

	var serverInit ServerInitMessage
	clientConn.ReadLine(&serverInit)
	clientConn.WriteLine(ClientInitMessage{Version: CurrentProtocolVersion, Mode: ModeSubscribe, SubscriptionMode: SubscriptionFull})

	var snapshot map[string]interface{}
	if err := clientConn.ReadLine(&snapshot); err != nil {
		t.Fatalf("reading initial snapshot: %v", err)
	}
	if snapshot["state"] != "idle" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	clientConn.WriteLine(Acknowledge{Acknowledge: true})

	g2 := store.AccessReadWrite()
	g2.SetProperty(model.Path{model.Key("state")}, "printing")
	g2.Release()

	var resync map[string]interface{}
	if err := clientConn.ReadLine(&resync); err != nil {
		t.Fatalf("reading resync: %v", err)
	}
	if resync["state"] != "printing" {
		t.Fatalf("unexpected resync: %+v", resync)
	}
}

func TestServer_SubscribePatchModeSendsOnlyDiff(t *testing.T) {
	store := model.New()
	srv := New("", 20*time.Millisecond, discardLogger(), store, &fakeSubmitter{}, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.handleConnection(ctx, serverConn)

	var serverInit ServerInitMessage
	clientConn.ReadLine(&serverInit)
	clientConn.WriteLine(ClientInitMessage{Version: CurrentProtocolVersion, Mode: ModeSubscribe, SubscriptionMode: SubscriptionPatch})

	var snapshot map[string]interface{}
	clientConn.ReadLine(&snapshot)
	clientConn.WriteLine(Acknowledge{Acknowledge: true})

	g := store.AccessReadWrite()
	g.SetProperty(model.Path{model.Key("heat"), model.Key("current")}, 205.0)
	g.Release()

	var patch map[string]interface{}
	if err := clientConn.ReadLine(&patch); err != nil {
		t.Fatalf("reading patch: %v", err)
	}
	heat, ok := patch["heat"].(map[string]interface{})
	if !ok || heat["current"] != 205.0 {
		t.Fatalf("unexpected patch: %+v", patch)
	}
}

func TestServer_SubscribePatchModeHonorsFilters(t *testing.T) {
	store := model.New()
	srv := New("", 20*time.Millisecond, discardLogger(), store, &fakeSubmitter{}, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.handleConnection(ctx, serverConn)

	var serverInit ServerInitMessage
	clientConn.ReadLine(&serverInit)
	clientConn.WriteLine(ClientInitMessage{
		Version:          CurrentProtocolVersion,
		Mode:             ModeSubscribe,
		SubscriptionMode: SubscriptionPatch,
		Filters:          []string{"state.status"},
	})

	var snapshot map[string]interface{}
	clientConn.ReadLine(&snapshot)
	clientConn.WriteLine(Acknowledge{Acknowledge: true})

	g := store.AccessReadWrite()
	g.SetProperty(model.Path{model.Key("heat"), model.Key("current")}, 205.0)
	g.SetProperty(model.Path{model.Key("state"), model.Key("status")}, "paused")
	g.Release()

	var patch map[string]interface{}
	if err := clientConn.ReadLine(&patch); err != nil {
		t.Fatalf("reading patch: %v", err)
	}
	if len(patch) != 1 {
		t.Fatalf("expected only the filtered module in the patch, got %+v", patch)
	}
	state, ok := patch["state"].(map[string]interface{})
	if !ok || state["status"] != "paused" || len(state) != 1 {
		t.Fatalf("unexpected patch: %+v", patch)
	}
}

func TestServer_SubscribePatchModeSuppressesJobLayersForOldClients(t *testing.T) {
	store := model.New()
	srv := New("", 20*time.Millisecond, discardLogger(), store, &fakeSubmitter{}, scheduler.NewInterceptorRegistry())

	serverConn, clientConn := pipeConnPair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.handleConnection(ctx, serverConn)

	var serverInit ServerInitMessage
	clientConn.ReadLine(&serverInit)
	clientConn.WriteLine(ClientInitMessage{
		Version:          JobLayersArrayVersion - 1,
		Mode:             ModeSubscribe,
		SubscriptionMode: SubscriptionPatch,
	})

	var snapshot map[string]interface{}
	clientConn.ReadLine(&snapshot)
	clientConn.WriteLine(Acknowledge{Acknowledge: true})

	if err := store.ApplyObjectModel(5, []byte(`{"file":"print.gcode","layers":[{"height":0.2}]}`)); err != nil {
		t.Fatalf("ApplyObjectModel: %v", err)
	}

	var patch map[string]interface{}
	if err := clientConn.ReadLine(&patch); err != nil {
		t.Fatalf("reading patch: %v", err)
	}
	job, ok := patch["job"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a job entry in the patch, got %+v", patch)
	}
	if _, hasLayers := job["layers"]; hasLayers {
		t.Fatalf("expected layers to be suppressed for a pre-v%d client, got %+v", JobLayersArrayVersion, job)
	}
	if job["file"] != "print.gcode" {
		t.Fatalf("expected the rest of the job diff to pass through, got %+v", job)
	}
}

func TestFilter_PrefixMatchAndWildcard(t *testing.T) {
	f := ParseFilter("heat.current")
	if !f.Matches(model.Path{model.Key("heat"), model.Key("current")}) {
		t.Fatal("expected exact match")
	}
	if f.Matches(model.Path{model.Key("move")}) {
		t.Fatal("expected no match on different module")
	}

	all := ParseFilter("**")
	if !all.Matches(model.Path{model.Key("anything")}) {
		t.Fatal("expected ** to match everything")
	}

	arr := ParseFilter("tools[1].state")
	if !arr.Matches(model.Path{model.ArrayElement("tools", 1, 3), model.Key("state")}) {
		t.Fatal("expected pinned array index to match")
	}
	if arr.Matches(model.Path{model.ArrayElement("tools", 0, 3), model.Key("state")}) {
		t.Fatal("expected pinned array index to reject other indices")
	}
}
