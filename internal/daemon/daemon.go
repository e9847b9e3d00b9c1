// Package daemon wires together the channel scheduler, transport,
// object model, IPC server and host updater into the single
// long-running sbcd process, and drives its concurrent tasks.
package daemon

import (
	"context"
	"fmt"
	"io"

	"github.com/rrflink/sbcd/internal/config"
	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/hostinfo"
	"github.com/rrflink/sbcd/pkg/ipc"
	"github.com/rrflink/sbcd/pkg/model"
	"github.com/rrflink/sbcd/pkg/protocol"
	"github.com/rrflink/sbcd/pkg/scheduler"
	"github.com/rrflink/sbcd/pkg/wire"
)

// Daemon owns every long-lived component of sbcd: the transport link
// to the firmware, the channel scheduler, the object-model store, the
// IPC server and the host updater. Run drives them as concurrent tasks
// (T1/T2/T3, plus T4 if an Aux port is attached) sharing one
// cancellation context.
type Daemon struct {
	cfg *config.Config
	log *logging.Logger

	tx        wire.Transceiver
	link      *wire.Link
	machine   *protocol.Machine
	proxy     *handlerProxy
	store     *model.Store
	sched     *scheduler.Scheduler
	msgs      *hostinfo.MessageLog
	updater   *hostinfo.Updater
	ipcServer *ipc.Server
	aux       *AuxBridge

	updateOnly bool
}

// SetAuxPort attaches a PanelDue-style serial display to the Aux
// channel; Run starts its bridge as a fourth concurrent task only if
// this has been called. Pass nil to leave the Aux channel unbridged,
// which is also the default.
func (d *Daemon) SetAuxPort(port io.ReadWriteCloser) {
	if port == nil {
		d.aux = nil
		return
	}
	d.aux = NewAuxBridge(port, d.sched, d.log.With("aux"))
}

// SetUpdateOnly puts the daemon into update-only mode: Run never binds
// the IPC socket (T2) or bridges the Aux channel (T4), and drives only
// the transport pump (T1, still needed to carry the updater's
// drift-correction codes to the firmware) and the host updater (T3).
func (d *Daemon) SetUpdateOnly(updateOnly bool) {
	d.updateOnly = updateOnly
}

// handlerProxy breaks the Machine/Scheduler construction cycle:
// protocol.NewMachine needs a Handler before the Scheduler exists, and
// scheduler.New needs a *protocol.Machine before the Scheduler exists.
// The proxy is handed to NewMachine first and only starts forwarding
// once sched is assigned.
type handlerProxy struct {
	sched *scheduler.Scheduler
}

func (p *handlerProxy) OnReportState(busyChannels uint32) { p.sched.OnReportState(busyChannels) }
func (p *handlerProxy) OnObjectModel(module uint8, json []byte) { p.sched.OnObjectModel(module, json) }
func (p *handlerProxy) OnCodeReply(flags protocol.ReplyFlags, channels protocol.ChannelMask, text string) {
	p.sched.OnCodeReply(flags, channels, text)
}
func (p *handlerProxy) OnExecuteMacro(channel uint8, filename string, reportMissing bool) {
	p.sched.OnExecuteMacro(channel, filename, reportMissing)
}
func (p *handlerProxy) OnAbortFile(channel uint8)  { p.sched.OnAbortFile(channel) }
func (p *handlerProxy) OnStackEvent(channel uint8, depth uint8, flags uint32, feedrate float64) {
	p.sched.OnStackEvent(channel, depth, flags, feedrate)
}
func (p *handlerProxy) OnPrintPaused(filePosition int64, reason protocol.PauseReason) {
	p.sched.OnPrintPaused(filePosition, reason)
}
func (p *handlerProxy) OnHeightMap(data []byte)      { p.sched.OnHeightMap(data) }
func (p *handlerProxy) OnLocked(channel uint8)       { p.sched.OnLocked(channel) }
func (p *handlerProxy) OnIAPSegment(offset uint32, final bool) { p.sched.OnIAPSegment(offset, final) }
func (p *handlerProxy) OnVariableResult(name, value, errText string) {
	p.sched.OnVariableResult(name, value, errText)
}
func (p *handlerProxy) OnEvaluationResult(result, errText string) {
	p.sched.OnEvaluationResult(result, errText)
}

// New constructs a Daemon from cfg. tx is the transport the link
// should drive; production callers pass a *wire.LinuxSPITransceiver
// from wire.OpenLinuxSPI, tests pass a *wire.LoopbackTransceiver.
func New(cfg *config.Config, log *logging.Logger, tx wire.Transceiver) *Daemon {
	link := wire.NewLink(tx, wire.MinimumSupportedProtocolVersion, wire.CurrentProtocolVersion, cfg.SPI.MaxResends)
	store := model.New()
	msgs := hostinfo.NewMessageLog(store)

	proxy := &handlerProxy{}
	machine := protocol.NewMachine(link, proxy)

	d := &Daemon{cfg: cfg, log: log, tx: tx, link: link, machine: machine, proxy: proxy, store: store, msgs: msgs}

	evaluator := NewRemoteEvaluator(machine, d.pump)
	varScope := NewRemoteVariableScope(machine)
	sched := scheduler.New(machine, log.With("scheduler"), msgs, store, NewMacroResolver(cfg.Macro), evaluator, varScope)
	sched.SetPump(d.pump)
	sched.SetEvaluationSink(evaluator)
	intercepts := scheduler.NewInterceptorRegistry()
	sched.SetInterceptorRegistry(intercepts)
	proxy.sched = sched
	d.sched = sched

	d.updater = hostinfo.New(store, sched, msgs, log.With("hostinfo"), cfg.Host.UpdateInterval, cfg.Host.MaxMessageAge, cfg.Host.ClockDriftTol)
	d.ipcServer = ipc.New(cfg.IPC.SocketPath, cfg.IPC.SocketPollInterval, log.With("ipc"), store, sched, intercepts)

	return d
}

// pump drives one transport round trip: one Machine.Tick followed by
// one Scheduler.Tick. It is shared by the steady-state transport loop
// and by every blocking Flush/Evaluate call, keeping the whole daemon
// single-threaded on this one task.
func (d *Daemon) pump(ctx context.Context) error {
	if err := d.machine.Tick(ctx); err != nil {
		return err
	}
	return d.sched.Tick(ctx)
}

// Run performs the handshake and then drives T1 (transport pump), T2
// (IPC server) and T3 (host updater) until ctx is cancelled or one of
// them fails. The first task to return stops the rest.
//
// In update-only mode (SetUpdateOnly) T2 and T4 are never started: the
// IPC socket is never bound and the Aux channel is never bridged, so
// only the transport pump and host updater run.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.machine.Handshake(ctx); err != nil {
		return fmt.Errorf("daemon: handshake: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := 2
	if !d.updateOnly {
		tasks++
		if d.aux != nil {
			tasks++
		}
	}
	errChan := make(chan error, tasks)
	go func() { errChan <- d.runTransportPump(ctx) }()
	go func() { errChan <- d.updater.Run(ctx) }()
	if !d.updateOnly {
		go func() { errChan <- d.ipcServer.Serve(ctx) }()
		if d.aux != nil {
			go func() { errChan <- d.aux.Run(ctx) }()
		}
	}

	err := <-errChan
	wasLive := ctx.Err() == nil
	cancel()
	for i := 1; i < tasks; i++ {
		<-errChan
	}
	if err != nil && !wasLive {
		// ctx was already winding down (caller cancelled, or deadline
		// hit) by the time this task returned; that's a clean shutdown,
		// not a failure, whichever of DeadlineExceeded/Canceled it saw.
		return nil
	}
	return err
}

// runTransportPump is T1: it waits for the transceiver's data-ready
// edge (or, lacking one, its own idle poll interval) and then drives
// one pump round trip, for as long as ctx stays live.
func (d *Daemon) runTransportPump(ctx context.Context) error {
	for {
		if err := d.tx.WaitForDataReady(ctx); err != nil {
			return err
		}
		if err := d.pump(ctx); err != nil {
			d.log.Warn("daemon: transport pump failed", logging.F("err", err.Error()))
		}
	}
}

// Close releases the IPC listener and, if the transport supports it,
// the underlying transceiver (the real SPI device, not the loopback
// transceiver tests use).
func (d *Daemon) Close() error {
	err := d.ipcServer.Close()
	if closer, ok := d.tx.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
