// Package hostinfo implements the periodic host updater: on each
// tick it reconciles the host's own network interfaces and mounted
// filesystems into the object model, retires stale log messages, and
// watches for clock or hostname drift the firmware should be told
// about.
package hostinfo

import (
	"context"
	"os"
	"time"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/model"
)

// CodeSubmitter is the channel scheduler's submission surface, as
// needed to deliver a synthesized resync code on drift.
type CodeSubmitter interface {
	Submit(code *gcode.Code)
}

// Updater is T3: it ticks every interval, refreshing the object
// model's host-observed facts and pruning the shared message log.
type Updater struct {
	store *model.Store
	sched CodeSubmitter
	msgs  *MessageLog
	log   *logging.Logger

	interval      time.Duration
	maxMessageAge time.Duration
	clockTol      time.Duration

	drift driftDetector
}

// New returns an Updater. msgs should be the same MessageLog passed
// to scheduler.New as the MessageLog, so pruning here affects the log
// the scheduler is actually writing into.
func New(store *model.Store, sched CodeSubmitter, msgs *MessageLog, log *logging.Logger, interval, maxMessageAge, clockTol time.Duration) *Updater {
	return &Updater{
		store:         store,
		sched:         sched,
		msgs:          msgs,
		log:           log,
		interval:      interval,
		maxMessageAge: maxMessageAge,
		clockTol:      clockTol,
	}
}

// Run blocks, ticking every interval until ctx is cancelled.
func (u *Updater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			u.tick(now)
		}
	}
}

func (u *Updater) tick(now time.Time) {
	if ifaces, err := collectInterfaces(); err != nil {
		u.log.Warn("hostinfo: collecting network interfaces", logging.F("err", err))
	} else {
		g := u.store.AccessReadWrite()
		reconcileInterfaces(g, ifaces)
		g.Release()
	}

	if vols, err := collectVolumes(); err != nil {
		u.log.Warn("hostinfo: collecting volumes", logging.F("err", err))
	} else {
		g := u.store.AccessReadWrite()
		reconcileVolumes(g, vols)
		g.Release()
	}

	u.msgs.Prune(u.maxMessageAge)

	if u.drift.checkClock(now, u.interval, u.clockTol) {
		u.log.Warn("hostinfo: system clock drift detected")
		u.sched.Submit(timeSyncCode(now))
	}

	hostname, err := os.Hostname()
	if err != nil {
		u.log.Warn("hostinfo: reading hostname", logging.F("err", err))
		return
	}
	if u.drift.checkHostname(hostname) {
		u.log.Warn("hostinfo: hostname changed", logging.F("hostname", hostname))
		u.sched.Submit(hostnameSyncCode(hostname))
	}
}
