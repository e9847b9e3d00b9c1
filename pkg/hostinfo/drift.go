package hostinfo

import (
	"fmt"
	"time"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// driftDetector tracks the host's own wall-clock progression and
// hostname across ticks, so the updater can tell a genuine clock step
// or rename apart from its own first tick.
type driftDetector struct {
	haveTick     bool
	lastTick     time.Time
	lastHostname string
}

// checkClock reports whether elapsed wall-clock time since the
// previous tick differs from interval by more than tol: the system
// clock itself moved (NTP step, manual set), not that the updater
// merely ran a little late.
func (d *driftDetector) checkClock(now time.Time, interval, tol time.Duration) bool {
	defer func() {
		d.lastTick = now
		d.haveTick = true
	}()
	if !d.haveTick {
		return false
	}
	drift := now.Sub(d.lastTick) - interval
	if drift < 0 {
		drift = -drift
	}
	return drift > tol
}

// checkHostname reports whether hostname changed since the previous
// tick.
func (d *driftDetector) checkHostname(hostname string) bool {
	changed := d.lastHostname != "" && hostname != d.lastHostname
	d.lastHostname = hostname
	return changed
}

// timeSyncCode synthesizes the M905 call for on clock drift, stamping
// the firmware's date and time from the host's clock.
func timeSyncCode(now time.Time) *gcode.Code {
	code := gcode.NewCode(gcode.ChannelTrigger)
	code.Type = gcode.TypeM
	code.HasMajor = true
	code.Major = 905
	code.Origin = gcode.OriginTrigger
	code.Parameters = []gcode.Parameter{
		{Letter: 'P', Value: fmt.Sprintf("%q", now.Format("2006-01-02"))},
		{Letter: 'S', Value: fmt.Sprintf("%q", now.Format("15:04:05"))},
	}
	return code
}

// hostnameSyncCode synthesizes the M550 call for on hostname drift,
// reporting the host's new name to the firmware.
func hostnameSyncCode(hostname string) *gcode.Code {
	code := gcode.NewCode(gcode.ChannelTrigger)
	code.Type = gcode.TypeM
	code.HasMajor = true
	code.Major = 550
	code.Origin = gcode.OriginTrigger
	code.Parameters = []gcode.Parameter{
		{Letter: 'P', Value: fmt.Sprintf("%q", hostname)},
	}
	return code
}
