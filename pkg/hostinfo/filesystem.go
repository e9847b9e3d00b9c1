package hostinfo

import (
	"bufio"
	"io"
	"strings"

	"github.com/rrflink/sbcd/pkg/model"
)

// Volume is one mounted, non-RAM filesystem as reported to the object
// model.
type Volume struct {
	MountPoint string
	Device     string
	FSType     string
	Capacity   uint64
	FreeSpace  uint64
}

// ramFilesystems lists fstypes excluded from enumeration because they
// back onto RAM or a kernel interface rather than persistent storage.
var ramFilesystems = map[string]bool{
	"tmpfs": true, "devtmpfs": true, "ramfs": true, "proc": true,
	"sysfs": true, "cgroup": true, "cgroup2": true, "devpts": true,
	"securityfs": true, "pstore": true, "debugfs": true, "tracefs": true,
	"mqueue": true, "overlay": true, "squashfs": true, "binfmt_misc": true,
	"configfs": true, "bpf": true, "autofs": true,
}

type mountEntry struct {
	device     string
	mountPoint string
	fsType     string
}

// parseMounts reads an /proc/mounts-formatted reader.
func parseMounts(r io.Reader) []mountEntry {
	var entries []mountEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, mountEntry{device: fields[0], mountPoint: fields[1], fsType: fields[2]})
	}
	return entries
}

func volumeToModel(v Volume) map[string]interface{} {
	return map[string]interface{}{
		"mountPoint": v.MountPoint,
		"device":     v.Device,
		"fsType":     v.FSType,
		"capacity":   v.Capacity,
		"freeSpace":  v.FreeSpace,
	}
}

// reconcileVolumes writes vols into the top-level volumes list by
// position.
func reconcileVolumes(g *model.WriteGuard, vols []Volume) {
	if len(vols) == 0 {
		g.SetProperty(model.Path{model.Key("volumes")}, []interface{}{})
		return
	}
	for i, v := range vols {
		g.SetCollectionElement(model.Path{model.ArrayElement("volumes", i, len(vols))}, volumeToModel(v))
	}
}
