package hostinfo

import (
	"os"

	"golang.org/x/sys/unix"
)

// collectVolumes enumerates mounted, non-RAM filesystems with a
// positive total size.
func collectVolumes() ([]Volume, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Volume
	for _, m := range parseMounts(f) {
		if ramFilesystems[m.fsType] {
			continue
		}

		var st unix.Statfs_t
		if err := unix.Statfs(m.mountPoint, &st); err != nil {
			continue
		}
		capacity := st.Blocks * uint64(st.Bsize)
		if capacity == 0 {
			continue
		}

		out = append(out, Volume{
			MountPoint: m.mountPoint,
			Device:     m.device,
			FSType:     m.fsType,
			Capacity:   capacity,
			FreeSpace:  st.Bfree * uint64(st.Bsize),
		})
	}
	return out, nil
}
