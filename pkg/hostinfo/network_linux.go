package hostinfo

import (
	"net"
	"os"
	"strconv"
	"strings"
)

// collectInterfaces enumerates the host's non-loopback network
// interfaces.
func collectInterfaces() ([]NetworkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var dns []string
	if f, err := os.Open("/etc/resolv.conf"); err == nil {
		dns = parseResolvConf(f)
		f.Close()
	}

	var out []NetworkInterface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		nic := NetworkInterface{
			Name: iface.Name,
			Type: classifyType(iface.Name),
			MAC:  iface.HardwareAddr.String(),
			DNS:  dns,
		}

		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			nic.IPAddress = ipnet.IP.String()
			nic.Subnet = net.IP(ipnet.Mask).String()
			break
		}

		if f, err := os.Open("/proc/net/route"); err == nil {
			nic.Gateway = parseDefaultGateway(f, iface.Name)
			f.Close()
		}

		if speed, err := readSysfsInt("/sys/class/net/" + iface.Name + "/speed"); err == nil && speed > 0 {
			nic.SpeedMbit = speed
		}

		if nic.Type == "wifi" {
			if f, err := os.Open("/proc/net/wireless"); err == nil {
				nic.Signal, nic.HasSignal = parseWirelessSignal(f, iface.Name)
				f.Close()
			}
		}

		out = append(out, nic)
	}
	return out, nil
}

// readSysfsInt reads a sysfs attribute file holding a single integer,
// e.g. a NIC's negotiated link speed. Down interfaces report -1 or
// fail the read; either way the caller just keeps SpeedMbit at zero.
func readSysfsInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
