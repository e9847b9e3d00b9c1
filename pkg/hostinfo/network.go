package hostinfo

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/rrflink/sbcd/pkg/model"
)

// NetworkInterface is one host network interface as reported to the
// object model.
type NetworkInterface struct {
	Name      string
	Type      string // "lan" or "wifi"
	MAC       string
	SpeedMbit int
	IPAddress string
	Subnet    string
	Gateway   string
	DNS       []string
	Signal    int // dBm, only meaningful when HasSignal
	HasSignal bool
}

// classifyType follows the common w*-prefix convention (wlan0,
// wlp2s0, ...) for telling WiFi interfaces from wired ones.
func classifyType(name string) string {
	if strings.HasPrefix(name, "w") {
		return "wifi"
	}
	return "lan"
}

// parseDefaultGateway reads an /proc/net/route-formatted table and
// returns the gateway of iface's default route (destination
// 00000000), or "" if it has none.
func parseDefaultGateway(r io.Reader, iface string) string {
	scanner := bufio.NewScanner(r)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != iface || fields[1] != "00000000" {
			continue
		}
		return hexLittleEndianIP(fields[2])
	}
	return ""
}

// hexLittleEndianIP decodes /proc/net/route's little-endian hex IPv4
// encoding into dotted-quad form.
func hexLittleEndianIP(hex string) string {
	if len(hex) != 8 {
		return ""
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return ""
	}
	return strconv.Itoa(int(v&0xff)) + "." +
		strconv.Itoa(int((v>>8)&0xff)) + "." +
		strconv.Itoa(int((v>>16)&0xff)) + "." +
		strconv.Itoa(int((v>>24)&0xff))
}

// parseResolvConf extracts nameserver addresses from an
// /etc/resolv.conf-formatted reader.
func parseResolvConf(r io.Reader) []string {
	var dns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			dns = append(dns, fields[1])
		}
	}
	return dns
}

// parseWirelessSignal extracts iface's link-quality signal field from
// an /proc/net/wireless-formatted reader.
func parseWirelessSignal(r io.Reader, iface string) (int, bool) {
	scanner := bufio.NewScanner(r)
	scanner.Scan()
	scanner.Scan() // two header lines
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || strings.TrimSuffix(fields[0], ":") != iface {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSuffix(fields[3], "."))
		if err != nil {
			return 0, false
		}
		return signal, true
	}
	return 0, false
}

func interfaceToModel(n NetworkInterface) map[string]interface{} {
	m := map[string]interface{}{
		"name":      n.Name,
		"type":      n.Type,
		"mac":       n.MAC,
		"speed":     n.SpeedMbit,
		"actualIP":  n.IPAddress,
		"subnet":    n.Subnet,
		"gateway":   n.Gateway,
		"dnsServer": n.DNS,
	}
	if n.HasSignal {
		m["signal"] = n.Signal
	}
	return m
}

// reconcileInterfaces writes ifaces into network.interfaces by
// position: existing slots are overwritten, new ones appended, extra
// ones truncated.
func reconcileInterfaces(g *model.WriteGuard, ifaces []NetworkInterface) {
	if len(ifaces) == 0 {
		g.SetProperty(model.Path{model.Key("network"), model.Key("interfaces")}, []interface{}{})
		return
	}
	for i, nic := range ifaces {
		path := model.Path{model.Key("network"), model.ArrayElement("interfaces", i, len(ifaces))}
		g.SetCollectionElement(path, interfaceToModel(nic))
	}
}
