package hostinfo

import (
	"strings"
	"testing"
	"time"

	"github.com/rrflink/sbcd/pkg/model"
	"github.com/rrflink/sbcd/pkg/scheduler"
)

func TestParseDefaultGateway(t *testing.T) {
	const table = `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	00000000	0101080A	0003	0	0	0	00000000	0	0	0
eth0	0001080A	00000000	0001	0	0	0	00FFFFFF	0	0	0
`
	gw := parseDefaultGateway(strings.NewReader(table), "eth0")
	if gw != "10.8.1.1" {
		t.Fatalf("unexpected gateway: %q", gw)
	}

	if gw := parseDefaultGateway(strings.NewReader(table), "wlan0"); gw != "" {
		t.Fatalf("expected no gateway for unknown iface, got %q", gw)
	}
}

func TestParseResolvConf(t *testing.T) {
	const conf = "nameserver 8.8.8.8\nnameserver 1.1.1.1\nsearch example.com\n"
	dns := parseResolvConf(strings.NewReader(conf))
	if len(dns) != 2 || dns[0] != "8.8.8.8" || dns[1] != "1.1.1.1" {
		t.Fatalf("unexpected dns servers: %v", dns)
	}
}

func TestParseWirelessSignal(t *testing.T) {
	const table = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
wlan0: 0000   56.  -54.  -256        0      0      0      0      0        0
`
	signal, ok := parseWirelessSignal(strings.NewReader(table), "wlan0")
	if !ok || signal != -54 {
		t.Fatalf("expected signal -54, got %d ok=%v", signal, ok)
	}
	if _, ok := parseWirelessSignal(strings.NewReader(table), "eth0"); ok {
		t.Fatal("expected no signal for wired interface")
	}
}

func TestClassifyType(t *testing.T) {
	if classifyType("wlan0") != "wifi" {
		t.Fatal("expected wlan0 to classify as wifi")
	}
	if classifyType("eth0") != "lan" {
		t.Fatal("expected eth0 to classify as lan")
	}
}

func TestReconcileInterfaces_AppendsAndTruncates(t *testing.T) {
	store := model.New()

	g := store.AccessReadWrite()
	reconcileInterfaces(g, []NetworkInterface{{Name: "eth0"}, {Name: "wlan0"}, {Name: "usb0"}})
	g.Release()

	r := store.AccessReadOnly()
	network := r.Tree()["network"].(map[string]interface{})
	ifaces := network["interfaces"].([]interface{})
	r.Release()
	if len(ifaces) != 3 {
		t.Fatalf("expected 3 interfaces, got %d", len(ifaces))
	}

	g2 := store.AccessReadWrite()
	reconcileInterfaces(g2, []NetworkInterface{{Name: "eth0"}})
	g2.Release()

	r2 := store.AccessReadOnly()
	network2 := r2.Tree()["network"].(map[string]interface{})
	ifaces2 := network2["interfaces"].([]interface{})
	r2.Release()
	if len(ifaces2) != 1 {
		t.Fatalf("expected truncation to 1 interface, got %d", len(ifaces2))
	}
	first := ifaces2[0].(map[string]interface{})
	if first["name"] != "eth0" {
		t.Fatalf("unexpected surviving interface: %+v", first)
	}
}

func TestReconcileVolumes_EmptyClearsList(t *testing.T) {
	store := model.New()

	g := store.AccessReadWrite()
	reconcileVolumes(g, []Volume{{MountPoint: "/"}, {MountPoint: "/boot"}})
	g.Release()

	g2 := store.AccessReadWrite()
	reconcileVolumes(g2, nil)
	g2.Release()

	r := store.AccessReadOnly()
	vols := r.Tree()["volumes"].([]interface{})
	r.Release()
	if len(vols) != 0 {
		t.Fatalf("expected empty volumes list, got %d", len(vols))
	}
}

func TestMessageLog_LogThenPrune(t *testing.T) {
	store := model.New()
	log := NewMessageLog(store)

	log.Log(scheduler.SeverityWarning, "bed temperature fault")

	r := store.AccessReadOnly()
	messages := r.Tree()["messages"].([]interface{})
	r.Release()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	log.entries[0].at = time.Now().Add(-2 * time.Hour)
	log.Prune(time.Hour)

	r2 := store.AccessReadOnly()
	messages2 := r2.Tree()["messages"].([]interface{})
	r2.Release()
	if len(messages2) != 0 {
		t.Fatalf("expected expired message to be pruned, got %d", len(messages2))
	}
}

func TestDriftDetector_ClockAndHostname(t *testing.T) {
	var d driftDetector
	base := time.Now()

	if d.checkClock(base, time.Second, 100*time.Millisecond) {
		t.Fatal("first tick should never report drift")
	}
	if d.checkClock(base.Add(time.Second), time.Second, 100*time.Millisecond) {
		t.Fatal("on-schedule tick should not report drift")
	}
	if !d.checkClock(base.Add(10*time.Second), time.Second, 100*time.Millisecond) {
		t.Fatal("a large unexplained jump should report drift")
	}

	if d.checkHostname("printer1") {
		t.Fatal("first hostname observation should never report drift")
	}
	if d.checkHostname("printer1") {
		t.Fatal("unchanged hostname should not report drift")
	}
	if !d.checkHostname("printer2") {
		t.Fatal("changed hostname should report drift")
	}
}

func TestTimeSyncCode_AndHostnameSyncCode(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	code := timeSyncCode(now)
	if code.Major != 905 || !code.HasMajor {
		t.Fatalf("expected M905, got %+v", code)
	}

	host := hostnameSyncCode("printer1")
	if host.Major != 550 || !host.HasMajor {
		t.Fatalf("expected M550, got %+v", host)
	}
}
