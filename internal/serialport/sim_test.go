package serialport

import (
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/gps"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newSim(t *testing.T) (Port, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewSimTransport(40.885880, 121.061722)
	tr.Now = clock.now
	p, err := tr.Open(SimPortName, 9600, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	return p, clock
}

func readEpoch(t *testing.T, p Port) []string {
	t.Helper()
	var out []string
	for {
		line, err := p.ReadLine()
		if err != nil {
			t.Fatal(err)
		}
		if line == nil {
			return out
		}
		out = append(out, string(line))
	}
}

func TestSim_EmitsDecodableSentences(t *testing.T) {
	p, _ := newSim(t)
	lines := readEpoch(t, p)
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}

	dec := gps.NewDecoder("sim")
	dec.StrictChecksum = true
	want := []gps.MessageType{gps.TypeRMC, gps.TypeGLL, gps.TypeGGA}
	for i, l := range lines {
		res := dec.Decode(l)
		if !res.OK() {
			t.Fatalf("%q rejected: %s", l, res.Reason)
		}
		if res.Fix.MessageType != want[i] {
			t.Fatalf("line %d type = %s", i, res.Fix.MessageType)
		}
		if d := *res.Fix.Latitude - 40.885880; d > 0.001 || d < -0.001 {
			t.Fatalf("latitude %v too far from centre", *res.Fix.Latitude)
		}
		if d := *res.Fix.Longitude - 121.061722; d > 0.001 || d < -0.001 {
			t.Fatalf("longitude %v too far from centre", *res.Fix.Longitude)
		}
	}
}

func TestSim_HonoursStartupCommands(t *testing.T) {
	p, clock := newSim(t)
	for _, cmd := range []string{"$CFGMSG,0,,0\r\n", "$CFGMSG,0,4,1\r\n", "$CFGMSG,0,1,1\r\n"} {
		if _, err := p.Write([]byte(cmd)); err != nil {
			t.Fatal(err)
		}
	}
	lines := readEpoch(t, p)
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "$GNRMC") || !strings.HasPrefix(lines[1], "$GNGLL") {
		t.Fatalf("lines = %q", lines)
	}

	// nothing more until the next period
	if got := readEpoch(t, p); len(got) != 0 {
		t.Fatalf("extra lines = %q", got)
	}
	clock.t = clock.t.Add(time.Second)
	if got := readEpoch(t, p); len(got) != 2 {
		t.Fatalf("second epoch = %q", got)
	}

	p.Write([]byte("$CFGMSG,0,,0\r\n"))
	clock.t = clock.t.Add(time.Second)
	if got := readEpoch(t, p); len(got) != 0 {
		t.Fatalf("output after disable-all = %q", got)
	}
}

func TestSim_PortsAndClose(t *testing.T) {
	tr := NewSimTransport(0, 0)
	ports, _ := tr.Enumerate()
	if len(ports) != 1 || ports[0] != SimPortName {
		t.Fatalf("ports = %v", ports)
	}
	if _, err := tr.Open("/dev/ttyUSB0", 9600, time.Second); err == nil {
		t.Fatalf("opened a non-simulated port")
	}

	p, _ := newSim(t)
	p.Close()
	if _, err := p.ReadLine(); err == nil {
		t.Fatalf("read after close succeeded")
	}
}

func TestDM(t *testing.T) {
	cases := []struct {
		v         float64
		lng       bool
		val, hemi string
	}{
		{48.1173, false, "4807.0380", "N"},
		{-33.5, false, "3330.0000", "S"},
		{11.516667, true, "01131.0000", "E"},
		{-122.25, true, "12215.0000", "W"},
	}
	for _, c := range cases {
		val, hemi := dm(c.v, c.lng)
		if val != c.val || hemi != c.hemi {
			t.Errorf("dm(%v) = %s %s, want %s %s", c.v, val, hemi, c.val, c.hemi)
		}
	}
}
