package serialport

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// SimPortName is the only port the simulator enumerates.
const SimPortName = "sim0"

// $CFGMSG message ids understood by the simulated receiver.
const (
	simGGA = 0
	simGLL = 1
	simRMC = 4
)

// SimTransport is a simulated receiver that drives in a circle around a
// centre point and emits NMEA once per period. It honours $CFGMSG so the
// startup sequence has the same effect as on the real receiver.
type SimTransport struct {
	Latitude  float64
	Longitude float64
	Period    time.Duration
	Now       func() time.Time
}

// NewSimTransport centres the simulation on lat/lng.
func NewSimTransport(lat, lng float64) *SimTransport {
	return &SimTransport{Latitude: lat, Longitude: lng, Period: time.Second, Now: time.Now}
}

func (s *SimTransport) Enumerate() ([]string, error) { return []string{SimPortName}, nil }

func (s *SimTransport) Open(name string, _ int, timeout time.Duration) (Port, error) {
	if name != SimPortName {
		return nil, fmt.Errorf("simulator has no port %s", name)
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	period := s.Period
	if period <= 0 {
		period = time.Second
	}
	return &simPort{
		lat:     s.Latitude,
		lng:     s.Longitude,
		period:  period,
		timeout: timeout,
		now:     now,
		start:   now(),
		enabled: map[int]bool{simGGA: true, simGLL: true, simRMC: true},
	}, nil
}

type simPort struct {
	mu       sync.Mutex
	lat, lng float64
	period   time.Duration
	timeout  time.Duration
	now      func() time.Time
	start    time.Time
	last     time.Time
	tick     int
	enabled  map[int]bool
	pending  []string
	closed   bool
}

func (p *simPort) ReadLine() ([]byte, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("simulator port closed")
	}
	if len(p.pending) == 0 {
		now := p.now()
		if p.last.IsZero() || now.Sub(p.last) >= p.period {
			p.last = now
			p.pending = p.sentences(now)
			p.tick++
		}
	}
	if len(p.pending) > 0 {
		line := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()
		return []byte(line), nil
	}
	wait := p.period - p.now().Sub(p.last)
	p.mu.Unlock()

	if wait > p.timeout {
		wait = p.timeout
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	return nil, nil
}

// Write accepts $CFGMSG,<class>,<id>,<rate>; an empty id applies to all sentences.
func (p *simPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, fmt.Errorf("simulator port closed")
	}

	cmd := strings.TrimSpace(string(b))
	fields := strings.Split(strings.TrimPrefix(cmd, "$"), ",")
	if len(fields) != 4 || fields[0] != "CFGMSG" {
		return len(b), nil
	}
	on := fields[3] != "" && fields[3] != "0"
	if fields[2] == "" {
		for id := range p.enabled {
			p.enabled[id] = on
		}
		return len(b), nil
	}
	if id, err := strconv.Atoi(fields[2]); err == nil {
		p.enabled[id] = on
	}
	return len(b), nil
}

func (p *simPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// sentences builds one epoch of output. Caller holds mu.
func (p *simPort) sentences(now time.Time) []string {
	const radius = 0.0005 // degrees, roughly 50 m
	t := float64(p.tick) * 0.1
	lat := p.lat + radius*math.Sin(t)
	lng := p.lng + radius*math.Cos(t)
	knots := 5 + 2*math.Sin(t*0.3)
	course := math.Mod(float64(p.tick)*5.7, 360)

	utc := now.UTC()
	hms := utc.Format("150405") + ".00"
	latS, ns := dm(lat, false)
	lngS, ew := dm(lng, true)

	var out []string
	if p.enabled[simRMC] {
		out = append(out, sentence(fmt.Sprintf("GNRMC,%s,A,%s,%s,%s,%s,%.3f,%.2f,%s,,,A",
			hms, latS, ns, lngS, ew, knots, course, utc.Format("020106"))))
	}
	if p.enabled[simGLL] {
		out = append(out, sentence(fmt.Sprintf("GNGLL,%s,%s,%s,%s,%s,A,A", latS, ns, lngS, ew, hms)))
	}
	if p.enabled[simGGA] {
		out = append(out, sentence(fmt.Sprintf("GNGGA,%s,%s,%s,%s,%s,1,12,0.8,76.0,M,0.0,M,,",
			hms, latS, ns, lngS, ew)))
	}
	return out
}

func sentence(body string) string {
	return "$" + body + "*" + nmea.Checksum(body)
}

// dm formats decimal degrees as NMEA degrees-minutes plus hemisphere.
func dm(v float64, longitude bool) (string, string) {
	hemi := "N"
	switch {
	case longitude && v < 0:
		hemi = "W"
	case longitude:
		hemi = "E"
	case v < 0:
		hemi = "S"
	}
	v = math.Abs(v)
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	if longitude {
		return fmt.Sprintf("%03d%07.4f", int(deg), minutes), hemi
	}
	return fmt.Sprintf("%02d%07.4f", int(deg), minutes), hemi
}
