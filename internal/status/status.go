// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status builds the device status snapshot published on the status
// topic and embedded in "status" command results.
package status

import (
	"bufio"
	"math"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/acquisition"
	"github.com/relabs-tech/gps_bridge/internal/gps"
)

const messageType = "STATUS"

// Defaults for the system probes.
const (
	DefaultMeminfoPath = "/proc/meminfo"
	DefaultProbeAddr   = "8.8.8.8:80"
)

// Snapshot is the STATUS message.
type Snapshot struct {
	MessageType   string     `json:"message_type"`
	DeviceID      string     `json:"device_id"`
	Running       bool       `json:"running"`
	SerialOpen    bool       `json:"serial_open"`
	MQTTConnected bool       `json:"mqtt_connected"`
	SentCount     int        `json:"sent_count"`
	Timestamp     string     `json:"timestamp"`
	SystemInfo    SystemInfo `json:"system_info"`
}

// SystemInfo is best-effort host information; unavailable probes are omitted.
type SystemInfo struct {
	CPUCores  int     `json:"cpu_cores"`
	CPULoad   *Load   `json:"cpu_load,omitempty"`
	Memory    *Memory `json:"memory,omitempty"`
	IPAddress string  `json:"ip_address,omitempty"`
}

// Load holds the 1/5/15 minute load averages.
type Load struct {
	One     float64 `json:"1m"`
	Five    float64 `json:"5m"`
	Fifteen float64 `json:"15m"`
}

// Memory is in megabytes.
type Memory struct {
	TotalMB     float64 `json:"total_mb"`
	AvailableMB float64 `json:"available_mb"`
}

// StateSource exposes the acquisition state.
type StateSource interface {
	Snapshot() acquisition.Snapshot
}

// ConnSource reports broker connectivity.
type ConnSource interface {
	Connected() bool
}

// Reporter assembles snapshots for one device.
type Reporter struct {
	DeviceID string
	State    StateSource
	Broker   ConnSource // may be nil

	MeminfoPath string
	ProbeAddr   string
	Now         func() time.Time
}

// Snapshot captures the current status.
func (r *Reporter) Snapshot() Snapshot {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	s := Snapshot{
		MessageType: messageType,
		DeviceID:    r.DeviceID,
		Timestamp:   gps.ISOTime(now()),
		SystemInfo:  r.systemInfo(),
	}
	if r.State != nil {
		st := r.State.Snapshot()
		s.Running = st.Streaming
		s.SerialOpen = st.SerialOpen
		s.SentCount = st.SentCount
	}
	if r.Broker != nil {
		s.MQTTConnected = r.Broker.Connected()
	}
	return s
}

func (r *Reporter) systemInfo() SystemInfo {
	meminfo := r.MeminfoPath
	if meminfo == "" {
		meminfo = DefaultMeminfoPath
	}
	probe := r.ProbeAddr
	if probe == "" {
		probe = DefaultProbeAddr
	}

	info := SystemInfo{
		CPUCores:  runtime.NumCPU(),
		Memory:    readMeminfo(meminfo),
		IPAddress: localIP(probe),
	}
	if l, ok := loadAverage(); ok {
		info.CPULoad = &Load{One: round2(l[0]), Five: round2(l[1]), Fifteen: round2(l[2])}
	}
	return info
}

// readMeminfo parses MemTotal/MemAvailable (kB) from a /proc/meminfo style file.
func readMeminfo(path string) *Memory {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	data := make(map[string]int64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		data[key] = kb
	}
	if sc.Err() != nil || len(data) == 0 {
		return nil
	}
	return &Memory{
		TotalMB:     round2(float64(data["MemTotal"]) / 1024),
		AvailableMB: round2(float64(data["MemAvailable"]) / 1024),
	}
}

// localIP returns the address of the interface that routes to addr. UDP
// connect sends nothing.
func localIP(addr string) string {
	conn, err := net.DialTimeout("udp", addr, time.Second)
	if err != nil {
		return ""
	}
	defer conn.Close()
	ua, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || ua.IP == nil {
		return ""
	}
	return ua.IP.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
