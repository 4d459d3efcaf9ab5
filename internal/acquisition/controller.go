// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package acquisition owns the serial streaming lifecycle: port acquisition,
// the receiver startup sequence, the read/decode/publish step and counters.
//
// The Controller is the only writer of streaming state. Start, Stop, Step and
// Cleanup are serialized; other goroutines read state through Snapshot.
package acquisition

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/ratelimit"

	"github.com/relabs-tech/gps_bridge/internal/gps"
	"github.com/relabs-tech/gps_bridge/internal/metrics"
	"github.com/relabs-tech/gps_bridge/internal/serialport"
)

// State is the acquisition lifecycle state.
type State int

const (
	Idle State = iota
	Starting
	Streaming
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StartupCommands disable all sentences, then enable RMC and GLL at 1 Hz.
var StartupCommands = [][]byte{
	[]byte("$CFGMSG,0,,0\r\n"),
	[]byte("$CFGMSG,0,4,1\r\n"),
	[]byte("$CFGMSG,0,1,1\r\n"),
}

// progressEvery is how many published fixes go by between progress log lines.
const progressEvery = 10

// FixPublisher sends a decoded fix downstream.
type FixPublisher interface {
	PublishFix(fix *gps.FixRecord) error
}

// Options configures a Controller.
type Options struct {
	PortName      string // empty: first enumerated port
	BaudRate      int
	ReadTimeout   time.Duration
	CommandPacing time.Duration // delay between startup commands; <= 0 disables
	Debug         bool          // log raw lines
}

// Snapshot is a read-only copy of the streaming state.
type Snapshot struct {
	State          State
	Streaming      bool
	SerialOpen     bool
	Port           string
	SentCount      int
	LastStartError string
}

// Controller is the acquisition state machine.
type Controller struct {
	opts      Options
	transport serialport.Transport
	decoder   *gps.Decoder
	publisher FixPublisher

	// OnStateChange runs after a successful Start or Stop (status publish).
	OnStateChange func()
	// OnCleanup runs once from Cleanup (broker shutdown).
	OnCleanup func()

	opMu sync.Mutex // serializes Start, Stop, Step, Cleanup

	mu             sync.RWMutex
	state          State
	port           serialport.Port
	portName       string
	sentCount      int
	lastStartError string
	cleaned        bool
}

// New returns an Idle controller.
func New(opts Options, t serialport.Transport, d *gps.Decoder, p FixPublisher) *Controller {
	if opts.BaudRate == 0 {
		opts.BaudRate = 9600
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	return &Controller{
		opts:      opts,
		transport: t,
		decoder:   d,
		publisher: p,
		state:     Idle,
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		State:          c.state,
		Streaming:      c.state == Streaming,
		SerialOpen:     c.port != nil,
		Port:           c.portName,
		SentCount:      c.sentCount,
		LastStartError: c.lastStartError,
	}
}

// Streaming reports whether the read loop is active.
func (c *Controller) Streaming() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == Streaming
}

// LastStartError is the failure text of the most recent Start, or "".
func (c *Controller) LastStartError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastStartError
}

// Start acquires the port, sends the startup sequence and begins streaming.
// It never panics or returns an error; on failure it returns false and the
// reason is available from LastStartError.
func (c *Controller) Start() (ok bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Streaming() {
		log.Println("gps: acquisition already running")
		return true
	}

	c.mu.Lock()
	c.state = Starting
	c.lastStartError = ""
	c.sentCount = 0
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.failStart(fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	port, name, err := serialport.Acquire(c.transport, c.opts.PortName, c.opts.BaudRate, c.opts.ReadTimeout)
	if err != nil {
		c.failStart(err)
		return false
	}

	c.sendStartupCommands(port)

	c.mu.Lock()
	c.port = port
	c.portName = name
	c.state = Streaming
	c.mu.Unlock()
	metrics.Streaming.Set(1)

	log.Printf("gps: acquisition started on %s", name)
	c.notify()
	return true
}

func (c *Controller) failStart(err error) {
	log.Printf("gps: failed to start acquisition: %v", err)
	c.mu.Lock()
	c.state = Idle
	c.lastStartError = err.Error()
	c.mu.Unlock()
	metrics.Streaming.Set(0)
}

// sendStartupCommands writes StartupCommands paced by CommandPacing. A failed
// write is logged and the sequence continues.
func (c *Controller) sendStartupCommands(port serialport.Port) {
	limiter := ratelimit.NewUnlimited()
	if c.opts.CommandPacing > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(c.opts.CommandPacing), ratelimit.WithoutSlack)
	}
	for _, cmd := range StartupCommands {
		limiter.Take()
		if _, err := port.Write(cmd); err != nil {
			log.Printf("gps: failed to send command %s: %v", bytes.TrimSpace(cmd), err)
			continue
		}
		log.Printf("gps: sent config command %s", bytes.TrimSpace(cmd))
	}
	// settle time after the last command
	limiter.Take()
}

// Stop ends streaming and closes the port. Stopping when not streaming is a no-op.
func (c *Controller) Stop() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.Streaming() {
		log.Println("gps: acquisition already stopped")
		return true
	}
	c.stopLocked()
	return true
}

// stopLocked requires opMu.
func (c *Controller) stopLocked() {
	c.mu.Lock()
	port := c.port
	c.port = nil
	c.state = Stopped
	c.mu.Unlock()
	metrics.Streaming.Set(0)

	closeQuietly(port)
	log.Println("gps: acquisition stopped")
	c.notify()
}

// Step runs one read-loop iteration: read a line (bounded by the read
// timeout), decode it and publish a fix. Does nothing unless streaming.
// A serial error stops streaming; the process keeps running.
func (c *Controller) Step() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	port := c.port
	streaming := c.state == Streaming
	c.mu.RUnlock()
	if !streaming || port == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("gps: error processing data: %v", r)
		}
	}()

	raw, err := port.ReadLine()
	if err != nil {
		log.Printf("gps: serial error: %v", err)
		metrics.SerialErrors.Inc()
		c.stopLocked()
		return
	}

	line := strings.TrimSpace(string(bytes.ToValidUTF8(raw, nil)))
	if line == "" {
		return
	}
	if c.opts.Debug {
		log.Printf("gps: raw NMEA: %s", line)
	}

	res := c.decoder.Decode(line)
	if !res.OK() {
		metrics.SentencesRejected.WithLabelValues(string(res.Reason)).Inc()
		return
	}

	if err := c.publisher.PublishFix(res.Fix); err != nil {
		log.Printf("gps: publish %s failed: %v", res.Fix.MessageType, err)
		metrics.PublishErrors.Inc()
		return
	}
	metrics.FixesPublished.WithLabelValues(string(res.Fix.MessageType)).Inc()

	c.mu.Lock()
	c.sentCount++
	n := c.sentCount
	c.mu.Unlock()

	if n%progressEvery == 0 {
		log.Printf("gps: running, %s fixes sent", humanize.Comma(int64(n)))
	}
}

// Cleanup stops streaming, closes the port and runs OnCleanup. Only the first
// call has an effect; it never panics.
func (c *Controller) Cleanup() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	port := c.port
	c.port = nil
	c.state = Idle
	c.mu.Unlock()
	metrics.Streaming.Set(0)

	closeQuietly(port)

	if c.OnCleanup != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("gps: cleanup: %v", r)
				}
			}()
			c.OnCleanup()
		}()
	}
}

func (c *Controller) notify() {
	if c.OnStateChange != nil {
		c.OnStateChange()
	}
}

func closeQuietly(p serialport.Port) {
	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		log.Printf("gps: serial close: %v", err)
		return
	}
	log.Println("gps: serial port closed")
}
