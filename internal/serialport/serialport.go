// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialport is the byte transport to the GPS receiver: port
// enumeration, open/close, line reads with a bounded timeout, and writes.
package serialport

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// Port is an open serial port.
type Port interface {
	// ReadLine returns the next complete line without its terminator, or
	// (nil, nil) if none arrived before the read timeout.
	ReadLine() ([]byte, error)
	Write(p []byte) (int, error)
	Close() error
}

// Transport enumerates and opens serial ports.
type Transport interface {
	Enumerate() ([]string, error)
	Open(name string, baud int, timeout time.Duration) (Port, error)
}

// Driver names accepted by NewTransport.
const (
	DriverBugst   = "bugst"
	DriverJacobsa = "jacobsa"
	DriverSim     = "sim"
)

// NewTransport returns the transport for driver ("" selects bugst).
func NewTransport(driver string) (Transport, error) {
	switch strings.ToLower(driver) {
	case "", DriverBugst:
		return BugstTransport{}, nil
	case DriverJacobsa:
		return JacobsaTransport{}, nil
	case DriverSim:
		return NewSimTransport(simLatitude, simLongitude), nil
	default:
		return nil, fmt.Errorf("unknown serial driver %q", driver)
	}
}

// Default simulator centre.
const (
	simLatitude  = 40.885880
	simLongitude = 121.061722
)

// Acquire selects and opens a port. With an empty name the first enumerated
// port is used; a named port must be among the enumerated ones.
func Acquire(t Transport, name string, baud int, timeout time.Duration) (Port, string, error) {
	available, err := t.Enumerate()
	if err != nil {
		log.Printf("serial: port enumeration failed: %v", err)
		available = nil
	}

	if name == "" {
		if len(available) == 0 {
			return nil, "", ErrNoPortAvailable
		}
		name = available[0]
		log.Printf("serial: no port configured, auto-selected %s", name)
	} else if !contains(available, name) {
		e := &PortUnavailableError{Port: name, Available: available}
		for _, p := range available {
			if strings.EqualFold(p, name) {
				e.CaseMatch = p
				break
			}
		}
		return nil, "", e
	}

	p, err := t.Open(name, baud, timeout)
	if err != nil {
		return nil, "", &PortOpenError{
			Port:      name,
			Available: available,
			Hint:      classifyOpenError(err),
			Err:       err,
		}
	}
	log.Printf("serial: opened %s at %d baud", name, baud)
	return p, name, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// maxLineLen bounds a line with no terminator; NMEA caps sentences at 82 bytes.
const maxLineLen = 4096

// lineReader splits a timed-out byte stream into lines, keeping partial data
// between calls.
type lineReader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r, chunk: make([]byte, 256)}
}

func (l *lineReader) ReadLine() ([]byte, error) {
	for {
		if line, ok := l.take(); ok {
			return line, nil
		}
		n, err := l.r.Read(l.chunk)
		if n > 0 {
			l.buf = append(l.buf, l.chunk[:n]...)
			if len(l.buf) > maxLineLen {
				l.buf = l.buf[:0]
			}
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
	}
}

func (l *lineReader) take() ([]byte, bool) {
	i := bytes.IndexByte(l.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := bytes.TrimRight(l.buf[:i], "\r")
	out := make([]byte, len(line))
	copy(out, line)
	l.buf = append(l.buf[:0], l.buf[i+1:]...)
	return out, true
}

// port adapts an io.ReadWriteCloser to Port.
type port struct {
	rw    io.ReadWriteCloser
	lines *lineReader
}

func newPort(rw io.ReadWriteCloser) *port {
	return &port{rw: rw, lines: newLineReader(rw)}
}

func (p *port) ReadLine() ([]byte, error)   { return p.lines.ReadLine() }
func (p *port) Write(b []byte) (int, error) { return p.rw.Write(b) }
func (p *port) Close() error                { return p.rw.Close() }
