// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control handles commands received on the control topic and
// reports every outcome on the command-result topic.
package control

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/gps"
	"github.com/relabs-tech/gps_bridge/internal/metrics"
	"github.com/relabs-tech/gps_bridge/internal/status"
)

const messageType = "COMMAND_RESULT"

// Help lists the supported commands.
var Help = map[string]string{
	"start":  "start or resume GPS acquisition",
	"stop":   "stop GPS acquisition",
	"status": "return device status",
	"help":   "list supported commands",
}

// Acquisition is the part of the acquisition controller the channel drives.
type Acquisition interface {
	Start() bool
	Stop() bool
	Streaming() bool
	LastStartError() string
}

// StatusSource builds status snapshots.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Result is one COMMAND_RESULT message. Extra keys are merged into the
// top-level JSON object.
type Result struct {
	DeviceID  string
	Command   string
	Success   bool
	Message   string
	Timestamp string
	Extra     map[string]any
}

// MarshalJSON flattens Extra into the object.
func (r Result) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		m[k] = v
	}
	m["message_type"] = messageType
	m["device_id"] = r.DeviceID
	m["command"] = r.Command
	m["success"] = r.Success
	m["message"] = r.Message
	m["timestamp"] = r.Timestamp
	return json.Marshal(m)
}

// Channel dispatches control commands.
type Channel struct {
	DeviceID    string
	ResultTopic string
	StatusTopic string

	Acq       Acquisition
	Status    StatusSource
	Publisher Publisher
	Now       func() time.Time
}

// ParseCommand extracts the command name from a control payload: the JSON
// "command" field when present, otherwise the whole trimmed text. The
// result is lower-cased.
func ParseCommand(payload []byte) string {
	text := strings.TrimSpace(strings.ToValidUTF8(string(payload), ""))
	command := strings.ToLower(text)

	var msg map[string]any
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return command
	}
	if v, ok := msg["command"]; ok && v != nil {
		switch c := v.(type) {
		case string:
			return strings.ToLower(c)
		case float64:
			return strconv.FormatFloat(c, 'f', -1, 64)
		default:
			return strings.ToLower(fmt.Sprint(c))
		}
	}
	return command
}

// Handle runs one control message and publishes exactly one result.
func (c *Channel) Handle(payload []byte) Result {
	command := ParseCommand(payload)
	res := c.dispatch(command)
	res.DeviceID = c.DeviceID
	res.Command = command
	res.Timestamp = gps.ISOTime(c.now())

	metrics.Commands.WithLabelValues(metricLabel(command), strconv.FormatBool(res.Success)).Inc()
	c.publishResult(res)
	return res
}

func (c *Channel) dispatch(command string) Result {
	switch command {
	case "start", "resume":
		log.Println("control: received start")
		if c.Acq.Streaming() {
			return Result{Success: true, Message: "GPS acquisition already running"}
		}
		if c.Acq.Start() {
			return Result{Success: true, Message: "GPS acquisition started"}
		}
		detail := c.Acq.LastStartError()
		if detail == "" {
			detail = "check the serial port and its permissions"
		}
		return Result{Message: "start failed: " + detail}

	case "stop", "pause":
		log.Println("control: received stop")
		if c.Acq.Stop() {
			return Result{Success: true, Message: "GPS acquisition stopped"}
		}
		return Result{Message: "stop had no effect"}

	case "status", "state":
		log.Println("control: received status")
		snap := c.Status.Snapshot()
		c.PublishStatus(snap)
		return Result{
			Success: true,
			Message: "device status returned",
			Extra:   map[string]any{"status": snap},
		}

	case "help":
		log.Println("control: received help")
		return Result{
			Success: true,
			Message: "command list returned",
			Extra:   map[string]any{"commands": Help},
		}
	}

	log.Printf("control: unknown command %q", command)
	return Result{Message: "unknown command"}
}

// PublishStatus sends snap on the status topic. Errors are logged.
func (c *Channel) PublishStatus(snap status.Snapshot) {
	if c.Publisher == nil || c.StatusTopic == "" {
		return
	}
	b, err := json.Marshal(snap)
	if err != nil {
		log.Printf("control: encode status: %v", err)
		return
	}
	if err := c.Publisher.Publish(c.StatusTopic, b); err != nil {
		log.Printf("control: publish status failed: %v", err)
		return
	}
	log.Printf("control: published status (running=%t, sent=%d)", snap.Running, snap.SentCount)
}

func (c *Channel) publishResult(res Result) {
	if c.Publisher == nil || c.ResultTopic == "" {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		log.Printf("control: encode result: %v", err)
		return
	}
	if err := c.Publisher.Publish(c.ResultTopic, b); err != nil {
		log.Printf("control: publish result failed: %v", err)
		return
	}
	log.Printf("control: command %q -> success=%t: %s", res.Command, res.Success, res.Message)
}

func (c *Channel) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// metricLabel keeps label cardinality bounded.
func metricLabel(command string) string {
	switch command {
	case "start", "resume", "stop", "pause", "status", "state", "help":
		return command
	}
	return "unknown"
}
