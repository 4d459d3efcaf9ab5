package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/relabs-tech/gps_bridge/internal/broker"
	"github.com/relabs-tech/gps_bridge/internal/config"
	"github.com/relabs-tech/gps_bridge/internal/gps"
	"github.com/relabs-tech/gps_bridge/internal/status"
)

// Console renders bridge traffic as one line per message.
type Console struct {
	DataTopic   string
	StatusTopic string
	ResultTopic string
}

// NewConsole watches the topics named in cfg.
func NewConsole(cfg *config.Config) *Console {
	return &Console{
		DataTopic:   cfg.TopicData,
		StatusTopic: cfg.TopicStatus,
		ResultTopic: cfg.TopicCommandResult,
	}
}

// Topics returns the topics the console subscribes to.
func (c *Console) Topics() []string {
	return []string{c.DataTopic, c.StatusTopic, c.ResultTopic}
}

// Line formats one message.
func (c *Console) Line(topic string, payload []byte) string {
	var err error
	var line string
	switch topic {
	case c.DataTopic:
		line, err = fixLine(payload)
	case c.StatusTopic:
		line, err = statusLine(payload)
	case c.ResultTopic:
		line, err = resultLine(payload)
	default:
		return fmt.Sprintf("[MSG ] %s: %s", topic, payload)
	}
	if err != nil {
		return fmt.Sprintf("[????] %s: %s", topic, payload)
	}
	return line
}

func fixLine(payload []byte) (string, error) {
	var f gps.FixRecord
	if err := json.Unmarshal(payload, &f); err != nil {
		return "", err
	}
	parts := []string{fmt.Sprintf("[FIX ] %-6s", f.MessageType)}
	if f.Time != "" {
		parts = append(parts, f.Time)
	}
	if f.Latitude != nil && f.Longitude != nil {
		parts = append(parts, fmt.Sprintf("lat=%.6f lon=%.6f", *f.Latitude, *f.Longitude))
	}
	if f.SpeedMS != nil {
		parts = append(parts, fmt.Sprintf("speed=%.2fm/s", *f.SpeedMS))
	}
	if f.Course != nil {
		parts = append(parts, fmt.Sprintf("course=%.1f", *f.Course))
	}
	if f.NumSatellites != nil {
		parts = append(parts, fmt.Sprintf("sats=%d", *f.NumSatellites))
	}
	if f.HDOP != nil {
		parts = append(parts, fmt.Sprintf("hdop=%.1f", *f.HDOP))
	}
	if f.Altitude != nil {
		parts = append(parts, fmt.Sprintf("alt=%.1fm", *f.Altitude))
	}
	if f.Status != "" {
		parts = append(parts, "status="+f.Status)
	}
	return strings.Join(parts, " "), nil
}

func statusLine(payload []byte) (string, error) {
	var s status.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", err
	}
	line := fmt.Sprintf("[STAT] %s running=%t serial=%t mqtt=%t sent=%s",
		s.DeviceID, s.Running, s.SerialOpen, s.MQTTConnected, humanize.Comma(int64(s.SentCount)))
	if m := s.SystemInfo.Memory; m != nil {
		line += fmt.Sprintf(" mem=%s/%s free", mbytes(m.AvailableMB), mbytes(m.TotalMB))
	}
	if l := s.SystemInfo.CPULoad; l != nil {
		line += fmt.Sprintf(" load=%.2f", l.One)
	}
	if s.SystemInfo.IPAddress != "" {
		line += " ip=" + s.SystemInfo.IPAddress
	}
	return line, nil
}

func mbytes(mb float64) string {
	return humanize.IBytes(uint64(mb * 1024 * 1024))
}

type commandResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func resultLine(payload []byte) (string, error) {
	var r commandResult
	if err := json.Unmarshal(payload, &r); err != nil {
		return "", err
	}
	outcome := "ok"
	if !r.Success {
		outcome = "FAILED"
	}
	return fmt.Sprintf("[CMD ] %s %s: %s", r.Command, outcome, r.Message), nil
}

// Watch prints every message from events until ctx is cancelled.
func (c *Console) Watch(ctx context.Context, events <-chan broker.Event, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind == broker.EventMessage {
				fmt.Fprintln(out, c.Line(ev.Topic, ev.Payload))
			}
		}
	}
}

// RunConsole subscribes to the bridge topics and prints traffic to out.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	con := NewConsole(cfg)
	opts := brokerOptions(cfg, con.Topics()...)
	opts.ClientID += "-console"
	brk := broker.New(opts)
	defer brk.Close()

	if err := brk.Connect(); err != nil {
		return err
	}
	log.Printf("console: watching %s", strings.Join(con.Topics(), ", "))
	con.Watch(ctx, brk.Events(), out)
	log.Println("console: shutting down")
	return nil
}

// SendCommand publishes command on the control topic and prints the first
// matching result, waiting at most timeout.
func SendCommand(ctx context.Context, cfg *config.Config, command string, timeout time.Duration, out io.Writer) error {
	con := NewConsole(cfg)
	opts := brokerOptions(cfg, cfg.TopicCommandResult)
	opts.ClientID += "-send"
	brk := broker.New(opts)
	defer brk.Close()

	if err := brk.Connect(); err != nil {
		return err
	}
	if err := awaitConnected(ctx, brk.Events(), timeout); err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]string{"command": command})
	if err := brk.PublishWait(cfg.TopicControl, 1, payload, timeout); err != nil {
		return err
	}
	return awaitResult(ctx, brk.Events(), con, strings.ToLower(command), timeout, out)
}

// awaitConnected waits for the connect event, which follows the subscriptions.
func awaitConnected(ctx context.Context, events <-chan broker.Event, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("not subscribed within %v", timeout)
		case ev := <-events:
			if ev.Kind == broker.EventConnected {
				return nil
			}
		}
	}
}

func awaitResult(ctx context.Context, events <-chan broker.Event, con *Console, command string, timeout time.Duration, out io.Writer) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("no result for %q within %v", command, timeout)
		case ev := <-events:
			if ev.Kind != broker.EventMessage || ev.Topic != con.ResultTopic {
				continue
			}
			var r commandResult
			if json.Unmarshal(ev.Payload, &r) != nil || r.Command != command {
				continue
			}
			fmt.Fprintln(out, con.Line(ev.Topic, ev.Payload))
			if !r.Success {
				return fmt.Errorf("command %q failed: %s", command, r.Message)
			}
			return nil
		}
	}
}
