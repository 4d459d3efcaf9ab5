// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/acquisition"
	"github.com/relabs-tech/gps_bridge/internal/broker"
	"github.com/relabs-tech/gps_bridge/internal/config"
	"github.com/relabs-tech/gps_bridge/internal/control"
	"github.com/relabs-tech/gps_bridge/internal/gps"
	"github.com/relabs-tech/gps_bridge/internal/history"
	"github.com/relabs-tech/gps_bridge/internal/serialport"
	"github.com/relabs-tech/gps_bridge/internal/status"
)

// ReceiverSource is the `source` value on streamed fixes.
const ReceiverSource = "UM220-III"

// stepInterval paces the read loop between serial reads.
const stepInterval = 100 * time.Millisecond

// commandPacing is the delay between receiver startup commands.
var commandPacing = 500 * time.Millisecond

// Broker is the MQTT side of the bridge.
type Broker interface {
	Publish(topic string, payload []byte) error
	Events() <-chan broker.Event
	Connected() bool
	Close()
}

// Bridge wires serial acquisition, the control channel and status reporting
// to one broker connection. Run owns all streaming state changes.
type Bridge struct {
	cfg      *config.Config
	broker   Broker
	ctrl     *acquisition.Controller
	reporter *status.Reporter
	control  *control.Channel
	history  *history.Recorder
	monitor  *Monitor

	now func() time.Time
}

// NewBridge builds a bridge; nothing is opened until Run.
func NewBridge(cfg *config.Config, brk Broker, transport serialport.Transport, rec *history.Recorder) *Bridge {
	b := &Bridge{
		cfg:     cfg,
		broker:  brk,
		history: rec,
		now:     time.Now,
	}

	dec := gps.NewDecoder(cfg.DeviceID)
	dec.StrictChecksum = cfg.NMEAStrictChecksum
	dec.Debug = cfg.LogDebug

	b.ctrl = acquisition.New(acquisition.Options{
		PortName:      cfg.SerialPort,
		BaudRate:      cfg.SerialBaudRate,
		ReadTimeout:   cfg.SerialReadTimeout,
		CommandPacing: commandPacing,
		Debug:         cfg.LogDebug,
	}, transport, dec, b)

	b.reporter = &status.Reporter{
		DeviceID: cfg.DeviceID,
		State:    b.ctrl,
		Broker:   brk,
	}
	b.control = &control.Channel{
		DeviceID:    cfg.DeviceID,
		ResultTopic: cfg.TopicCommandResult,
		StatusTopic: cfg.TopicStatus,
		Acq:         b.ctrl,
		Status:      b.reporter,
		Publisher:   brk,
	}

	b.ctrl.OnStateChange = func() { b.control.PublishStatus(b.reporter.Snapshot()) }
	b.ctrl.OnCleanup = brk.Close
	return b
}

// SetMonitor attaches a web monitor that receives every published fix.
func (b *Bridge) SetMonitor(m *Monitor) { b.monitor = m }

// Status returns the current status snapshot.
func (b *Bridge) Status() status.Snapshot { return b.reporter.Snapshot() }

// PublishFix stamps fix with display time and source, publishes it on the
// data topic without waiting for delivery and records it in history.
func (b *Bridge) PublishFix(fix *gps.FixRecord) error {
	fix.Time = gps.DisplayTime(b.now())
	fix.Source = ReceiverSource

	payload, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("encode fix: %w", err)
	}
	if err := b.broker.Publish(b.cfg.TopicData, payload); err != nil {
		return err
	}
	if b.cfg.LogDebug {
		log.Printf("gps: published %s fix: %s", fix.MessageType, payload)
	}

	b.history.Append(fix)
	if b.monitor != nil {
		b.monitor.Broadcast(fix)
	}
	return nil
}

// Run starts streaming and serves broker events until ctx is cancelled, then
// releases the port and the broker connection.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.ctrl.Cleanup()

	b.ctrl.Start()

	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("gps: shutting down")
			return nil
		case ev := <-b.broker.Events():
			b.handleEvent(ev)
		case <-ticker.C:
			b.ctrl.Step()
		}
	}
}

func (b *Bridge) handleEvent(ev broker.Event) {
	switch ev.Kind {
	case broker.EventMessage:
		if ev.Topic != b.cfg.TopicControl {
			return
		}
		b.control.Handle(ev.Payload)
	case broker.EventConnected:
		if b.cfg.LogDebug {
			log.Println("gps: broker connection up")
		}
	case broker.EventDisconnected:
		log.Printf("gps: broker connection down, fixes are dropped until reconnect (%v)", ev.Err)
	}
}

// RunBridge runs the streaming service with cfg until ctx is cancelled.
func RunBridge(ctx context.Context, cfg *config.Config) error {
	transport, err := serialport.NewTransport(cfg.SerialDriver)
	if err != nil {
		return err
	}
	if sim, ok := transport.(*serialport.SimTransport); ok {
		sim.Latitude, sim.Longitude = cfg.ManualLatitude, cfg.ManualLongitude
	}
	rec, err := history.NewRecorder(cfg.HistoryFile)
	if err != nil {
		return err
	}

	brk := broker.New(brokerOptions(cfg, cfg.TopicControl))
	if err := brk.Connect(); err != nil {
		log.Printf("gps: %v", err)
	}

	b := NewBridge(cfg, brk, transport, rec)

	if cfg.WebListenAddr != "" {
		m := NewMonitor(cfg.WebListenAddr, b)
		b.SetMonitor(m)
		go func() {
			if err := m.Run(ctx); err != nil {
				log.Printf("web: %v", err)
			}
		}()
	}

	return b.Run(ctx)
}

func brokerOptions(cfg *config.Config, subscriptions ...string) broker.Options {
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = cfg.DeviceID
	}
	return broker.Options{
		Host:          cfg.MQTTHost,
		Port:          cfg.MQTTPort,
		Username:      cfg.MQTTUsername,
		Password:      cfg.MQTTPassword,
		ClientID:      clientID,
		KeepAlive:     cfg.MQTTKeepAlive,
		Subscriptions: subscriptions,
	}
}
