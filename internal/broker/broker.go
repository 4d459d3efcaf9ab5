// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broker wraps the MQTT client. Connection changes and control
// messages are delivered on an Events channel instead of being handled on
// paho's callback goroutine, so the owner drains them from its own loop.
package broker

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/tevino/abool/v2"
)

// ErrNotConnected is returned by Publish while the client is offline.
var ErrNotConnected = errors.New("mqtt: not connected")

// Options configures a Client.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// Subscriptions are (re)subscribed on every successful connect.
	Subscriptions []string
}

// EventKind tells what an Event carries.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
)

// Event is a connection change or an inbound message.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}

// Client is an MQTT connection with an inbound event queue.
type Client struct {
	opts      Options
	client    mqtt.Client
	connected *abool.AtomicBool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a client; it does not connect.
func New(o Options) *Client {
	if o.KeepAlive == 0 {
		o.KeepAlive = 60 * time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 60 * time.Second
	}

	c := &Client{
		opts:      o,
		connected: abool.New(),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}

	mo := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", o.Host, o.Port)).
		SetClientID(o.ClientID).
		SetKeepAlive(o.KeepAlive).
		SetConnectTimeout(o.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if o.Username != "" && o.Password != "" {
		mo.SetUsername(o.Username).SetPassword(o.Password)
	}

	c.client = mqtt.NewClient(mo)
	return c
}

// Connect starts connecting and waits up to ConnectTimeout for the first
// connection. On timeout it returns an error but keeps retrying in the background.
func (c *Client) Connect() error {
	log.Printf("mqtt: connecting to %s:%d", c.opts.Host, c.opts.Port)
	token := c.client.Connect()
	if !token.WaitTimeout(c.opts.ConnectTimeout) {
		return fmt.Errorf("mqtt: no connection to %s:%d after %v, still retrying", c.opts.Host, c.opts.Port, c.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect to %s:%d: %w", c.opts.Host, c.opts.Port, err)
	}
	return nil
}

// Events returns the inbound event queue.
func (c *Client) Events() <-chan Event { return c.events }

// Connected reports the last known connection state.
func (c *Client) Connected() bool { return c.connected.IsSet() }

// Publish sends payload at QoS 0 without waiting for delivery.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.connected.IsSet() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
	}
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("mqtt: publish to %s failed: %v", topic, token.Error())
		}
	}()
	return nil
}

// PublishWait sends payload at qos and blocks until the broker acknowledges
// or timeout elapses.
func (c *Client) PublishWait(topic string, qos byte, payload []byte, timeout time.Duration) error {
	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: publish to %s not acknowledged within %v", topic, timeout)
	}
	return token.Error()
}

// Close disconnects. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.connected.UnSet()
		c.client.Disconnect(250)
		log.Println("mqtt: disconnected")
	})
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Set()
	log.Printf("mqtt: connected to %s:%d", c.opts.Host, c.opts.Port)

	for _, topic := range c.opts.Subscriptions {
		if topic == "" {
			continue
		}
		token := client.Subscribe(topic, 0, c.onMessage)
		if token.Wait() && token.Error() != nil {
			log.Printf("mqtt: subscribe %s failed: %v", topic, token.Error())
			continue
		}
		log.Printf("mqtt: subscribed to %s", topic)
	}
	c.emit(Event{Kind: EventConnected})
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.UnSet()
	log.Printf("mqtt: connection lost: %v", err)
	c.emit(Event{Kind: EventDisconnected, Err: err})
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.emit(Event{Kind: EventMessage, Topic: msg.Topic(), Payload: msg.Payload()})
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}
