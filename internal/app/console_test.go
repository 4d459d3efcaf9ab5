package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/broker"
	"github.com/relabs-tech/gps_bridge/internal/config"
)

func testConsole() *Console {
	return NewConsole(config.Default())
}

func TestConsoleLine(t *testing.T) {
	con := testConsole()
	cases := []struct {
		topic, payload, want string
	}{
		{con.DataTopic,
			`{"message_type":"RMC","time":"2024/03/02 04:00:00","latitude":48.1173,"longitude":11.516667,"speed_ms":11.52,"course":84.4,"status":"A"}`,
			"[FIX ] RMC    2024/03/02 04:00:00 lat=48.117300 lon=11.516667 speed=11.52m/s course=84.4 status=A"},
		{con.DataTopic,
			`{"message_type":"GGA","num_satellites":8,"hdop":0.9,"altitude":545.4}`,
			"[FIX ] GGA    sats=8 hdop=0.9 alt=545.4m"},
		{con.StatusTopic,
			`{"device_id":"dev","running":true,"serial_open":true,"mqtt_connected":false,"sent_count":12345,"system_info":{"cpu_cores":4,"memory":{"total_mb":2048,"available_mb":1024},"ip_address":"10.0.0.2"}}`,
			"[STAT] dev running=true serial=true mqtt=false sent=12,345 mem=1.0 GiB/2.0 GiB free ip=10.0.0.2"},
		{con.ResultTopic,
			`{"command":"bogus","success":false,"message":"unknown command"}`,
			"[CMD ] bogus FAILED: unknown command"},
		{con.ResultTopic,
			`{"command":"start","success":true,"message":"GPS acquisition started"}`,
			"[CMD ] start ok: GPS acquisition started"},
		{"other/topic", "hello", "[MSG ] other/topic: hello"},
		{con.DataTopic, "not json", "[????] " + con.DataTopic + ": not json"},
	}
	for _, c := range cases {
		if got := con.Line(c.topic, []byte(c.payload)); got != c.want {
			t.Errorf("Line(%s)\n got %q\nwant %q", c.topic, got, c.want)
		}
	}
}

func TestConsoleWatch(t *testing.T) {
	con := testConsole()
	events := make(chan broker.Event, 4)
	events <- broker.Event{Kind: broker.EventConnected}
	events <- broker.Event{Kind: broker.EventMessage, Topic: con.ResultTopic, Payload: []byte(`{"command":"help","success":true,"message":"command list returned"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan struct{})
	go func() { con.Watch(ctx, events, &out); close(done) }()

	waitFor(t, "drained events", func() bool { return len(events) == 0 })
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := strings.TrimSpace(out.String()); got != "[CMD ] help ok: command list returned" {
		t.Fatalf("output = %q", got)
	}
}

func TestAwaitResult(t *testing.T) {
	con := testConsole()
	events := make(chan broker.Event, 4)
	events <- broker.Event{Kind: broker.EventMessage, Topic: con.ResultTopic, Payload: []byte(`{"command":"status","success":true,"message":"x"}`)}
	events <- broker.Event{Kind: broker.EventMessage, Topic: con.ResultTopic, Payload: []byte(`{"command":"start","success":false,"message":"start failed: no serial port detected"}`)}

	var out bytes.Buffer
	err := awaitResult(context.Background(), events, con, "start", time.Second, &out)
	if err == nil || !strings.Contains(err.Error(), "no serial port") {
		t.Fatalf("err = %v", err)
	}
	if !strings.HasPrefix(out.String(), "[CMD ] start FAILED") {
		t.Fatalf("output = %q", out.String())
	}

	err = awaitResult(context.Background(), make(chan broker.Event), con, "stop", 20*time.Millisecond, &out)
	if err == nil || !strings.Contains(err.Error(), "no result") {
		t.Fatalf("timeout err = %v", err)
	}
}

func TestAwaitConnected(t *testing.T) {
	events := make(chan broker.Event, 2)
	events <- broker.Event{Kind: broker.EventDisconnected}
	events <- broker.Event{Kind: broker.EventConnected}
	if err := awaitConnected(context.Background(), events, time.Second); err != nil {
		t.Fatal(err)
	}
}
