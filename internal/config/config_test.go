package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MQTTHost != "wauclub.com" || cfg.MQTTPort != 1883 || cfg.SerialBaudRate != 9600 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.TopicCommandResult != "student/location/control/result" || cfg.DeviceID != "um220_tracker_001" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.ManualLongitude != 121.061722 || cfg.ManualLatitude != 40.885880 {
		t.Fatalf("manual defaults = %v %v", cfg.ManualLongitude, cfg.ManualLatitude)
	}
}

func TestLoad_KeyValue(t *testing.T) {
	path := writeFile(t, "gps_bridge.conf", `
# serial
SERIAL_PORT=/dev/ttyAMA0
SERIAL_BAUD_RATE = 115200
SERIAL_DRIVER=Jacobsa
SERIAL_READ_TIMEOUT_MS=500

MQTT_HOST=localhost
MQTT_PORT=1884
MQTT_KEEPALIVE_S=30
TOPIC_DATA=fleet/pos
NMEA_STRICT_CHECKSUM=true
WEB_LISTEN_ADDR=:8080
MANUAL_SPEED_MS=1.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SerialPort != "/dev/ttyAMA0" || cfg.SerialBaudRate != 115200 || cfg.SerialDriver != "jacobsa" {
		t.Fatalf("serial = %+v", cfg)
	}
	if cfg.SerialReadTimeout != 500*time.Millisecond || cfg.MQTTKeepAlive != 30*time.Second {
		t.Fatalf("durations = %v %v", cfg.SerialReadTimeout, cfg.MQTTKeepAlive)
	}
	if cfg.MQTTHost != "localhost" || cfg.MQTTPort != 1884 || cfg.TopicData != "fleet/pos" {
		t.Fatalf("mqtt = %+v", cfg)
	}
	if !cfg.NMEAStrictChecksum || cfg.WebListenAddr != ":8080" || cfg.ManualSpeedMS != 1.5 {
		t.Fatalf("misc = %+v", cfg)
	}
	// untouched keys keep defaults
	if cfg.TopicControl != "student/location/control" {
		t.Fatalf("control topic = %q", cfg.TopicControl)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "gps_bridge.yaml", `
mqtt_host: broker.local
MQTT_PORT: 8883
device_id: tracker_7
log_debug: true
manual_latitude: 12.5
serial_port:
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MQTTHost != "broker.local" || cfg.MQTTPort != 8883 || cfg.DeviceID != "tracker_7" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.LogDebug || cfg.ManualLatitude != 12.5 || cfg.SerialPort != "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name, file, body, want string
	}{
		{"no equals", "a.conf", "MQTT_HOST\n", "invalid config line 1"},
		{"unknown key", "b.conf", "FOO=bar\n", "unknown config key"},
		{"bad int", "c.conf", "\nMQTT_PORT=abc\n", "config line 2"},
		{"port range", "d.conf", "MQTT_PORT=70000\n", "1-65535"},
		{"driver", "e.conf", "SERIAL_DRIVER=ftdi\n", "bugst, jacobsa or sim"},
		{"empty host", "f.conf", "MQTT_HOST=\n", "MQTT_HOST is required"},
		{"bad yaml", "g.yml", "mqtt_host: [unclosed\n", "yaml"},
		{"yaml unknown key", "h.yaml", "weather: sunny\n", "unknown config key"},
	}
	for _, c := range cases {
		_, err := Load(writeFile(t, c.file, c.body))
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: err = %v, want substring %q", c.name, err, c.want)
		}
	}
}

func TestSet(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("SERIAL_PORT", "/dev/ttyUSB1"); err != nil {
		t.Fatal(err)
	}
	if cfg.SerialPort != "/dev/ttyUSB1" {
		t.Fatalf("port = %q", cfg.SerialPort)
	}
	if err := cfg.Set("DEVICE_ID", ""); err == nil {
		t.Fatalf("empty DEVICE_ID accepted")
	}
}

func TestInitGlobal(t *testing.T) {
	if err := InitGlobal(""); err != nil {
		t.Fatal(err)
	}
	first := Get()
	if first == nil {
		t.Fatalf("Get returned nil after InitGlobal")
	}
	InitGlobal(writeFile(t, "x.conf", "MQTT_HOST=other\n"))
	if Get() != first || Get().MQTTHost != "wauclub.com" {
		t.Fatalf("InitGlobal ran twice")
	}
}
