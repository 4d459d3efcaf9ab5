package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/broker"
	"github.com/relabs-tech/gps_bridge/internal/config"
	"github.com/relabs-tech/gps_bridge/internal/gps"
	"github.com/relabs-tech/gps_bridge/internal/history"
)

// ManualSource is the `source` value on manual publishes.
const ManualSource = "manual_input"

// manualAckTimeout bounds the wait for the broker to acknowledge a manual publish.
const manualAckTimeout = 10 * time.Second

// AckPublisher publishes and waits for the broker acknowledgement.
type AckPublisher interface {
	PublishWait(topic string, qos byte, payload []byte, timeout time.Duration) error
}

// ManualFix builds a MANUAL record for the given position and speed.
func ManualFix(deviceID string, lng, lat, speedMS float64, now time.Time) *gps.FixRecord {
	knots := 0.0
	if speedMS != 0 {
		knots = math.Round(speedMS/gps.KnotsToMS*1000) / 1000
	}
	return &gps.FixRecord{
		MessageType: gps.TypeManual,
		DeviceID:    deviceID,
		Timestamp:   now,
		Latitude:    gps.Float(lat),
		Longitude:   gps.Float(lng),
		SpeedMS:     gps.Float(speedMS),
		SpeedKnots:  gps.Float(knots),
		Time:        gps.DisplayTime(now),
		Source:      ManualSource,
	}
}

// SendManual publishes fix at QoS 1, waits for the acknowledgement and then
// records it in history.
func SendManual(pub AckPublisher, topic string, rec *history.Recorder, fix *gps.FixRecord) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("encode manual fix: %w", err)
	}
	if err := pub.PublishWait(topic, 1, payload, manualAckTimeout); err != nil {
		return fmt.Errorf("manual publish: %w", err)
	}
	log.Printf("gps: manual fix published to %s: %s", topic, payload)
	rec.Append(fix)
	return nil
}

// PublishManual connects, sends one MANUAL fix and disconnects. It does not
// touch the serial port.
func PublishManual(cfg *config.Config, lng, lat, speedMS float64) error {
	rec, err := history.NewRecorder(cfg.HistoryFile)
	if err != nil {
		return err
	}

	opts := brokerOptions(cfg)
	opts.ClientID += "-manual"
	brk := broker.New(opts)
	defer brk.Close()
	if err := brk.Connect(); err != nil {
		return err
	}

	fix := ManualFix(cfg.DeviceID, lng, lat, speedMS, time.Now())
	return SendManual(brk, cfg.TopicData, rec, fix)
}
