package gps

import "time"

// MessageType identifies which sentence (or manual input) produced a fix.
type MessageType string

const (
	TypeRMC    MessageType = "RMC"
	TypeGLL    MessageType = "GLL"
	TypeGGA    MessageType = "GGA"
	TypeManual MessageType = "MANUAL"
)

// FixRecord is one parsed position report, suitable for JSON and MQTT.
//
// Pointer fields are optional: nil means the field is not carried by that
// sentence type (or was empty in the sentence), which is different from zero.
type FixRecord struct {
	MessageType MessageType `json:"message_type"`
	DeviceID    string      `json:"device_id"`
	Timestamp   time.Time   `json:"timestamp"` // local capture instant

	UTCTime *string `json:"utc_time,omitempty"` // "hh:mm:ss" from the sentence
	UTCDate *string `json:"utc_date,omitempty"` // "20yy-mm-dd" (RMC only)

	Latitude  *float64 `json:"latitude,omitempty"`  // decimal degrees
	Longitude *float64 `json:"longitude,omitempty"` // decimal degrees

	// RMC only (and MANUAL)
	SpeedKnots *float64 `json:"speed_knots,omitempty"`
	SpeedMS    *float64 `json:"speed_ms,omitempty"`
	Course     *float64 `json:"course,omitempty"`

	// GGA only
	Quality       *int     `json:"quality,omitempty"`
	NumSatellites *int     `json:"num_satellites,omitempty"`
	HDOP          *float64 `json:"hdop,omitempty"`
	Altitude      *float64 `json:"altitude,omitempty"` // meters

	Status string `json:"status,omitempty"` // "A", "D", ... as received
	Mode   string `json:"mode,omitempty"`

	// Filled in at publish time.
	Time   string `json:"time,omitempty"` // display time, UTC+8
	Source string `json:"source,omitempty"`
}

// KnotsToMS converts knots to meters per second.
const KnotsToMS = 0.51444

// DisplayLayout is the "YYYY/MM/DD HH:MM:SS" layout used on the wire and in history.
const DisplayLayout = "2006/01/02 15:04:05"

// displayOffset shifts the capture instant to Beijing time for the `time` field.
const displayOffset = 8 * time.Hour

// DisplayTime formats t as the wire `time` field (UTC+8).
func DisplayTime(t time.Time) string {
	return t.UTC().Add(displayOffset).Format(DisplayLayout)
}

// ISOLayout matches the microsecond ISO-8601 timestamps on the wire.
const ISOLayout = "2006-01-02T15:04:05.000000"

// ISOTime formats t in UTC with ISOLayout.
func ISOTime(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
