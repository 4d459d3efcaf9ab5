// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package history keeps the append-only track log: one normalized JSON line
// per published fix or manual publish.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/relabs-tech/gps_bridge/internal/gps"
)

// Entry is one line of the history log.
type Entry struct {
	Timestamp     string          `json:"timestamp"` // "YYYY/MM/DD HH:MM:SS"
	Lng           float64         `json:"lng"`
	Lat           float64         `json:"lat"`
	IsInsideFence bool            `json:"isInsideFence"`
	Speed         float64         `json:"speed"`
	DeviceID      any             `json:"deviceId"`
	Raw           json.RawMessage `json:"raw"`
}

// Normalize builds an Entry from any JSON-marshalable record.
// ok is false when the record has no usable longitude or latitude.
func Normalize(record any, now time.Time) (Entry, bool, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Entry{}, false, fmt.Errorf("history: marshal record: %w", err)
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Entry{}, false, fmt.Errorf("history: record is not a JSON object: %w", err)
	}

	lng, okLng := number(first(fields, "longitude", "lng"))
	lat, okLat := number(first(fields, "latitude", "lat"))
	if !okLng || !okLat {
		return Entry{}, false, nil
	}

	return Entry{
		Timestamp:     timestamp(first(fields, "time", "timestamp"), now),
		Lng:           gps.Round6(lng),
		Lat:           gps.Round6(lat),
		IsInsideFence: truthy(first(fields, "isInsideFence", "inside_fence", "insideFence")),
		Speed:         speed(fields),
		DeviceID:      first(fields, "device_id", "deviceId"),
		Raw:           raw,
	}, true, nil
}

// first returns the first non-null value among keys.
func first(fields map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// speed takes the first non-zero parsable value of speed_ms, speed, speed_knots.
func speed(fields map[string]any) float64 {
	for _, k := range []string{"speed_ms", "speed", "speed_knots"} {
		if v, ok := number(fields[k]); ok && v != 0 && !math.IsNaN(v) {
			return v
		}
	}
	return 0
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case string:
		return b != ""
	default:
		return false
	}
}

// timestamp prefers an already formatted display string; numeric values are
// epoch seconds, or milliseconds when larger than 1e12.
func timestamp(v any, now time.Time) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			if f > 1e12 {
				return time.UnixMilli(int64(f)).Format(gps.DisplayLayout)
			}
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*1e9)).Format(gps.DisplayLayout)
		}
	}
	return now.Format(gps.DisplayLayout)
}

// Recorder appends entries to a JSON-lines file. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewRecorder creates path if needed. An empty path disables recording.
func NewRecorder(path string) (*Recorder, error) {
	r := &Recorder{path: path, now: time.Now}
	if path == "" {
		return r, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	return r, f.Close()
}

// Path returns the history file path.
func (r *Recorder) Path() string { return r.path }

// Append normalizes record and appends it. Records without coordinates are
// skipped. Errors are logged, not returned.
func (r *Recorder) Append(record any) {
	if r == nil || r.path == "" {
		return
	}
	entry, ok, err := Normalize(record, r.now())
	if err != nil {
		log.Printf("history: %v", err)
		return
	}
	if !ok {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("history: marshal entry: %v", err)
		return
	}
	if err := r.appendLine(line); err != nil {
		log.Printf("history: write %s failed: %v", r.path, err)
	}
}

func (r *Recorder) appendLine(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
