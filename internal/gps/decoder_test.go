package gps

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func testDecoder() *Decoder {
	d := NewDecoder("dev-1")
	d.Now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return d
}

func TestDecode_RMCScenario(t *testing.T) {
	d := testDecoder()
	res := d.Decode("$GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	if !res.OK() {
		t.Fatalf("expected fix, got reject %q", res.Reason)
	}
	f := res.Fix
	if f.MessageType != TypeRMC {
		t.Fatalf("message type = %q", f.MessageType)
	}
	if f.DeviceID != "dev-1" {
		t.Fatalf("device id = %q", f.DeviceID)
	}
	if f.Latitude == nil || !approx(*f.Latitude, 48.1173, 1e-6) {
		t.Fatalf("latitude = %v", f.Latitude)
	}
	if f.Longitude == nil || !approx(*f.Longitude, 11.516667, 1e-6) {
		t.Fatalf("longitude = %v", f.Longitude)
	}
	if f.SpeedMS == nil || !approx(*f.SpeedMS, 22.4*0.51444, 1e-9) {
		t.Fatalf("speed_ms = %v", f.SpeedMS)
	}
	if f.Course == nil || *f.Course != 84.4 {
		t.Fatalf("course = %v", f.Course)
	}
	if f.Status != "A" {
		t.Fatalf("status = %q", f.Status)
	}
	if f.UTCTime == nil || *f.UTCTime != "12:35:19" {
		t.Fatalf("utc_time = %v", f.UTCTime)
	}
	if f.UTCDate == nil || *f.UTCDate != "2094-03-23" {
		t.Fatalf("utc_date = %v", f.UTCDate)
	}
	if f.Quality != nil || f.Altitude != nil {
		t.Fatalf("GGA fields must be absent on RMC")
	}
}

func TestDecode_RMCVoidStatus(t *testing.T) {
	res := testDecoder().Decode("$GNRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D")
	if res.OK() {
		t.Fatalf("expected no record for status V")
	}
	if res.Reason != RejectInvalidStatus {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestDecode_RMCEmptyFields(t *testing.T) {
	res := testDecoder().Decode(nmeaLine("GPRMC,12,A,,,,,,,0101,,,N"))
	if !res.OK() {
		t.Fatalf("expected fix, got %q", res.Reason)
	}
	f := res.Fix
	if f.Latitude != nil || f.Longitude != nil {
		t.Fatalf("empty coordinates must be absent, got %v %v", f.Latitude, f.Longitude)
	}
	if f.UTCTime != nil || f.UTCDate != nil {
		t.Fatalf("short time/date must be absent")
	}
	if *f.SpeedKnots != 0 || *f.Course != 0 {
		t.Fatalf("empty speed/course must default to 0")
	}
	if f.Mode != "N" {
		t.Fatalf("mode = %q", f.Mode)
	}
}

func TestDecode_RMCBadNumber(t *testing.T) {
	res := testDecoder().Decode(nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,fast,084.4,230394,003.1,W"))
	if res.OK() || res.Reason != RejectBadNumber {
		t.Fatalf("expected bad_number, got %+v", res)
	}
}

func TestDecode_GLL(t *testing.T) {
	d := testDecoder()
	for _, status := range []string{"A", "D"} {
		res := d.Decode(nmeaLine("GNGLL,4916.45,N,12311.12,W,225444," + status + ",A"))
		if !res.OK() {
			t.Fatalf("status %s: expected fix, got %q", status, res.Reason)
		}
		f := res.Fix
		if !approx(*f.Latitude, 49.274167, 1e-6) || !approx(*f.Longitude, -123.185333, 1e-6) {
			t.Fatalf("coords = %v, %v", *f.Latitude, *f.Longitude)
		}
		if *f.UTCTime != "22:54:44" {
			t.Fatalf("utc_time = %q", *f.UTCTime)
		}
		if f.SpeedMS != nil {
			t.Fatalf("GLL must not carry velocity")
		}
	}

	for _, status := range []string{"V", "", "X"} {
		res := d.Decode(nmeaLine("GNGLL,4916.45,N,12311.12,W,225444," + status))
		if res.OK() || res.Reason != RejectInvalidStatus {
			t.Fatalf("status %q: expected invalid_status, got %+v", status, res)
		}
	}
}

func TestDecode_GGA(t *testing.T) {
	res := testDecoder().Decode(nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	if !res.OK() {
		t.Fatalf("expected fix, got %q", res.Reason)
	}
	f := res.Fix
	if *f.Quality != 1 || *f.NumSatellites != 8 {
		t.Fatalf("quality/sats = %d/%d", *f.Quality, *f.NumSatellites)
	}
	if *f.HDOP != 0.9 || *f.Altitude != 545.4 {
		t.Fatalf("hdop/alt = %v/%v", *f.HDOP, *f.Altitude)
	}
	if f.Status != "" {
		t.Fatalf("GGA has no status, got %q", f.Status)
	}
}

func TestDecode_GGAQualityZeroStillDecodes(t *testing.T) {
	res := testDecoder().Decode(nmeaLine("GPGGA,123519,,,,,0,00,,,M,,M,,"))
	if !res.OK() {
		t.Fatalf("expected fix, got %q", res.Reason)
	}
	if *res.Fix.Quality != 0 || *res.Fix.HDOP != 0 || res.Fix.Latitude != nil {
		t.Fatalf("unexpected fields: %+v", res.Fix)
	}
}

func TestDecode_GGANonIntegerQuality(t *testing.T) {
	res := testDecoder().Decode(nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1.5,08,0.9,545.4,M,46.9,M,,"))
	if res.OK() || res.Reason != RejectBadNumber {
		t.Fatalf("expected bad_number, got %+v", res)
	}
}

func TestDecode_ShortSentences(t *testing.T) {
	d := testDecoder()
	cases := []string{
		nmeaLine("GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1"),
		nmeaLine("GNGLL,4916.45,N,12311.12,W,225444"),
		nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,"),
	}
	for _, c := range cases {
		res := d.Decode(c)
		if res.OK() || res.Reason != RejectShortSentence {
			t.Fatalf("%s: expected short_sentence, got %+v", c, res)
		}
	}
}

func TestDecode_MalformedNeverPartial(t *testing.T) {
	d := testDecoder()
	cases := map[string]RejectReason{
		"GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A": RejectNoDollar,
		"$GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W":   RejectNoChecksum,
		"$GNRMC,1*2*3": RejectMalformed,
		"":             RejectNoDollar,
		"$GPGSV,3,1,11,03,03,111,00*74": RejectUnsupportedType,
		"$GNTXT,01,01,02,ANTENNA OK*35": RejectUnsupportedType,
	}
	for line, want := range cases {
		res := d.Decode(line)
		if res.Fix != nil {
			t.Fatalf("%q: produced a record", line)
		}
		if res.Reason != want {
			t.Fatalf("%q: reason = %q, want %q", line, res.Reason, want)
		}
	}
}

func TestDecode_TalkerPrefixes(t *testing.T) {
	d := testDecoder()
	for _, talker := range []string{"GP", "GN", "GL", "BD"} {
		res := d.Decode(nmeaLine(talker + "RMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
		if !res.OK() {
			t.Fatalf("%sRMC not accepted: %q", talker, res.Reason)
		}
	}
}

func TestDecode_ChecksumNotVerifiedByDefault(t *testing.T) {
	good := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	bad := good[:len(good)-2] + "00"

	if res := testDecoder().Decode(bad); !res.OK() {
		t.Fatalf("lenient decoder must accept unverified checksum, got %q", res.Reason)
	}

	strict := testDecoder()
	strict.StrictChecksum = true
	if res := strict.Decode(bad); res.OK() || res.Reason != RejectBadChecksum {
		t.Fatalf("strict decoder: expected bad_checksum, got %+v", res)
	}
	if res := strict.Decode(good[:len(good)-2] + strings.ToLower(good[len(good)-2:])); !res.OK() {
		t.Fatalf("strict decoder must accept lowercase hex, got %q", res.Reason)
	}
	if res := strict.Decode(good); !res.OK() {
		t.Fatalf("strict decoder rejected a good sentence: %q", res.Reason)
	}
}

func TestDecode_TrimsWhitespace(t *testing.T) {
	line := "  " + nmeaLine("GNGLL,4916.45,N,12311.12,W,225444,A,A") + "\r\n"
	if res := testDecoder().Decode(line); !res.OK() {
		t.Fatalf("expected fix, got %q", res.Reason)
	}
}

func TestDisplayTime(t *testing.T) {
	in := time.Date(2024, 12, 31, 20, 30, 0, 0, time.UTC)
	if got := DisplayTime(in); got != "2025/01/01 04:30:00" {
		t.Fatalf("DisplayTime = %q", got)
	}
}
