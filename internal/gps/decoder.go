package gps

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// RejectReason says why a line did not produce a FixRecord.
type RejectReason string

const (
	RejectNoDollar        RejectReason = "no_dollar"
	RejectNoChecksum      RejectReason = "no_checksum"
	RejectMalformed       RejectReason = "malformed"
	RejectBadChecksum     RejectReason = "bad_checksum"
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectShortSentence   RejectReason = "short_sentence"
	RejectInvalidStatus   RejectReason = "invalid_status"
	RejectBadNumber       RejectReason = "bad_number"
)

// Minimum field counts (message id included) per sentence type.
const (
	minFieldsRMC = 12
	minFieldsGLL = 7
	minFieldsGGA = 15
)

// Result is the outcome of decoding one line: either Fix is set, or Reason
// names why the sentence was rejected.
type Result struct {
	Fix    *FixRecord
	Reason RejectReason
}

// OK reports whether the line produced a fix.
func (r Result) OK() bool { return r.Fix != nil }

func rejected(reason RejectReason) Result { return Result{Reason: reason} }

// Decoder turns NMEA lines into FixRecords for one device.
type Decoder struct {
	DeviceID string

	// StrictChecksum rejects sentences whose "*hh" checksum does not match the
	// XOR of the body. Off by default: the checksum is extracted, not verified.
	StrictChecksum bool

	// Debug logs every rejected line.
	Debug bool

	// Now returns the capture instant; defaults to time.Now.
	Now func() time.Time
}

// NewDecoder returns a Decoder for deviceID with default (lenient) settings.
func NewDecoder(deviceID string) *Decoder {
	return &Decoder{DeviceID: deviceID}
}

// Decode classifies and decodes one NMEA sentence.
func (d *Decoder) Decode(line string) Result {
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, "$") {
		return d.reject(RejectNoDollar, line)
	}
	star := strings.Index(line, "*")
	if star < 0 {
		return d.reject(RejectNoChecksum, line)
	}
	if strings.Count(line, "*") > 1 {
		return d.reject(RejectMalformed, line)
	}

	body, checksum := line[1:star], line[star+1:]
	if d.StrictChecksum && !strings.EqualFold(nmea.Checksum(body), checksum) {
		return d.reject(RejectBadChecksum, line)
	}

	parts := strings.Split(body, ",")
	id := parts[0]
	suffix := id
	if len(id) > 3 {
		suffix = id[len(id)-3:]
	}

	var (
		fix *FixRecord
		res RejectReason
		err error
	)
	switch suffix {
	case "RMC":
		fix, res, err = d.parseRMC(parts)
	case "GLL":
		fix, res, err = d.parseGLL(parts)
	case "GGA":
		fix, res, err = d.parseGGA(parts)
	default:
		if suffix != "TXT" && d.Debug {
			log.Printf("gps: ignoring unhandled NMEA type %s", id)
		}
		return Result{Reason: RejectUnsupportedType}
	}

	if err != nil {
		log.Printf("gps: %s parse error: %v", suffix, err)
		return rejected(RejectBadNumber)
	}
	if fix == nil {
		return d.reject(res, line)
	}
	return Result{Fix: fix}
}

func (d *Decoder) reject(reason RejectReason, line string) Result {
	if d.Debug {
		log.Printf("gps: rejected (%s): %q", reason, line)
	}
	return rejected(reason)
}

func (d *Decoder) newFix(t MessageType) *FixRecord {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return &FixRecord{
		MessageType: t,
		DeviceID:    d.DeviceID,
		Timestamp:   now(),
	}
}

// $GNRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a[,m]*hh
func (d *Decoder) parseRMC(parts []string) (*FixRecord, RejectReason, error) {
	if len(parts) < minFieldsRMC {
		return nil, RejectShortSentence, nil
	}
	status := parts[2]
	if status != "A" {
		return nil, RejectInvalidStatus, nil
	}

	speedKnots, err := floatOrZero(parts[7])
	if err != nil {
		return nil, "", err
	}
	course, err := floatOrZero(parts[8])
	if err != nil {
		return nil, "", err
	}

	fix := d.newFix(TypeRMC)
	fix.UTCTime = hms(parts[1])
	fix.UTCDate = ymd(parts[9])
	fix.Latitude = coord(parts[3], parts[4], false)
	fix.Longitude = coord(parts[5], parts[6], true)
	fix.SpeedKnots = Float(speedKnots)
	fix.SpeedMS = Float(speedKnots * KnotsToMS)
	fix.Course = Float(course)
	fix.Status = status
	if len(parts) > 12 {
		fix.Mode = parts[12]
	}
	return fix, "", nil
}

// $GNGLL,llll.ll,a,yyyyy.yy,a,hhmmss.ss,A[,m]*hh
func (d *Decoder) parseGLL(parts []string) (*FixRecord, RejectReason, error) {
	if len(parts) < minFieldsGLL {
		return nil, RejectShortSentence, nil
	}
	status := parts[6]
	if status != "A" && status != "D" {
		return nil, RejectInvalidStatus, nil
	}

	fix := d.newFix(TypeGLL)
	fix.Latitude = coord(parts[1], parts[2], false)
	fix.Longitude = coord(parts[3], parts[4], true)
	fix.UTCTime = hms(parts[5])
	fix.Status = status
	return fix, "", nil
}

// $GNGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,q,nn,h.h,a.a,M,g.g,M,x.x,xxxx*hh
//
// No status gate: the quality field carries fix validity.
func (d *Decoder) parseGGA(parts []string) (*FixRecord, RejectReason, error) {
	if len(parts) < minFieldsGGA {
		return nil, RejectShortSentence, nil
	}

	quality, err := intOrZero(parts[6])
	if err != nil {
		return nil, "", err
	}
	sats, err := intOrZero(parts[7])
	if err != nil {
		return nil, "", err
	}
	hdop, err := floatOrZero(parts[8])
	if err != nil {
		return nil, "", err
	}
	alt, err := floatOrZero(parts[9])
	if err != nil {
		return nil, "", err
	}

	fix := d.newFix(TypeGGA)
	fix.UTCTime = hms(parts[1])
	fix.Latitude = coord(parts[2], parts[3], false)
	fix.Longitude = coord(parts[4], parts[5], true)
	fix.Quality = Int(quality)
	fix.NumSatellites = Int(sats)
	fix.HDOP = Float(hdop)
	fix.Altitude = Float(alt)
	return fix, "", nil
}

func coord(value, hemisphere string, longitude bool) *float64 {
	if value == "" {
		return nil
	}
	return Float(DMToDecimal(value, hemisphere, longitude))
}

// hms slices "hhmmss[.ss]" into "hh:mm:ss".
func hms(s string) *string {
	if len(s) < 6 {
		return nil
	}
	return String(fmt.Sprintf("%s:%s:%s", s[0:2], s[2:4], s[4:6]))
}

// ymd slices "ddmmyy" into "20yy-mm-dd".
func ymd(s string) *string {
	if len(s) != 6 {
		return nil
	}
	return String(fmt.Sprintf("20%s-%s-%s", s[4:6], s[2:4], s[0:2]))
}

func floatOrZero(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func intOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
