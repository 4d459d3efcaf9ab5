package gps

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

// DMToDecimal converts an NMEA degrees-minutes value ("ddmm.mmmm" for latitude,
// "dddmm.mmmm" for longitude) and its hemisphere letter to signed decimal
// degrees rounded to 6 places.
//
// Malformed input yields 0.0 and a log line, never an error. Callers that need
// to tell "unparsable" from the equator check that the source field was non-empty.
func DMToDecimal(value, hemisphere string, longitude bool) float64 {
	v, err := dmToDecimal(value, hemisphere, longitude)
	if err != nil {
		log.Printf("gps: coordinate conversion error: %v", err)
		return 0
	}
	return v
}

func dmToDecimal(value, hemisphere string, longitude bool) (float64, error) {
	if value == "" {
		return 0, nil
	}
	if !strings.Contains(value, ".") {
		return 0, fmt.Errorf("invalid coordinate value %q", value)
	}

	degLen := 2
	if longitude {
		degLen = 3
	}
	if len(value) < degLen {
		return 0, fmt.Errorf("invalid coordinate value %q", value)
	}

	deg, err := strconv.Atoi(value[:degLen])
	if err != nil {
		return 0, fmt.Errorf("invalid degrees in %q: %w", value, err)
	}
	min, err := strconv.ParseFloat(value[degLen:], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
	}

	dec := float64(deg) + min/60.0
	if hemisphere == "S" || hemisphere == "W" {
		dec = -dec
	}
	return Round6(dec), nil
}

// Round6 rounds v to 6 decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
