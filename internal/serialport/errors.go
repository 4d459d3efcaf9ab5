package serialport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPortAvailable is returned when auto-selection finds no ports.
var ErrNoPortAvailable = errors.New("no serial port detected, check the connection")

// PortUnavailableError means the configured port is not among the enumerated ones.
type PortUnavailableError struct {
	Port      string
	Available []string
	CaseMatch string // enumerated port equal to Port ignoring case, if any
}

func (e *PortUnavailableError) Error() string {
	msg := fmt.Sprintf("serial port %s does not exist (available: %s)", e.Port, availableList(e.Available))
	if e.CaseMatch != "" {
		msg += fmt.Sprintf(", did you mean %s (case differs)?", e.CaseMatch)
	}
	return msg
}

// OpenHint is a human hint derived from the OS error of a failed open.
type OpenHint int

const (
	HintNone OpenHint = iota
	HintBusy
	HintPermission
)

func (h OpenHint) String() string {
	switch h {
	case HintBusy:
		return "device is in use by another program (e.g. minicom), close it and retry"
	case HintPermission:
		return "permission denied, check that the current user can access the serial port"
	default:
		return ""
	}
}

// PortOpenError wraps a failed open of an existing port.
type PortOpenError struct {
	Port      string
	Available []string
	Hint      OpenHint
	Err       error
}

func (e *PortOpenError) Error() string {
	detail := "unknown error"
	if e.Err != nil && e.Err.Error() != "" {
		detail = e.Err.Error()
	}
	msg := fmt.Sprintf("failed to open serial port %s: %s", e.Port, detail)
	if h := e.Hint.String(); h != "" {
		msg += ", " + h
	}
	return msg + fmt.Sprintf(" (available: %s)", availableList(e.Available))
}

func (e *PortOpenError) Unwrap() error { return e.Err }

func availableList(ports []string) string {
	if len(ports) == 0 {
		return "none"
	}
	return strings.Join(ports, ", ")
}

// classifyOpenError maps an open failure to a hint: errno 16 (EBUSY) is busy,
// errno 13 (EACCES) is permission, with message text as a fallback.
func classifyOpenError(err error) OpenHint {
	if h := driverHint(err); h != HintNone {
		return h
	}
	if h := errnoHint(err); h != HintNone {
		return h
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device or resource busy"), strings.Contains(msg, "errno 16"):
		return HintBusy
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "errno 13"):
		return HintPermission
	}
	return HintNone
}
