package serialport

import (
	"errors"
	"time"

	"go.bug.st/serial"
)

// BugstTransport uses go.bug.st/serial for enumeration and I/O.
type BugstTransport struct{}

func (BugstTransport) Enumerate() ([]string, error) {
	return serial.GetPortsList()
}

func (BugstTransport) Open(name string, baud int, timeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, err
	}
	return newPort(p), nil
}

func driverHint(err error) OpenHint {
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		return HintNone
	}
	switch pe.Code() {
	case serial.PortBusy:
		return HintBusy
	case serial.PermissionDenied:
		return HintPermission
	}
	return HintNone
}
