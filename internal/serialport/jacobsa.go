package serialport

import (
	"errors"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// JacobsaTransport opens ports with github.com/jacobsa/go-serial. It has no
// enumeration of its own, so it lists ports through go.bug.st/serial.
type JacobsaTransport struct{}

func (JacobsaTransport) Enumerate() ([]string, error) {
	return BugstTransport{}.Enumerate()
}

func (JacobsaTransport) Open(name string, baud int, timeout time.Duration) (Port, error) {
	// InterCharacterTimeout is in milliseconds and must be a multiple of 100.
	ict := uint(timeout/(100*time.Millisecond)) * 100
	if ict == 0 {
		ict = 100
	}
	opts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: ict,
	}
	rw, err := serial.Open(opts)
	if err != nil {
		return nil, err
	}
	return newPort(timeoutAsEmpty{rw}), nil
}

// timeoutAsEmpty turns the io.EOF a VTIME read returns on timeout into an
// empty read.
type timeoutAsEmpty struct {
	io.ReadWriteCloser
}

func (t timeoutAsEmpty) Read(p []byte) (int, error) {
	n, err := t.ReadWriteCloser.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}
