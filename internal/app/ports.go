package app

import (
	"github.com/relabs-tech/gps_bridge/internal/serialport"
)

// ListPorts returns the serial ports the configured driver can see.
func ListPorts(driver string) ([]string, error) {
	t, err := serialport.NewTransport(driver)
	if err != nil {
		return nil, err
	}
	return t.Enumerate()
}
