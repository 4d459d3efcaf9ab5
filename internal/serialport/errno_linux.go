//go:build linux

package serialport

import (
	"errors"

	"golang.org/x/sys/unix"
)

func errnoHint(err error) OpenHint {
	switch {
	case errors.Is(err, unix.EBUSY):
		return HintBusy
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return HintPermission
	}
	return HintNone
}
