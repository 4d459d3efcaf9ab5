//go:build !linux

package serialport

func errnoHint(error) OpenHint { return HintNone }
