//go:build linux

package status

import "golang.org/x/sys/unix"

// sysinfo load averages are fixed point with 16 fractional bits.
const loadScale = 1 << 16

func loadAverage() ([3]float64, bool) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return [3]float64{}, false
	}
	return [3]float64{
		float64(si.Loads[0]) / loadScale,
		float64(si.Loads[1]) / loadScale,
		float64(si.Loads[2]) / loadScale,
	}, true
}
