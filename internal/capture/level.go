package capture

import "math"

// SilenceFloorDB is reported for digital silence and unreadable input.
const SilenceFloorDB = -160.0

// PowerDB returns the RMS level of 16-bit samples in dBFS.
func PowerDB(samples []int16) float64 {
	if len(samples) == 0 {
		return SilenceFloorDB
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(rms)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}
