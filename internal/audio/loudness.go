package audio

import "math"

// Loudness returns the normalized RMS amplitude of a chunk of signed 16-bit
// PCM samples. The result lies in [0, 1]; an empty chunk reports 0.
func Loudness(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy/float64(len(samples))) / 32768.0
}
