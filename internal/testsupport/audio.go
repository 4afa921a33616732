package testsupport

import (
	"encoding/binary"
	"math"
	"testing"
)

// WAVBytes builds a 16-bit PCM RIFF/WAVE file from float samples in [-1,1].
// Multi-channel input must be interleaved.
func WAVBytes(t *testing.T, samples []float64, sampleRate, channels int) []byte {
	t.Helper()

	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(int16(s*32767)))
	}
	return buf
}

// Tone synthesizes a pure sine at the given frequency.
func Tone(t *testing.T, freq, seconds float64, sampleRate int) []float64 {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// ChordPulses synthesizes a rhythmic chord track: a short burst of the given
// frequencies on every beat at the given tempo, silence between beats. The
// result carries both a clear tempo and a clear pitch-class profile.
func ChordPulses(t *testing.T, freqs []float64, bpm, seconds float64, sampleRate int) []float64 {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	beatPeriod := 60 / bpm * float64(sampleRate)
	burstLen := int(0.15 * float64(sampleRate))
	amp := 0.8 / float64(len(freqs))

	for beat := 0; ; beat++ {
		start := int(float64(beat) * beatPeriod)
		if start >= n {
			break
		}
		for i := 0; i < burstLen && start+i < n; i++ {
			phase := float64(i) / float64(sampleRate)
			v := 0.0
			for _, f := range freqs {
				v += amp * math.Sin(2*math.Pi*f*phase)
			}
			out[start+i] = v
		}
	}
	return out
}
