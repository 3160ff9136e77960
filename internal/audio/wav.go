// Package audio inspects uploaded recordings before they are sent for
// scoring.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
)

// ErrUnsupportedFormat is returned for anything other than 16-bit PCM WAV.
var ErrUnsupportedFormat = errors.New("audio: unsupported format, want 16-bit PCM WAV")

const (
	frameDuration = 0.02 // seconds
	maxSNR        = 60.0

	// minFloorRatio is how far (6 dB) the quietest decile must sit below the
	// median frame to be taken as background noise.
	minFloorRatio = 4.0
)

// WAV describes decoded 16-bit PCM samples, downmixed to mono.
type WAV struct {
	SampleRate int
	Samples    []int16
}

// Duration returns the length of the recording in seconds.
func (w *WAV) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrUnsupportedFormat
	}

	var (
		channels   int
		sampleRate int
		haveFmt    bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, ErrUnsupportedFormat
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || bits != 16 || channels == 0 || sampleRate == 0 {
				return nil, ErrUnsupportedFormat
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, ErrUnsupportedFormat
			}
			return &WAV{SampleRate: sampleRate, Samples: downmix(data[body:end], channels)}, nil
		}

		// chunks are word aligned
		pos = body + size + size%2
	}
	return nil, ErrUnsupportedFormat
}

func downmix(pcm []byte, channels int) []int16 {
	frames := len(pcm) / (2 * channels)
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// SignalToNoise estimates the SNR of a recording in dB. Short frames are
// ranked by energy; the quietest decile approximates the noise floor and the
// loudest decile the speech level. Pure silence reports 0 and a recording
// with a digital-zero floor reports 60.
//
// ok is false when the recording has no pauses to measure noise in, that is
// when the quietest decile is not clearly below the median frame. A steady
// signal cannot be split into speech and noise by energy alone.
func (w *WAV) SignalToNoise() (snr float64, ok bool) {
	size := int(float64(w.SampleRate) * frameDuration)
	if size == 0 || len(w.Samples) < size {
		return 0, false
	}

	energies := make([]float64, 0, len(w.Samples)/size)
	for start := 0; start+size <= len(w.Samples); start += size {
		var sum float64
		for _, s := range w.Samples[start : start+size] {
			v := float64(s)
			sum += v * v
		}
		energies = append(energies, sum/float64(size))
	}
	sort.Float64s(energies)

	noise := percentileMean(energies, 0, 0.1)
	signal := percentileMean(energies, 0.9, 1)
	median := energies[len(energies)/2]
	switch {
	case signal == 0:
		return 0, true
	case noise == 0:
		return maxSNR, true
	case noise*minFloorRatio > median:
		return 0, false
	}

	snr = 10 * math.Log10(signal/noise)
	return math.Max(0, math.Min(snr, maxSNR)), true
}

func percentileMean(sorted []float64, from, to float64) float64 {
	lo := int(from * float64(len(sorted)))
	hi := int(math.Ceil(to * float64(len(sorted))))
	if hi <= lo {
		hi = lo + 1
	}
	if hi > len(sorted) {
		hi = len(sorted)
	}
	var sum float64
	for _, e := range sorted[lo:hi] {
		sum += e
	}
	return sum / float64(hi-lo)
}

// EstimateSNR decodes data and returns its SNR. ok is false when the format
// cannot be analyzed or the recording has no measurable noise floor.
func EstimateSNR(data []byte) (snr float64, ok bool) {
	w, err := DecodeWAV(data)
	if err != nil {
		return 0, false
	}
	return w.SignalToNoise()
}
