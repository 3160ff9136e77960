package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

const testRate = 16000

func encodeWAV(t *testing.T, channels int, samples []int16) []byte {
	t.Helper()
	var pcm bytes.Buffer
	for _, s := range samples {
		binary.Write(&pcm, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+pcm.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(testRate))
	binary.Write(&buf, binary.LittleEndian, uint32(testRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(pcm.Len()))
	buf.Write(pcm.Bytes())
	return buf.Bytes()
}

// square builds frames of alternating +amp/-amp samples.
func square(frames int, amp int16) []int16 {
	n := frames * testRate / 50
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

// tone builds a constant-amplitude sine wave.
func tone(seconds float64, freq float64, amp float64) []int16 {
	n := int(seconds * testRate)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func TestEstimateSNR(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
		wantOK  bool
	}{
		{"silence", square(100, 0), 0, true},
		{"speech over digital zero", append(square(50, 0), square(50, 10000)...), 60, true},
		{"clean speech", append(square(50, 1000), square(50, 10000)...), 20, true},
		{"noisy pauses", append(square(30, 3000), square(70, 8000)...), 10 * math.Log10(64.0/9.0), true},
		{"steady tone", tone(2, 220, 8000), 0, false},
		{"steady level", square(100, 5000), 0, false},
		{"too short", square(0, 1000), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EstimateSNR(encodeWAV(t, 1, tt.samples))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (snr %v)", ok, tt.wantOK, got)
			}
			if ok && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("snr = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeWAV_Stereo(t *testing.T) {
	w, err := DecodeWAV(encodeWAV(t, 2, []int16{100, 300, -200, -400}))
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if len(w.Samples) != 2 || w.Samples[0] != 200 || w.Samples[1] != -300 {
		t.Errorf("samples = %v, want [200 -300]", w.Samples)
	}
	if w.SampleRate != testRate {
		t.Errorf("sample rate = %d", w.SampleRate)
	}
}

func TestDecodeWAV_Unsupported(t *testing.T) {
	tests := map[string][]byte{
		"empty":   nil,
		"webm":    []byte("\x1aE\xdf\xa3 not a wav file at all"),
		"no data": []byte("RIFF\x04\x00\x00\x00WAVE"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, ok := EstimateSNR(data); ok {
				t.Error("expected unsupported format")
			}
		})
	}
}
