// Package audio holds the PCM types exchanged with speech backends and the
// shared playback sink used for backends that can only return samples.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/pkg/errors"
)

// SampleFormat is the encoding of a single PCM sample.
type SampleFormat uint8

const (
	// S16 is signed 16-bit little-endian.
	S16 SampleFormat = iota
	// F32 is IEEE 754 32-bit little-endian float.
	F32
)

func (f SampleFormat) String() string {
	switch f {
	case S16:
		return "s16"
	case F32:
		return "f32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", uint8(f))
	}
}

// Size returns the number of bytes used by one sample, or 0 for an unknown format.
func (f SampleFormat) Size() int {
	switch f {
	case S16:
		return 2
	case F32:
		return 4
	default:
		return 0
	}
}

// Channels is fixed: every buffer in the system is mono.
const Channels = 1

// SpeechResult is a complete synthesized utterance.
type SpeechResult struct {
	PCM          []byte
	SampleFormat SampleFormat
	SampleRate   uint32
}

// Validate checks that the buffer length matches the declared format and
// that the sample rate is usable.
func (r *SpeechResult) Validate() error {
	size := r.SampleFormat.Size()
	if size == 0 {
		return errors.Errorf("unknown sample format %d", uint8(r.SampleFormat))
	}
	if r.SampleRate == 0 {
		return errors.New("sample rate must be positive")
	}
	if len(r.PCM)%(size*Channels) != 0 {
		return errors.Errorf("pcm length %d is not a multiple of %d-byte %s frames", len(r.PCM), size*Channels, r.SampleFormat)
	}
	return nil
}

// Samples returns the number of mono samples in the buffer.
func (r *SpeechResult) Samples() int {
	size := r.SampleFormat.Size()
	if size == 0 {
		return 0
	}
	return len(r.PCM) / (size * Channels)
}

// Duration returns the playback length of the buffer.
func (r *SpeechResult) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return beep.SampleRate(r.SampleRate).D(r.Samples())
}

// Clip decodes the buffer according to its declared sample format.
func (r *SpeechResult) Clip() (Clip, error) {
	if err := r.Validate(); err != nil {
		return Clip{}, err
	}
	samples := make([]float64, r.Samples())
	switch r.SampleFormat {
	case S16:
		for i := range samples {
			v := int16(binary.LittleEndian.Uint16(r.PCM[i*2:]))
			samples[i] = float64(v) / 32768
		}
	case F32:
		for i := range samples {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(r.PCM[i*4:])))
		}
	}
	return Clip{Samples: samples, SampleRate: int(r.SampleRate)}, nil
}

// Clip is a decoded mono clip ready for the sink.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return beep.SampleRate(c.SampleRate).D(len(c.Samples))
}

// Streamer plays the clip once on both speaker channels.
func (c Clip) Streamer() beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if pos >= len(c.Samples) {
			return 0, false
		}
		n := copyMono(out, c.Samples[pos:])
		pos += n
		return n, true
	})
}

func copyMono(out [][2]float64, in []float64) int {
	n := len(out)
	if len(in) < n {
		n = len(in)
	}
	for i := 0; i < n; i++ {
		out[i][0] = in[i]
		out[i][1] = in[i]
	}
	return n
}

// S16FromSamples quantizes float samples in [-1, 1] to signed 16-bit PCM.
func S16FromSamples(samples []float64) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		q := math.Round(v * 32768)
		if q > math.MaxInt16 {
			q = math.MaxInt16
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(q)))
	}
	return pcm
}
