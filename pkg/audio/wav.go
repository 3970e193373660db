package audio

import (
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"
)

// DecodeWAV reads a complete RIFF/WAVE stream and returns it as mono S16 PCM.
// Multi-channel input is averaged down to one channel.
func DecodeWAV(r io.Reader) (*SpeechResult, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode wav")
	}
	defer streamer.Close()

	samples, err := drain(streamer, format.NumChannels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read wav samples")
	}
	rescale(samples, format.Precision)
	return &SpeechResult{
		PCM:          S16FromSamples(samples),
		SampleFormat: S16,
		SampleRate:   uint32(format.SampleRate),
	}, nil
}

// rescale undoes the decoder's full-scale divisor for 16 and 24-bit input,
// which maps 2^(n-1) to 0.5 instead of 1.
func rescale(samples []float64, precision int) {
	var k float64
	switch precision {
	case 2:
		k = float64(1<<16-1) / (1 << 15)
	case 3:
		k = float64(1<<24-1) / (1 << 23)
	default:
		return
	}
	for i := range samples {
		samples[i] *= k
	}
}

func drain(s beep.Streamer, channels int) ([]float64, error) {
	var out []float64
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			if channels > 1 {
				out = append(out, (buf[i][0]+buf[i][1])/2)
			} else {
				out = append(out, buf[i][0])
			}
		}
		if !ok {
			break
		}
	}
	return out, s.Err()
}

// EncodeWAV writes the result as a mono 16-bit WAV file.
func EncodeWAV(w io.WriteSeeker, r *SpeechResult) error {
	clip, err := r.Clip()
	if err != nil {
		return err
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(clip.SampleRate),
		NumChannels: Channels,
		Precision:   2,
	}
	if err := wav.Encode(w, clip.Streamer(), format); err != nil {
		return errors.Wrap(err, "failed to encode wav")
	}
	return nil
}
