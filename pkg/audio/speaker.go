package audio

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/pkg/errors"
)

// DeviceSampleRate is the rate the output device is opened at. Clips at any
// other rate are resampled on the way in.
const DeviceSampleRate = beep.SampleRate(48000)

const resampleQuality = 3

// ErrSpeakerClosed is returned by a Speaker after Close.
var ErrSpeakerClosed = errors.New("speaker closed")

// Speaker is the process-wide playback sink. Appended clips play in order;
// Stop discards whatever is queued.
type Speaker struct {
	mu     sync.Mutex
	queue  *Queue
	closed bool
}

// NewSpeaker opens the default output device.
func NewSpeaker() (*Speaker, error) {
	if err := speaker.Init(DeviceSampleRate, DeviceSampleRate.N(time.Second/10)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	q := &Queue{}
	speaker.Play(q)
	return &Speaker{queue: q}, nil
}

// Append queues a clip behind anything already playing.
func (s *Speaker) Append(c Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSpeakerClosed
	}
	if c.SampleRate <= 0 {
		return errors.Errorf("invalid clip sample rate %d", c.SampleRate)
	}

	var streamer beep.Streamer = c.Streamer()
	if rate := beep.SampleRate(c.SampleRate); rate != DeviceSampleRate {
		streamer = beep.Resample(resampleQuality, rate, DeviceSampleRate, streamer)
	}

	speaker.Lock()
	s.queue.Add(streamer)
	speaker.Unlock()
	return nil
}

// Stop silences the sink immediately.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSpeakerClosed
	}
	speaker.Lock()
	s.queue.Clear()
	speaker.Unlock()
	return nil
}

// Close stops playback and releases the device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	speaker.Clear()
	speaker.Close()
	return nil
}
