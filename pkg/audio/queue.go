package audio

import "github.com/faiface/beep"

// Queue is a streamer that plays appended streamers back to back and
// produces silence while empty, so it can stay attached to the speaker for
// the lifetime of the sink. Queue is not safe for concurrent use; the
// speaker lock guards it once it is playing.
type Queue struct {
	streamers []beep.Streamer
}

// Add appends s to the end of the queue.
func (q *Queue) Add(s ...beep.Streamer) {
	q.streamers = append(q.streamers, s...)
}

// Clear drops everything queued, including the streamer currently playing.
func (q *Queue) Clear() {
	q.streamers = nil
}

// Len returns the number of streamers waiting, including the current one.
func (q *Queue) Len() int {
	return len(q.streamers)
}

func (q *Queue) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(q.streamers) == 0 {
			break
		}
		got, more := q.streamers[0].Stream(samples[n:])
		if !more {
			q.streamers[0] = nil
			q.streamers = q.streamers[1:]
		} else if got == 0 {
			break
		}
		n += got
	}
	for i := range samples[n:] {
		samples[n+i] = [2]float64{}
	}
	return len(samples), true
}

func (q *Queue) Err() error {
	return nil
}
