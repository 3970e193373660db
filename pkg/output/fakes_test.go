package output

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"murmur/pkg/audio"
)

type fakeBackend struct {
	name    string
	voices  []Voice
	listErr error
	closed  int32
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) ListVoices() ([]Voice, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Voice(nil), f.voices...), nil
}

func (f *fakeBackend) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

// fakeAudioData only returns PCM.
type fakeAudioData struct {
	fakeBackend
	rate   uint32
	format audio.SampleFormat
	pcm    []byte
	err    error
	delay  time.Duration
	panics bool

	mu          sync.Mutex
	calls       int
	last        Params
	inFlight    int32
	maxInFlight int32
}

func (f *fakeAudioData) SupportsSpeechParameters() bool { return true }

func (f *fakeAudioData) SpeakToAudioData(p Params, text string) (*audio.SpeechResult, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls++
	f.last = p
	f.mu.Unlock()

	if f.panics {
		panic("engine exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	pcm := f.pcm
	if pcm == nil {
		pcm = []byte{0, 0, 0xff, 0x7f}
	}
	return &audio.SpeechResult{PCM: pcm, SampleFormat: f.format, SampleRate: f.rate}, nil
}

func (f *fakeAudioData) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAudioOutput only plays audio itself.
type fakeAudioOutput struct {
	fakeBackend
	speakErr error
	stopErr  error

	spoken     []string
	interrupts []bool
	stops      int
}

func (f *fakeAudioOutput) SupportsSpeechParameters() bool { return false }

func (f *fakeAudioOutput) SpeakToAudioOutput(p Params, text string, interrupt bool) error {
	if f.speakErr != nil {
		return f.speakErr
	}
	f.spoken = append(f.spoken, text)
	f.interrupts = append(f.interrupts, interrupt)
	return nil
}

func (f *fakeAudioOutput) StopSpeech() error {
	f.stops++
	return f.stopErr
}

// fakeBoth implements both speech capabilities.
type fakeBoth struct {
	fakeAudioData
	nativeSpoken []string
}

func (f *fakeBoth) SpeakToAudioOutput(p Params, text string, interrupt bool) error {
	f.nativeSpoken = append(f.nativeSpoken, text)
	return nil
}

func (f *fakeBoth) StopSpeech() error { return nil }

type fakeBraille struct {
	fakeBackend
	priority uint8
	err      error
	shown    []string
}

func (f *fakeBraille) BraillePriority() uint8 { return f.priority }

func (f *fakeBraille) Braille(text string) error {
	if f.err != nil {
		return f.err
	}
	f.shown = append(f.shown, text)
	return nil
}

// fakeScreenReader is both a native speaker and a Braille display, like a
// screen reader.
type fakeScreenReader struct {
	fakeAudioOutput
	priority uint8
	shown    []string
}

func (f *fakeScreenReader) BraillePriority() uint8 { return f.priority }

func (f *fakeScreenReader) Braille(text string) error {
	f.shown = append(f.shown, text)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	events  []string
	clips   []audio.Clip
	stopErr error
	closed  bool
}

func (s *fakeSink) Append(c audio.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "append")
	s.clips = append(s.clips, c)
	return nil
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "stop")
	return s.stopErr
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) snapshot() ([]string, []audio.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...), append([]audio.Clip(nil), s.clips...)
}

func factoryFor(b Backend) Factory {
	return Factory{Name: b.Name(), New: func() (Backend, error) { return b, nil }}
}

func failingFactory(name string) Factory {
	return Factory{Name: name, New: func() (Backend, error) { return nil, errors.New("engine not installed") }}
}

func newTestOutput(t *testing.T, factories ...Factory) (*Output, *fakeSink, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	sink := &fakeSink{}
	o, err := New(
		WithFactories(factories...),
		WithSink(func() (AudioSink, error) { return sink, nil }),
		WithLogger(log),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o, sink, hook
}

func voice(name string, priority uint8, languages ...string) Voice {
	return Voice{DisplayName: name, Name: name, Languages: languages, Priority: priority}
}
