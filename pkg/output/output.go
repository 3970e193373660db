// Package output dispatches speech and Braille requests to whichever engine
// adapters are available on the host.
//
// All adapters and the shared audio sink are owned by one goroutine locked
// to its OS thread. Output's methods are safe for concurrent use; each one
// validates its arguments, hands a unit of work to that goroutine and blocks
// until it has run.
package output

import (
	"github.com/sirupsen/logrus"

	"murmur/pkg/audio"
)

// Speech selects a backend and voice and carries the optional speech
// parameters. Empty strings and nil pointers mean "not given".
type Speech struct {
	Backend  string
	Voice    string
	Language string
	Rate     *uint8
	Volume   *uint8
	Pitch    *uint8
}

func (s Speech) validate() error {
	if s.Rate != nil && *s.Rate > maxParameter {
		return InvalidRate(*s.Rate)
	}
	if s.Volume != nil && *s.Volume > maxParameter {
		return InvalidVolume(*s.Volume)
	}
	if s.Pitch != nil && *s.Pitch > maxParameter {
		return InvalidPitch(*s.Pitch)
	}
	return nil
}

func (s Speech) params() Params {
	return Params{
		Voice:    s.Voice,
		Language: s.Language,
		Rate:     copyLevel(s.Rate),
		Volume:   copyLevel(s.Volume),
		Pitch:    copyLevel(s.Pitch),
	}
}

func (s Speech) filter(needsAudioData bool) VoiceFilter {
	return VoiceFilter{Backend: s.Backend, Voice: s.Voice, Language: s.Language, NeedsAudioData: needsAudioData}
}

func copyLevel(v *uint8) *uint8 {
	if v == nil {
		return nil
	}
	return Level(*v)
}

type options struct {
	factories []Factory
	newSink   func() (AudioSink, error)
	log       logrus.FieldLogger
	queueSize int
}

// Option configures New.
type Option func(*options)

// WithFactories sets the adapters to construct. Later factories whose
// backend name is already registered are ignored.
func WithFactories(factories ...Factory) Option {
	return func(o *options) { o.factories = append(o.factories, factories...) }
}

// WithSink replaces the default speaker sink.
func WithSink(newSink func() (AudioSink, error)) Option {
	return func(o *options) { o.newSink = newSink }
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithQueueSize sets how many units of work may wait before callers block.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.queueSize = n
		}
	}
}

// Output is the facade over the dispatch goroutine.
type Output struct {
	d *dispatcher
}

// New starts the dispatch goroutine, opens the audio sink and constructs
// every adapter there. Adapters that fail to construct are left out. New
// fails with InitializeFailed only when the sink cannot be opened.
func New(opts ...Option) (*Output, error) {
	o := options{
		newSink:   SpeakerSink,
		log:       logrus.StandardLogger(),
		queueSize: 16,
	}
	for _, opt := range opts {
		opt(&o)
	}
	d, err := startDispatcher(o.factories, o.newSink, o.queueSize, o.log)
	if err != nil {
		return nil, err
	}
	return &Output{d: d}, nil
}

// Close waits for queued work, then closes every adapter and the sink.
// Calls made after Close fail with Unknown.
func (o *Output) Close() error {
	o.d.close()
	return nil
}

// ListVoices returns the voices matching f sorted by (priority, name).
func (o *Output) ListVoices(f VoiceFilter) ([]Voice, error) {
	return submit(o.d, "list_voices", func(s *state) ([]Voice, error) {
		return s.registry.listVoices(f, s.log), nil
	})
}

// ListSpeechSynthesizers returns every backend that can speak.
func (o *Output) ListSpeechSynthesizers() ([]SpeechSynthesizerMetadata, error) {
	return submit(o.d, "list_speech_synthesizers", func(s *state) ([]SpeechSynthesizerMetadata, error) {
		return s.registry.synthesizers(false), nil
	})
}

// ListSpeechSynthesizersSupportingAudioData returns every backend that can
// return PCM.
func (o *Output) ListSpeechSynthesizersSupportingAudioData() ([]SpeechSynthesizerMetadata, error) {
	return submit(o.d, "list_speech_synthesizers_supporting_audio_data", func(s *state) ([]SpeechSynthesizerMetadata, error) {
		return s.registry.synthesizers(true), nil
	})
}

// ListBrailleBackends returns every backend that can drive a Braille display.
func (o *Output) ListBrailleBackends() ([]BrailleBackendMetadata, error) {
	return submit(o.d, "list_braille_backends", func(s *state) ([]BrailleBackendMetadata, error) {
		return s.registry.brailleBackends(), nil
	})
}

// SpeakToAudioData synthesizes text with a backend able to return PCM.
func (o *Output) SpeakToAudioData(sp Speech, text string) (*audio.SpeechResult, error) {
	if err := sp.validate(); err != nil {
		return nil, err
	}
	return submit(o.d, "speak_to_audio_data", func(s *state) (*audio.SpeechResult, error) {
		return s.speakToAudioData(sp, text)
	})
}

// SpeakToAudioOutput speaks text aloud. Backends that cannot play audio
// themselves are played through the shared sink.
func (o *Output) SpeakToAudioOutput(sp Speech, text string, interrupt bool) error {
	if err := sp.validate(); err != nil {
		return err
	}
	_, err := submit(o.d, "speak_to_audio_output", func(s *state) (struct{}, error) {
		return struct{}{}, s.speakToAudioOutput(sp, text, interrupt)
	})
	return err
}

// StopSpeech stops one backend, or with an empty name the shared sink and
// every backend that plays audio itself.
func (o *Output) StopSpeech(backend string) error {
	_, err := submit(o.d, "stop_speech", func(s *state) (struct{}, error) {
		return struct{}{}, s.stopSpeech(backend)
	})
	return err
}

// Braille shows text on the named backend, or on the preferred Braille
// backend when the name is empty.
func (o *Output) Braille(backend, text string) error {
	_, err := submit(o.d, "braille", func(s *state) (struct{}, error) {
		return struct{}{}, s.braille(backend, text)
	})
	return err
}

// Output speaks and Brailles text in one unit of work. Both are always
// attempted. A speech failure is reported ahead of a Braille one unless no
// voices exist, in which case the Braille outcome is reported, and NoBackends
// when neither side has any backend.
func (o *Output) Output(sp Speech, brailleBackend, text string, interrupt bool) error {
	if err := sp.validate(); err != nil {
		return err
	}
	_, err := submit(o.d, "output", func(s *state) (struct{}, error) {
		speechErr := s.speakToAudioOutput(sp, text, interrupt)
		brailleErr := s.braille(brailleBackend, text)
		return struct{}{}, mergeOutput(speechErr, brailleErr)
	})
	return err
}

func mergeOutput(speechErr, brailleErr error) error {
	if KindOf(speechErr) == KindNoVoices {
		if KindOf(brailleErr) == KindNoBrailleBackends {
			return &Error{Kind: KindNoBackends}
		}
		return brailleErr
	}
	return speechErr
}

func (s *state) speakToAudioData(sp Speech, text string) (*audio.SpeechResult, error) {
	name, err := s.registry.resolveBackend(sp.filter(true), s.log)
	if err != nil {
		return nil, err
	}
	e, ok := s.registry.get(name)
	if !ok {
		return nil, BackendNotFound(name)
	}
	if e.audioData == nil {
		return nil, AudioDataNotSupported(name)
	}
	return s.synthesize(e, sp, text)
}

func (s *state) synthesize(e *entry, sp Speech, text string) (*audio.SpeechResult, error) {
	res, err := e.audioData.SpeakToAudioData(sp.params(), text)
	if err != nil {
		return nil, SpeakFailed(e.name(), sp.Voice, err)
	}
	if res == nil {
		return nil, SpeakFailed(e.name(), sp.Voice, errNoAudio)
	}
	if err := res.Validate(); err != nil {
		return nil, SpeakFailed(e.name(), sp.Voice, err)
	}
	return res, nil
}

func (s *state) speakToAudioOutput(sp Speech, text string, interrupt bool) error {
	name, err := s.registry.resolveBackend(sp.filter(false), s.log)
	if err != nil {
		return err
	}
	e, ok := s.registry.get(name)
	if !ok {
		return BackendNotFound(name)
	}
	switch {
	case e.audioOutput != nil:
		if err := e.audioOutput.SpeakToAudioOutput(sp.params(), text, interrupt); err != nil {
			return SpeakFailed(name, sp.Voice, err)
		}
		return nil
	case e.audioData != nil:
		return s.playThroughSink(e, sp, text, interrupt)
	default:
		return SpeechNotSupported(name)
	}
}

// playThroughSink is the path for backends that can only return PCM.
func (s *state) playThroughSink(e *entry, sp Speech, text string, interrupt bool) error {
	res, err := s.synthesize(e, sp, text)
	if err != nil {
		return err
	}
	clip, err := res.Clip()
	if err != nil {
		return SpeakFailed(e.name(), sp.Voice, err)
	}
	if interrupt {
		if err := s.sink.Stop(); err != nil {
			return SpeakFailed(e.name(), sp.Voice, err)
		}
	}
	if err := s.sink.Append(clip); err != nil {
		return SpeakFailed(e.name(), sp.Voice, err)
	}
	return nil
}

func (s *state) stopSpeech(backend string) error {
	if backend == "" {
		return s.stopAll()
	}
	e, ok := s.registry.get(backend)
	if !ok {
		return BackendNotFound(backend)
	}
	// Anything that does not play audio itself can only be heard through the sink.
	if e.audioOutput != nil {
		if err := e.audioOutput.StopSpeech(); err != nil {
			return StopSpeechFailed(backend, err)
		}
		return nil
	}
	if err := s.sink.Stop(); err != nil {
		return StopSpeechFailed(backend, err)
	}
	return nil
}

// stopAll stops the sink and makes a best effort at every backend that plays
// audio itself.
func (s *state) stopAll() error {
	sinkErr := s.sink.Stop()
	for _, e := range s.registry.entries {
		if e.audioOutput == nil {
			continue
		}
		if err := e.audioOutput.StopSpeech(); err != nil {
			s.log.WithError(err).WithField("backend", e.name()).Debug("Ignoring stop failure")
		}
	}
	if sinkErr != nil {
		return Unknown(sinkErr)
	}
	return nil
}

func (s *state) braille(backend, text string) error {
	var e *entry
	if backend != "" {
		var ok bool
		if e, ok = s.registry.get(backend); !ok {
			return BackendNotFound(backend)
		}
		if e.braille == nil {
			return BrailleNotSupported(backend)
		}
	} else {
		var ok bool
		if e, ok = s.registry.preferredBraille(); !ok {
			return &Error{Kind: KindNoBrailleBackends}
		}
	}
	if err := e.braille.Braille(text); err != nil {
		return BrailleFailed(e.name(), err)
	}
	return nil
}
