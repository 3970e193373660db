package output

import "murmur/pkg/audio"

// Backend is implemented by every engine adapter. An adapter additionally
// implements any of AudioDataSynthesizer, AudioOutputSynthesizer and
// BrailleDisplay; which ones is decided once at registration.
//
// Adapters are only ever constructed and called from the dispatch goroutine,
// so they need no locking of their own.
type Backend interface {
	Name() string
	ListVoices() ([]Voice, error)
}

// AudioDataSynthesizer produces complete PCM buffers without playing them.
type AudioDataSynthesizer interface {
	Backend
	SupportsSpeechParameters() bool
	SpeakToAudioData(p Params, text string) (*audio.SpeechResult, error)
}

// AudioOutputSynthesizer plays speech through the engine's own audio path.
type AudioOutputSynthesizer interface {
	Backend
	SupportsSpeechParameters() bool
	SpeakToAudioOutput(p Params, text string, interrupt bool) error
	StopSpeech() error
}

// BrailleDisplay renders text on a Braille display.
type BrailleDisplay interface {
	Backend
	BraillePriority() uint8
	Braille(text string) error
}

// Factory constructs one adapter. A factory that fails leaves its backend
// out of the registry.
type Factory struct {
	Name string
	New  func() (Backend, error)
}

// AudioSink is the shared playback device for backends that can only
// produce PCM. Clips play in the order they were appended.
type AudioSink interface {
	Append(c audio.Clip) error
	Stop() error
	Close() error
}

// SpeakerSink opens the default output device.
func SpeakerSink() (AudioSink, error) {
	s, err := audio.NewSpeaker()
	if err != nil {
		return nil, err
	}
	return s, nil
}
