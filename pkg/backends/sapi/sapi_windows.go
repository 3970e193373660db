//go:build windows

package sapi

import (
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"murmur/pkg/audio"
	"murmur/pkg/output"
)

const (
	sFalse          = 1
	localeNameChars = 85
)

var procLCIDToLocaleName = windows.NewLazySystemDLL("kernel32.dll").NewProc("LCIDToLocaleName")

// Synthesizer keeps one voice for playback and one that renders into memory
// streams, so rendering never redirects what is being spoken.
type Synthesizer struct {
	playback     *ole.IDispatch
	render       *ole.IDispatch
	defaultVoice string
}

// Factory registers SAPI 5.
func Factory() output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			s, err := New()
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// New initializes COM on the calling thread and creates the voices. It must
// run on the thread that will later use the synthesizer.
func New() (*Synthesizer, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			return nil, errors.Wrap(err, "failed to initialize COM")
		}
	}
	playback, err := createVoice()
	if err != nil {
		ole.CoUninitialize()
		return nil, err
	}
	render, err := createVoice()
	if err != nil {
		playback.Release()
		ole.CoUninitialize()
		return nil, err
	}
	s := &Synthesizer{playback: playback, render: render}

	current, err := oleutil.GetProperty(playback, "Voice")
	if err == nil {
		if token := current.ToIDispatch(); token != nil {
			if id, err := oleutil.CallMethod(token, "GetId"); err == nil {
				s.defaultVoice = id.ToString()
			}
		}
		current.Clear()
	}
	return s, nil
}

func createVoice() (*ole.IDispatch, error) {
	unknown, err := oleutil.CreateObject("SAPI.SpVoice")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SAPI.SpVoice")
	}
	defer unknown.Release()
	voice, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, errors.Wrap(err, "QueryInterface SpVoice failed")
	}
	return voice, nil
}

func (s *Synthesizer) Name() string { return Name }

func (s *Synthesizer) SupportsSpeechParameters() bool { return true }

func (s *Synthesizer) Close() error {
	s.playback.Release()
	s.render.Release()
	ole.CoUninitialize()
	return nil
}

func (s *Synthesizer) ListVoices() ([]output.Voice, error) {
	voices := []output.Voice{}
	err := forEachToken(s.playback, func(token *ole.IDispatch) (bool, error) {
		id, err := oleutil.CallMethod(token, "GetId")
		if err != nil {
			return false, nil
		}
		display := attribute(token, "Name")
		if display == "" {
			display = "Unknown"
		}
		voices = append(voices, output.Voice{
			DisplayName: display,
			Name:        id.ToString(),
			Languages:   parseLanguages(attribute(token, languageAttrName), localeName),
			Priority:    voicePriority,
		})
		return false, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate voices")
	}
	return voices, nil
}

// forEachToken walks the installed voice tokens until fn reports done.
func forEachToken(voice *ole.IDispatch, fn func(token *ole.IDispatch) (bool, error)) error {
	tokensVar, err := oleutil.CallMethod(voice, "GetVoices", "", "")
	if err != nil {
		return err
	}
	tokens := tokensVar.ToIDispatch()
	if tokens == nil {
		return errors.New("voices collection is nil")
	}
	defer tokens.Release()

	errDone := errors.New("done")
	err = oleutil.ForEach(tokens, func(v *ole.VARIANT) error {
		token := v.ToIDispatch()
		if token == nil {
			return nil
		}
		done, err := fn(token)
		if err != nil {
			return err
		}
		if done {
			return errDone
		}
		return nil
	})
	if err == errDone {
		return nil
	}
	return err
}

func attribute(token *ole.IDispatch, name string) string {
	v, err := oleutil.CallMethod(token, "GetAttribute", name)
	if err != nil {
		return ""
	}
	return v.ToString()
}

func localeName(lcid uint32) (string, error) {
	buf := make([]uint16, localeNameChars)
	n, _, err := procLCIDToLocaleName.Call(uintptr(lcid), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
	if n == 0 {
		return "", err
	}
	return windows.UTF16ToString(buf[:n]), nil
}

// selectVoice points voice at the requested token, or the default voice when
// neither a voice nor a language is given.
func (s *Synthesizer) selectVoice(voice *ole.IDispatch, p output.Params) error {
	id, language := p.Voice, p.Language
	if id == "" && language == "" {
		id = s.defaultVoice
	}
	found := false
	err := forEachToken(voice, func(token *ole.IDispatch) (bool, error) {
		if id != "" {
			tokenID, err := oleutil.CallMethod(token, "GetId")
			if err != nil || tokenID.ToString() != id {
				return false, nil
			}
		} else if !hasLanguage(parseLanguages(attribute(token, languageAttrName), localeName), language) {
			return false, nil
		}
		if _, err := oleutil.PutPropertyRef(voice, "Voice", token); err != nil {
			return false, err
		}
		found = true
		return true, nil
	})
	if err != nil {
		return output.SpeakFailed(Name, p.Voice, err)
	}
	switch {
	case found:
		return nil
	case p.Voice != "":
		return output.VoiceNotFound(p.Voice)
	case language != "":
		return output.LanguageNotFound(language)
	}
	// No default token could be matched; leave SAPI's own choice.
	return nil
}

func (s *Synthesizer) prepare(voice *ole.IDispatch, p output.Params, text string) (string, error) {
	if err := s.selectVoice(voice, p); err != nil {
		return "", err
	}
	if _, err := oleutil.PutProperty(voice, "Rate", rate(p)); err != nil {
		return "", output.SpeakFailed(Name, p.Voice, errors.Wrap(err, "failed to set rate"))
	}
	if _, err := oleutil.PutProperty(voice, "Volume", volume(p)); err != nil {
		return "", output.SpeakFailed(Name, p.Voice, errors.Wrap(err, "failed to set volume"))
	}
	xmlText, err := markup(p, text)
	if err != nil {
		return "", output.Unknown(err)
	}
	return xmlText, nil
}

func (s *Synthesizer) SpeakToAudioOutput(p output.Params, text string, interrupt bool) error {
	xmlText, err := s.prepare(s.playback, p, text)
	if err != nil {
		return err
	}
	flags := flagAsync | flagIsXML | flagParseSAPI
	if interrupt {
		flags |= flagPurgeFirst
	}
	if _, err := oleutil.CallMethod(s.playback, "Speak", xmlText, flags); err != nil {
		return output.SpeakFailed(Name, p.Voice, err)
	}
	return nil
}

func (s *Synthesizer) StopSpeech() error {
	if _, err := oleutil.CallMethod(s.playback, "Speak", "", flagPurgeFirst); err != nil {
		return output.StopSpeechFailed(Name, err)
	}
	return nil
}

// SpeakToAudioData renders into a SpMemoryStream set to 22 kHz 16-bit mono.
func (s *Synthesizer) SpeakToAudioData(p output.Params, text string) (*audio.SpeechResult, error) {
	stream, err := newMemoryStream()
	if err != nil {
		return nil, output.SpeakFailed(Name, p.Voice, err)
	}
	defer stream.Release()

	if _, err := oleutil.PutPropertyRef(s.render, "AudioOutputStream", stream); err != nil {
		return nil, output.SpeakFailed(Name, p.Voice, errors.Wrap(err, "failed to set AudioOutputStream"))
	}
	xmlText, err := s.prepare(s.render, p, text)
	if err != nil {
		return nil, err
	}
	if _, err := oleutil.CallMethod(s.render, "Speak", xmlText, flagIsXML|flagParseSAPI); err != nil {
		return nil, output.SpeakFailed(Name, p.Voice, err)
	}
	data, err := oleutil.CallMethod(stream, "GetData")
	if err != nil {
		return nil, output.SpeakFailed(Name, p.Voice, errors.Wrap(err, "failed to read stream"))
	}
	defer data.Clear()
	return &audio.SpeechResult{
		PCM:          data.ToArray().ToByteArray(),
		SampleFormat: audio.S16,
		SampleRate:   sampleRate,
	}, nil
}

func newMemoryStream() (*ole.IDispatch, error) {
	unknown, err := oleutil.CreateObject("SAPI.SpMemoryStream")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SAPI.SpMemoryStream")
	}
	defer unknown.Release()
	stream, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, errors.Wrap(err, "QueryInterface SpMemoryStream failed")
	}

	formatVar, err := oleutil.GetProperty(stream, "Format")
	if err != nil {
		stream.Release()
		return nil, errors.Wrap(err, "failed to get stream format")
	}
	format := formatVar.ToIDispatch()
	defer format.Release()
	if _, err := oleutil.PutProperty(format, "Type", formatType); err != nil {
		stream.Release()
		return nil, errors.Wrap(err, "failed to set stream format")
	}
	if _, err := oleutil.PutPropertyRef(stream, "Format", format); err != nil {
		stream.Release()
		return nil, errors.Wrap(err, "failed to apply stream format")
	}
	return stream, nil
}
