package output

import (
	"errors"
	"fmt"
)

// Kind classifies every error returned by the facade.
type Kind int

const (
	KindNone Kind = iota
	KindBackendNotFound
	KindAudioDataNotSupported
	KindSpeechNotSupported
	KindBrailleNotSupported
	KindVoiceNotFound
	KindLanguageNotFound
	KindNoVoices
	KindNoBrailleBackends
	KindNoBackends
	KindInvalidRate
	KindInvalidVolume
	KindInvalidPitch
	KindSpeakFailed
	KindStopSpeechFailed
	KindBrailleFailed
	KindInitializeFailed
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNone:                  "None",
	KindBackendNotFound:       "BackendNotFound",
	KindAudioDataNotSupported: "AudioDataNotSupported",
	KindSpeechNotSupported:    "SpeechNotSupported",
	KindBrailleNotSupported:   "BrailleNotSupported",
	KindVoiceNotFound:         "VoiceNotFound",
	KindLanguageNotFound:      "LanguageNotFound",
	KindNoVoices:              "NoVoices",
	KindNoBrailleBackends:     "NoBrailleBackends",
	KindNoBackends:            "NoBackends",
	KindInvalidRate:           "InvalidRate",
	KindInvalidVolume:         "InvalidVolume",
	KindInvalidPitch:          "InvalidPitch",
	KindSpeakFailed:           "SpeakFailed",
	KindStopSpeechFailed:      "StopSpeechFailed",
	KindBrailleFailed:         "BrailleFailed",
	KindInitializeFailed:      "InitializeFailed",
	KindUnknown:               "Unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single error type returned by the facade. Only the fields
// relevant to Kind are set.
type Error struct {
	Kind     Kind
	Backend  string
	Voice    string
	Language string
	Value    uint8
	Cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBackendNotFound:
		return fmt.Sprintf("No backend has been registered with the name %s", e.Backend)
	case KindAudioDataNotSupported:
		return fmt.Sprintf("The backend %s does not support returning audio data", e.Backend)
	case KindSpeechNotSupported:
		return fmt.Sprintf("The backend %s does not support speech", e.Backend)
	case KindBrailleNotSupported:
		return fmt.Sprintf("The backend %s does not support Braille", e.Backend)
	case KindVoiceNotFound:
		return fmt.Sprintf("No voice was found with the name %s", e.Voice)
	case KindLanguageNotFound:
		return fmt.Sprintf("No voice was found with the language %s", e.Language)
	case KindNoVoices:
		return "No voices were found"
	case KindNoBrailleBackends:
		return "No Braille backends were found"
	case KindNoBackends:
		return "No output backends were found"
	case KindInvalidRate:
		return fmt.Sprintf("Speech rate (%d) is not between 0 and 100", e.Value)
	case KindInvalidVolume:
		return fmt.Sprintf("Speech volume (%d) is not between 0 and 100", e.Value)
	case KindInvalidPitch:
		return fmt.Sprintf("Speech pitch (%d) is not between 0 and 100", e.Value)
	case KindSpeakFailed:
		voice := e.Voice
		if voice == "" {
			voice = "(default)"
		}
		return fmt.Sprintf("Failed to speak with the requested backend %s and voice %s: %v", e.Backend, voice, e.Cause)
	case KindStopSpeechFailed:
		return fmt.Sprintf("Failed to stop the requested backend %s from speaking: %v", e.Backend, e.Cause)
	case KindBrailleFailed:
		return fmt.Sprintf("Failed to Braille message with the requested backend %s: %v", e.Backend, e.Cause)
	case KindInitializeFailed:
		return fmt.Sprintf("Failed to initialize: %v", e.Cause)
	default:
		return fmt.Sprintf("Unknown error: %v", e.Cause)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so the sentinel
// values below match any error of their kind regardless of payload.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrBackendNotFound       = &Error{Kind: KindBackendNotFound}
	ErrAudioDataNotSupported = &Error{Kind: KindAudioDataNotSupported}
	ErrSpeechNotSupported    = &Error{Kind: KindSpeechNotSupported}
	ErrBrailleNotSupported   = &Error{Kind: KindBrailleNotSupported}
	ErrVoiceNotFound         = &Error{Kind: KindVoiceNotFound}
	ErrLanguageNotFound      = &Error{Kind: KindLanguageNotFound}
	ErrNoVoices              = &Error{Kind: KindNoVoices}
	ErrNoBrailleBackends     = &Error{Kind: KindNoBrailleBackends}
	ErrNoBackends            = &Error{Kind: KindNoBackends}
	ErrInvalidRate           = &Error{Kind: KindInvalidRate}
	ErrInvalidVolume         = &Error{Kind: KindInvalidVolume}
	ErrInvalidPitch          = &Error{Kind: KindInvalidPitch}
	ErrSpeakFailed           = &Error{Kind: KindSpeakFailed}
	ErrStopSpeechFailed      = &Error{Kind: KindStopSpeechFailed}
	ErrBrailleFailed         = &Error{Kind: KindBrailleFailed}
	ErrInitializeFailed      = &Error{Kind: KindInitializeFailed}
	ErrUnknown               = &Error{Kind: KindUnknown}
)

// KindOf classifies err. A nil error is KindNone and an error outside the
// taxonomy is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Code maps err to the fixed numeric code used across the C boundary.
func Code(err error) int {
	return int(KindOf(err))
}

func BackendNotFound(backend string) error {
	return &Error{Kind: KindBackendNotFound, Backend: backend}
}

func AudioDataNotSupported(backend string) error {
	return &Error{Kind: KindAudioDataNotSupported, Backend: backend}
}

func SpeechNotSupported(backend string) error {
	return &Error{Kind: KindSpeechNotSupported, Backend: backend}
}

func BrailleNotSupported(backend string) error {
	return &Error{Kind: KindBrailleNotSupported, Backend: backend}
}

func VoiceNotFound(voice string) error {
	return &Error{Kind: KindVoiceNotFound, Voice: voice}
}

func LanguageNotFound(language string) error {
	return &Error{Kind: KindLanguageNotFound, Language: language}
}

func InvalidRate(v uint8) error   { return &Error{Kind: KindInvalidRate, Value: v} }
func InvalidVolume(v uint8) error { return &Error{Kind: KindInvalidVolume, Value: v} }
func InvalidPitch(v uint8) error  { return &Error{Kind: KindInvalidPitch, Value: v} }

// SpeakFailed reports a backend failure while speaking. A cause that is
// already part of the taxonomy is returned unchanged.
func SpeakFailed(backend, voice string, cause error) error {
	if isTaxonomy(cause) {
		return cause
	}
	return &Error{Kind: KindSpeakFailed, Backend: backend, Voice: voice, Cause: cause}
}

func StopSpeechFailed(backend string, cause error) error {
	if isTaxonomy(cause) {
		return cause
	}
	return &Error{Kind: KindStopSpeechFailed, Backend: backend, Cause: cause}
}

func BrailleFailed(backend string, cause error) error {
	if isTaxonomy(cause) {
		return cause
	}
	return &Error{Kind: KindBrailleFailed, Backend: backend, Cause: cause}
}

func InitializeFailed(cause error) error {
	return &Error{Kind: KindInitializeFailed, Cause: cause}
}

func Unknown(cause error) error {
	return &Error{Kind: KindUnknown, Cause: cause}
}

func isTaxonomy(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
