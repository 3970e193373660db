package output

// SpeechSynthesizerMetadata describes a backend that can speak. It is derived
// from the capability interfaces the backend implements.
type SpeechSynthesizerMetadata struct {
	Name                        string `json:"name"`
	SupportsSpeakingToAudioData bool   `json:"supports_speaking_to_audio_data"`
	SupportsSpeechParameters    bool   `json:"supports_speech_parameters"`
}

// BrailleBackendMetadata describes a backend that can drive a Braille display.
// Lower priority values are preferred.
type BrailleBackendMetadata struct {
	Name     string `json:"name"`
	Priority uint8  `json:"priority"`
}

// Voice is a backend-scoped speech persona. Name must be passed back to the
// same backend verbatim to select the voice again. An empty Languages list
// matches any language.
type Voice struct {
	Synthesizer SpeechSynthesizerMetadata `json:"synthesizer"`
	DisplayName string                    `json:"display_name"`
	Name        string                    `json:"name"`
	Languages   []string                  `json:"languages"`
	Priority    uint8                     `json:"priority"`
}

const (
	DefaultRate   uint8 = 50
	DefaultVolume uint8 = 100
	DefaultPitch  uint8 = 50
	maxParameter  uint8 = 100
)

// Params is what a backend receives for one utterance. Empty strings and nil
// pointers mean the caller left the value to the backend.
type Params struct {
	Voice    string
	Language string
	Rate     *uint8
	Volume   *uint8
	Pitch    *uint8
}

// RateOrDefault returns the requested rate or DefaultRate.
func (p Params) RateOrDefault() uint8 { return valueOr(p.Rate, DefaultRate) }

// VolumeOrDefault returns the requested volume or DefaultVolume.
func (p Params) VolumeOrDefault() uint8 { return valueOr(p.Volume, DefaultVolume) }

// PitchOrDefault returns the requested pitch or DefaultPitch.
func (p Params) PitchOrDefault() uint8 { return valueOr(p.Pitch, DefaultPitch) }

func valueOr(v *uint8, def uint8) uint8 {
	if v == nil {
		return def
	}
	return *v
}

// Scale maps a 0..100 parameter linearly onto [lo, hi].
func Scale(v uint8, lo, hi float64) float64 {
	return lo + float64(v)/float64(maxParameter)*(hi-lo)
}

// Level returns a pointer to v, for filling the optional parameters of
// Speech and Params.
func Level(v uint8) *uint8 {
	return &v
}
