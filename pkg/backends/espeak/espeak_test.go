package espeak

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/pkg/audio"
	"murmur/pkg/output"
)

const voicesListing = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 2  en-gb           --/M      English_(Great_Britain) gmw/en          (en 2)
 5  en-US           --/M      English_(America)  gmw/en-US            (en 3)

`

const variantsListing = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 0  variant         --/M      Alan               !v/alan
 0  variant         --/F      f1                 !v/f1
`

func TestParseVoices(t *testing.T) {
	voices := parseVoices(voicesListing)
	require.Len(t, voices, 3)
	assert.Equal(t, voiceLine{language: "af", name: "Afrikaans", file: "gmw/af"}, voices[0])
	assert.Equal(t, voiceLine{language: "en-gb", name: "English (Great Britain)", file: "gmw/en"}, voices[1])
	assert.Equal(t, "alan", parseVoices(variantsListing)[0].variantID())
}

func TestListVoices_CombinesVariants(t *testing.T) {
	s := &Synthesizer{path: "espeak-ng", run: func(stdin, path string, args ...string) ([]byte, error) {
		if len(args) == 1 && args[0] == "--voices=variant" {
			return []byte(variantsListing), nil
		}
		return []byte(voicesListing), nil
	}}

	voices, err := s.ListVoices()
	require.NoError(t, err)
	require.Len(t, voices, 9)

	assert.Equal(t, output.Voice{DisplayName: "Afrikaans", Name: "af", Languages: []string{"af"}, Priority: 3}, voices[0])
	assert.Equal(t, output.Voice{DisplayName: "Afrikaans (Alan)", Name: "af+alan", Languages: []string{"af"}, Priority: 3}, voices[1])
	assert.Equal(t, "af+f1", voices[2].Name)
	assert.Equal(t, []string{"en-us"}, voices[6].Languages)
}

func TestListVoices_WithoutVariants(t *testing.T) {
	s := &Synthesizer{path: "espeak", run: func(stdin, path string, args ...string) ([]byte, error) {
		if args[0] == "--voices=variant" {
			return nil, errors.New("unknown option")
		}
		return []byte(voicesListing), nil
	}}
	voices, err := s.ListVoices()
	require.NoError(t, err)
	assert.Len(t, voices, 3)
}

func TestSpeakArgs(t *testing.T) {
	tests := []struct {
		name   string
		params output.Params
		want   []string
	}{
		{"defaults", output.Params{}, []string{"-v", "en", "-s", "265", "-a", "200", "-p", "50"}},
		{"voice wins over language", output.Params{Voice: "en-gb+alan", Language: "fr"}, []string{"-v", "en-gb+alan", "-s", "265", "-a", "200", "-p", "50"}},
		{"language", output.Params{Language: "fr"}, []string{"-v", "fr", "-s", "265", "-a", "200", "-p", "50"}},
		{"minimums", output.Params{Rate: output.Level(0), Volume: output.Level(0), Pitch: output.Level(0)}, []string{"-v", "en", "-s", "80", "-a", "0", "-p", "0"}},
		{"maximums", output.Params{Rate: output.Level(100), Volume: output.Level(100), Pitch: output.Level(100)}, []string{"-v", "en", "-s", "450", "-a", "200", "-p", "99"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := append(tt.want, "-w", "out.wav", "--stdin")
			assert.Equal(t, want, speakArgs(tt.params, "out.wav"))
		})
	}
}

func TestSpeakToAudioData_DecodesEngineOutput(t *testing.T) {
	var gotText string
	s := &Synthesizer{path: "espeak-ng", run: func(stdin, path string, args ...string) ([]byte, error) {
		gotText = stdin
		wavPath := args[len(args)-2]
		f, err := os.Create(wavPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return nil, audio.EncodeWAV(f, &audio.SpeechResult{PCM: make([]byte, 200), SampleFormat: audio.S16, SampleRate: 22050})
	}}

	res, err := s.SpeakToAudioData(output.Params{}, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", gotText)
	assert.Equal(t, uint32(22050), res.SampleRate)
	assert.Equal(t, audio.S16, res.SampleFormat)
	assert.Len(t, res.PCM, 200)
}

func TestSpeakToAudioData_EngineFailure(t *testing.T) {
	s := &Synthesizer{path: "espeak-ng", run: func(stdin, path string, args ...string) ([]byte, error) {
		return nil, errors.New("Failed to read voice 'xx'")
	}}
	_, err := s.SpeakToAudioData(output.Params{Voice: "xx"}, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read voice")
}
