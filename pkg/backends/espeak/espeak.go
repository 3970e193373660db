// Cross-platform eSpeak NG implementation
package espeak

import (
	"bytes"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"murmur/pkg/audio"
	"murmur/pkg/output"
)

// Name is the backend name callers select eSpeak NG with.
const Name = "eSpeak NG"

const (
	minWordsPerMinute = 80
	maxWordsPerMinute = 450
	maxPitch          = 99
	voicePriority     = 3
	defaultVoice      = "en"
)

// runner executes the engine with optional stdin and returns its stdout.
type runner func(stdin string, path string, args ...string) ([]byte, error)

func runCommand(stdin string, path string, args ...string) ([]byte, error) {
	cmd := exec.Command(path, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, errors.Wrap(err, msg)
		}
		return out, err
	}
	return out, nil
}

// Synthesizer drives the espeak-ng (or espeak) executable and returns the
// synthesized audio as PCM.
type Synthesizer struct {
	path string
	run  runner
}

// Factory registers eSpeak NG. An empty path searches PATH.
func Factory(path string) output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			s, err := New(path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// New locates the executable and checks that it runs.
func New(path string) (*Synthesizer, error) {
	espeakPath, err := findExecutable(path)
	if err != nil {
		return nil, err
	}
	s := &Synthesizer{path: espeakPath, run: runCommand}
	if _, err := s.run("", s.path, "--version"); err != nil {
		return nil, errors.Wrap(err, "eSpeak test failed")
	}
	return s, nil
}

func findExecutable(configured string) (string, error) {
	if configured != "" {
		return exec.LookPath(configured)
	}
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("eSpeak executable not found in PATH")
}

func (s *Synthesizer) Name() string { return Name }

func (s *Synthesizer) SupportsSpeechParameters() bool { return true }

// ListVoices returns every installed voice, plus each voice combined with
// every installed variant.
func (s *Synthesizer) ListVoices() ([]output.Voice, error) {
	out, err := s.run("", s.path, "--voices")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list eSpeak voices")
	}
	voices := parseVoices(string(out))

	// Variants are optional; older espeak builds do not list them.
	var variants []voiceLine
	if out, err := s.run("", s.path, "--voices=variant"); err == nil {
		variants = parseVoices(string(out))
	}

	result := make([]output.Voice, 0, len(voices)*(len(variants)+1))
	for _, v := range voices {
		languages := []string{strings.ToLower(v.language)}
		result = append(result, output.Voice{
			DisplayName: v.name,
			Name:        v.language,
			Languages:   languages,
			Priority:    voicePriority,
		})
		for _, variant := range variants {
			result = append(result, output.Voice{
				DisplayName: v.name + " (" + variant.name + ")",
				Name:        v.language + "+" + variant.variantID(),
				Languages:   languages,
				Priority:    voicePriority,
			})
		}
	}
	return result, nil
}

type voiceLine struct {
	language string
	name     string
	file     string
}

func (v voiceLine) variantID() string {
	return strings.TrimPrefix(v.file, "!v/")
}

// parseVoices reads the table printed by --voices:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en          (en 2)
func parseVoices(listing string) []voiceLine {
	lines := strings.Split(listing, "\n")
	voices := make([]voiceLine, 0, len(lines))
	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		voices = append(voices, voiceLine{
			language: fields[1],
			name:     strings.ReplaceAll(fields[3], "_", " "),
			file:     fields[4],
		})
	}
	return voices
}

// SpeakToAudioData synthesizes text into a temporary WAV file and returns
// its samples.
func (s *Synthesizer) SpeakToAudioData(p output.Params, text string) (*audio.SpeechResult, error) {
	dir, err := os.MkdirTemp("", "murmur-espeak-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "speech.wav")
	if _, err := s.run(text, s.path, speakArgs(p, wavPath)...); err != nil {
		return nil, errors.Wrap(err, "espeak failed")
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return nil, errors.Wrap(err, "espeak produced no audio")
	}
	defer f.Close()
	return audio.DecodeWAV(f)
}

func speakArgs(p output.Params, wavPath string) []string {
	voice := p.Voice
	if voice == "" {
		voice = p.Language
	}
	if voice == "" {
		voice = defaultVoice
	}
	pitch := p.PitchOrDefault()
	if pitch > maxPitch {
		pitch = maxPitch
	}
	return []string{
		"-v", voice,
		"-s", strconv.Itoa(wordsPerMinute(p.RateOrDefault())),
		"-a", strconv.Itoa(int(p.VolumeOrDefault()) * 2),
		"-p", strconv.Itoa(int(pitch)),
		"-w", wavPath,
		"--stdin",
	}
}

func wordsPerMinute(rate uint8) int {
	return int(math.Round(output.Scale(rate, minWordsPerMinute, maxWordsPerMinute)))
}
