// Package say drives the macOS speech synthesizer through the say command.
package say

import (
	"fmt"
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

// Name is the backend name callers select the macOS synthesizer with.
const Name = "macOS Speech"

const (
	voicePriority     = 3
	sampleRate        = 22050
	minWordsPerMinute = 90
	maxWordsPerMinute = 720
)

// Synthesizer speaks through say and can also render to a WAV file.
type Synthesizer struct {
	path   string
	list   func() ([]byte, error)
	render func(args []string) error
	queue  *playQueue
}

// Factory registers the macOS synthesizer.
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

func New() (*Synthesizer, error) {
	path, err := exec.LookPath("say")
	if err != nil {
		return nil, errors.Wrap(err, "say not found")
	}
	s := &Synthesizer{
		path: path,
		list: func() ([]byte, error) {
			return exec.Command(path, "-v", "?").Output()
		},
		render: func(args []string) error {
			out, err := exec.Command(path, args...).CombinedOutput()
			if err != nil {
				return errors.Wrap(err, strings.TrimSpace(string(out)))
			}
			return nil
		},
		queue: newPlayQueue(path),
	}
	return s, nil
}

func (s *Synthesizer) Name() string { return Name }

func (s *Synthesizer) SupportsSpeechParameters() bool { return true }

func (s *Synthesizer) ListVoices() ([]output.Voice, error) {
	out, err := s.list()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list voices")
	}
	return parseVoices(string(out)), nil
}

// parseVoices reads lines printed by say -v '?':
//
//	Alex                en_US    # Most people recognize me by my voice.
//	Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
func parseVoices(listing string) []output.Voice {
	voices := []output.Voice{}
	for _, line := range strings.Split(listing, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cut := strings.LastIndexAny(line, " \t")
		if cut < 0 {
			continue
		}
		name := strings.TrimSpace(line[:cut])
		locale := strings.ToLower(strings.ReplaceAll(line[cut+1:], "_", "-"))
		voices = append(voices, output.Voice{
			DisplayName: name,
			Name:        name,
			Languages:   []string{locale},
			Priority:    voicePriority,
		})
	}
	return voices
}

// voiceArgs resolves the voice flag. A language without a voice picks the
// first installed voice for that language.
func (s *Synthesizer) voiceArgs(p output.Params) ([]string, error) {
	if p.Voice != "" {
		return []string{"-v", p.Voice}, nil
	}
	if p.Language == "" {
		return nil, nil
	}
	voices, err := s.ListVoices()
	if err != nil {
		return nil, err
	}
	language := strings.ToLower(p.Language)
	for _, v := range voices {
		for _, l := range v.Languages {
			if l == language {
				return []string{"-v", v.Name}, nil
			}
		}
	}
	return nil, output.LanguageNotFound(p.Language)
}

func speechArgs(p output.Params) []string {
	wpm := math.Round(output.Scale(p.RateOrDefault(), minWordsPerMinute, maxWordsPerMinute))
	return []string{"-r", strconv.Itoa(int(wpm))}
}

// embedVolume prefixes text with the embedded volume command say understands.
func embedVolume(p output.Params, text string) string {
	volume := p.VolumeOrDefault()
	if volume == output.DefaultVolume {
		return text
	}
	return fmt.Sprintf("[[volm %.2f]] %s", float64(volume)/100, text)
}

func (s *Synthesizer) buildArgs(p output.Params, text string, extra ...string) ([]string, error) {
	voice, err := s.voiceArgs(p)
	if err != nil {
		return nil, err
	}
	args := append(voice, speechArgs(p)...)
	args = append(args, extra...)
	text = embedVolume(p, text)
	if strings.HasPrefix(text, "-") {
		text = " " + text
	}
	return append(args, text), nil
}

// SpeakToAudioOutput queues the utterance, or replaces whatever is playing
// when interrupt is set.
func (s *Synthesizer) SpeakToAudioOutput(p output.Params, text string, interrupt bool) error {
	args, err := s.buildArgs(p, text)
	if err != nil {
		return err
	}
	return s.queue.play(args, interrupt)
}

func (s *Synthesizer) StopSpeech() error {
	return s.queue.stop()
}

// SpeakToAudioData renders to a 16-bit WAV file and returns its samples.
func (s *Synthesizer) SpeakToAudioData(p output.Params, text string) (*audio.SpeechResult, error) {
	dir, err := os.MkdirTemp("", "murmur-say-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "speech.wav")
	args, err := s.buildArgs(p, text, "-o", wavPath, fmt.Sprintf("--data-format=LEI16@%d", sampleRate))
	if err != nil {
		return nil, err
	}
	if err := s.render(args); err != nil {
		return nil, errors.Wrap(err, "say failed")
	}
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, errors.Wrap(err, "say produced no audio")
	}
	defer f.Close()
	return audio.DecodeWAV(f)
}

func (s *Synthesizer) Close() error {
	err := s.queue.stop()
	s.queue.wait()
	return err
}
