// Package piper runs the Piper neural speech engine as a subprocess.
package piper

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"murmur/pkg/audio"
	"murmur/pkg/output"
)

// Name is the backend name callers select Piper with.
const Name = "Piper"

const (
	voicePriority     = 2
	defaultSampleRate = 22050
)

// Config locates the binary and the voice model.
type Config struct {
	Binary     string
	Model      string
	SampleRate int
}

// modelConfig is the part of <model>.onnx.json that matters here.
type modelConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
}

// Synthesizer speaks with a single Piper voice model.
type Synthesizer struct {
	binary     string
	model      string
	voice      output.Voice
	sampleRate uint32
	run        func(stdin string, path string, args ...string) ([]byte, error)
}

// Factory registers Piper. It is skipped when no model is configured.
func Factory(cfg Config) output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			s, err := New(cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

func New(cfg Config) (*Synthesizer, error) {
	if cfg.Model == "" {
		return nil, errors.New("no piper model configured")
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, errors.Wrap(err, "piper model not found")
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "piper"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.Wrap(err, "piper executable not found")
	}

	mc, err := readModelConfig(cfg.Model + ".json")
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	return newSynthesizer(path, cfg, mc), nil
}

func newSynthesizer(path string, cfg Config, mc modelConfig) *Synthesizer {
	rate := mc.Audio.SampleRate
	if rate <= 0 {
		rate = cfg.SampleRate
	}
	if rate <= 0 {
		rate = defaultSampleRate
	}

	name := strings.TrimSuffix(filepath.Base(cfg.Model), ".onnx")
	voice := output.Voice{DisplayName: name, Name: name, Languages: []string{}, Priority: voicePriority}
	if code := mc.Language.Code; code != "" {
		voice.Languages = []string{normalizeLanguage(code)}
	}
	return &Synthesizer{
		binary:     path,
		model:      cfg.Model,
		voice:      voice,
		sampleRate: uint32(rate),
		run:        runCommand,
	}
}

func readModelConfig(path string) (modelConfig, error) {
	var mc modelConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return mc, errors.WithStack(err)
	}
	if err := json.Unmarshal(data, &mc); err != nil {
		return mc, errors.Wrapf(err, "failed to parse %s", path)
	}
	return mc, nil
}

func normalizeLanguage(code string) string {
	return strings.ToLower(strings.ReplaceAll(code, "_", "-"))
}

func runCommand(stdin string, path string, args ...string) ([]byte, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (s *Synthesizer) Name() string { return Name }

func (s *Synthesizer) ListVoices() ([]output.Voice, error) {
	return []output.Voice{s.voice}, nil
}

func (s *Synthesizer) SupportsSpeechParameters() bool { return false }

// SpeakToAudioData pipes text through piper and returns its raw output.
func (s *Synthesizer) SpeakToAudioData(p output.Params, text string) (*audio.SpeechResult, error) {
	if p.Voice != "" && p.Voice != s.voice.Name {
		return nil, output.VoiceNotFound(p.Voice)
	}
	pcm, err := s.run(text, s.binary, "--model", s.model, "--output-raw")
	if err != nil {
		return nil, errors.Wrap(err, "piper failed")
	}
	// A trailing odd byte can only be a truncated sample.
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return &audio.SpeechResult{PCM: pcm, SampleFormat: audio.S16, SampleRate: s.sampleRate}, nil
}
