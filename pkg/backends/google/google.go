// Package google synthesizes speech with Google Cloud Text-to-Speech.
package google

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"murmur/pkg/audio"
	"murmur/pkg/output"
)

// Name is the backend name callers select Google Cloud with.
const Name = "Google Cloud"

const (
	voicePriority   = 2
	chunkLimit      = 4800 // a little under the 5000 byte request limit
	requestTimeout  = 30 * time.Second
	defaultLanguage = "en-US"
	minGainDb       = -96.0
	maxPitchSemis   = 20.0
)

// Config controls whether and how the backend is created.
type Config struct {
	// Enabled is "auto" (only with credentials), "true" or "false".
	Enabled         string
	CredentialsFile string
	// CacheDir keeps synthesized audio on disk when set.
	CacheDir string
}

type client interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// Synthesizer returns LINEAR16 audio from the Cloud API.
type Synthesizer struct {
	client   client
	cacheDir string
	log      logrus.FieldLogger
}

// Factory registers Google Cloud Text-to-Speech.
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
	switch strings.ToLower(cfg.Enabled) {
	case "false":
		return nil, errors.New("google cloud speech disabled")
	case "", "auto":
		if cfg.CredentialsFile == "" && !hasGoogleCredentials() {
			return nil, errors.New("no google cloud credentials")
		}
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := texttospeech.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create TTS client")
	}
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "failed to create cache dir %s", cfg.CacheDir)
		}
	}
	return &Synthesizer{client: c, cacheDir: cfg.CacheDir, log: logrus.WithField("backend", Name)}, nil
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

func (s *Synthesizer) Name() string { return Name }

func (s *Synthesizer) SupportsSpeechParameters() bool { return true }

func (s *Synthesizer) Close() error {
	return s.client.Close()
}

func (s *Synthesizer) ListVoices() ([]output.Voice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := s.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list voices")
	}
	voices := make([]output.Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		languages := make([]string, 0, len(v.GetLanguageCodes()))
		for _, code := range v.GetLanguageCodes() {
			languages = append(languages, strings.ToLower(code))
		}
		display := v.GetName()
		if g := v.GetSsmlGender(); g != texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED {
			display = fmt.Sprintf("%s (%s)", display, strings.ToLower(g.String()))
		}
		voices = append(voices, output.Voice{
			DisplayName: display,
			Name:        v.GetName(),
			Languages:   languages,
			Priority:    voicePriority,
		})
	}
	return voices, nil
}

// SpeakToAudioData synthesizes text in chunks and concatenates the PCM.
func (s *Synthesizer) SpeakToAudioData(p output.Params, text string) (*audio.SpeechResult, error) {
	selection := voiceSelection(p)
	cfg := audioConfig(p)

	result := &audio.SpeechResult{SampleFormat: audio.S16}
	for i, chunk := range splitIntoChunks(text, chunkLimit) {
		res, err := s.synthesizeChunk(selection, cfg, chunk)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to synthesize chunk %d", i)
		}
		if result.SampleRate == 0 {
			result.SampleRate = res.SampleRate
		} else if res.SampleRate != result.SampleRate {
			return nil, errors.Errorf("chunk %d sample rate %d differs from %d", i, res.SampleRate, result.SampleRate)
		}
		result.PCM = append(result.PCM, res.PCM...)
	}
	if result.SampleRate == 0 {
		return nil, errors.New("no audio returned")
	}
	return result, nil
}

func (s *Synthesizer) synthesizeChunk(selection *texttospeechpb.VoiceSelectionParams, cfg *texttospeechpb.AudioConfig, chunk string) (*audio.SpeechResult, error) {
	cachePath := s.cachePath(selection, cfg, chunk)
	if cachePath != "" {
		if f, err := os.Open(cachePath); err == nil {
			defer f.Close()
			s.log.WithField("path", cachePath).Debug("Using cached audio")
			return audio.DecodeWAV(f)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input:       &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk}},
		Voice:       selection,
		AudioConfig: cfg,
	})
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := os.WriteFile(cachePath, resp.GetAudioContent(), 0o644); err != nil {
			s.log.WithError(err).WithField("path", cachePath).Warn("Failed to cache audio")
		}
	}
	// LINEAR16 responses carry a WAV header.
	return audio.DecodeWAV(bytes.NewReader(resp.GetAudioContent()))
}

func (s *Synthesizer) cachePath(selection *texttospeechpb.VoiceSelectionParams, cfg *texttospeechpb.AudioConfig, chunk string) string {
	if s.cacheDir == "" {
		return ""
	}
	key := fmt.Sprintf("%s|%s|%.3f|%.3f|%.3f|%s",
		selection.GetName(), selection.GetLanguageCode(),
		cfg.GetSpeakingRate(), cfg.GetPitch(), cfg.GetVolumeGainDb(), chunk)
	return filepath.Join(s.cacheDir, md5Sum(key)+".wav")
}

func voiceSelection(p output.Params) *texttospeechpb.VoiceSelectionParams {
	sel := &texttospeechpb.VoiceSelectionParams{LanguageCode: p.Language}
	if p.Voice != "" {
		sel.Name = p.Voice
		if sel.LanguageCode == "" {
			sel.LanguageCode = languageOfVoice(p.Voice)
		}
	}
	if sel.LanguageCode == "" {
		sel.LanguageCode = defaultLanguage
	}
	return sel
}

// languageOfVoice extracts "en-GB" from names like "en-GB-Neural2-A".
func languageOfVoice(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}

func audioConfig(p output.Params) *texttospeechpb.AudioConfig {
	return &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16,
		SpeakingRate:  speakingRate(p.RateOrDefault()),
		Pitch:         output.Scale(p.PitchOrDefault(), -maxPitchSemis, maxPitchSemis),
		VolumeGainDb:  volumeGain(p.VolumeOrDefault()),
	}
}

// speakingRate maps 0, 50 and 100 to 0.25, 1 and 4 on a log scale.
func speakingRate(rate uint8) float64 {
	return math.Pow(4, (float64(rate)-50)/50)
}

func volumeGain(volume uint8) float64 {
	if volume == 0 {
		return minGainDb
	}
	return math.Max(minGainDb, 20*math.Log10(float64(volume)/100))
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// splitIntoChunks cuts text into pieces of at most limit bytes, breaking
// after whitespace where possible and never inside a UTF-8 sequence.
func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(text)
		}
		if i := strings.LastIndexFunc(text[:cut], unicode.IsSpace); i > 0 {
			_, size := utf8.DecodeRuneInString(text[i:])
			cut = i + size
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
