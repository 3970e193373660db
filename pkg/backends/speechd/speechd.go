// Package speechd speaks through Speech Dispatcher over its SSIP socket.
package speechd

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"murmur/pkg/output"
)

// Name is the backend name callers select Speech Dispatcher with.
const Name = "Speech Dispatcher"

const (
	voicePriority = 1
	dialTimeout   = 2 * time.Second
	clientName    = "murmur"
)

// Client holds one SSIP session. Speech Dispatcher applies settings to the
// session, so every utterance sets module, voice and parameters first.
type Client struct {
	conn            *conn
	defaultModule   string
	defaultLanguage string
	log             logrus.FieldLogger
}

// Factory registers Speech Dispatcher. An empty socket uses the per-user
// default.
func Factory(socket string) output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			c, err := New(socket)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func New(socket string) (*Client, error) {
	if socket == "" {
		socket = socketPath(os.Getenv)
	}
	nc, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", socket)
	}
	c, err := newClient(nc, logrus.WithField("backend", Name))
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// socketPath follows the lookup order of the reference client library.
func socketPath(getenv func(string) string) string {
	if addr := getenv("SPEECHD_ADDRESS"); strings.HasPrefix(addr, "unix_socket:") {
		return strings.TrimPrefix(addr, "unix_socket:")
	}
	if dir := getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "speech-dispatcher", "speechd.sock")
	}
	return filepath.Join(getenv("HOME"), ".cache", "speech-dispatcher", "speechd.sock")
}

func newClient(nc net.Conn, log logrus.FieldLogger) (*Client, error) {
	c := &Client{conn: newConn(nc), log: log}
	user := os.Getenv("USER")
	if user == "" {
		user = "user"
	}
	if _, err := c.conn.command(codeClientNameSet, "SET self CLIENT_NAME %s:%s:main", user, clientName); err != nil {
		return nil, errors.Wrap(err, "failed to set client name")
	}
	module, err := c.get("OUTPUT_MODULE")
	if err != nil {
		return nil, err
	}
	language, err := c.get("LANGUAGE")
	if err != nil {
		return nil, err
	}
	c.defaultModule, c.defaultLanguage = module, language
	return c, nil
}

func (c *Client) get(setting string) (string, error) {
	data, err := c.conn.command(codeGet, "GET %s", setting)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get %s", strings.ToLower(setting))
	}
	if len(data) == 0 {
		return "", errors.Errorf("empty %s", strings.ToLower(setting))
	}
	return data[0], nil
}

func (c *Client) Name() string { return Name }

func (c *Client) SupportsSpeechParameters() bool { return true }

// ListVoices lists the voices of every output module as "module/voice".
// Modules that fail to report voices are skipped.
func (c *Client) ListVoices() ([]output.Voice, error) {
	modules, err := c.conn.command(codeModulesSent, "LIST OUTPUT_MODULES")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list output modules")
	}
	voices := []output.Voice{}
	for _, module := range modules {
		lines, err := c.moduleVoices(module)
		if err != nil {
			c.log.WithError(err).WithField("module", module).Debug("Skipping output module")
			continue
		}
		voices = append(voices, parseVoices(module, lines)...)
	}
	return voices, nil
}

func (c *Client) moduleVoices(module string) ([]string, error) {
	if _, err := c.conn.command(codeOutputModuleSet, "SET self OUTPUT_MODULE %s", module); err != nil {
		return nil, err
	}
	return c.conn.command(codeVoicesSent, "LIST SYNTHESIS_VOICES")
}

// parseVoices reads "name<TAB>language<TAB>variant" lines.
func parseVoices(module string, lines []string) []output.Voice {
	voices := make([]output.Voice, 0, len(lines))
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		name := strings.TrimSpace(fields[0])
		if name == "" {
			continue
		}
		languages := []string{}
		if len(fields) > 1 {
			if l := strings.TrimSpace(fields[1]); l != "" && l != "none" {
				languages = append(languages, strings.ToLower(strings.ReplaceAll(l, "_", "-")))
			}
		}
		voices = append(voices, output.Voice{
			DisplayName: name + " (" + module + ")",
			Name:        module + "/" + name,
			Languages:   languages,
			Priority:    voicePriority,
		})
	}
	return voices
}

// ssipLevel maps 0..100 onto SSIP's -100..100.
func ssipLevel(v uint8) int {
	return int(v)*2 - 100
}

func (c *Client) resolveVoice(p output.Params) (string, error) {
	if p.Voice != "" || p.Language == "" {
		return p.Voice, nil
	}
	voices, err := c.ListVoices()
	if err != nil {
		return "", output.SpeakFailed(Name, p.Voice, err)
	}
	language := strings.ToLower(p.Language)
	for _, v := range voices {
		for _, l := range v.Languages {
			if l == language {
				return v.Name, nil
			}
		}
	}
	return "", output.LanguageNotFound(p.Language)
}

func (c *Client) applyVoice(voice string) error {
	if voice == "" {
		if _, err := c.conn.command(codeOutputModuleSet, "SET self OUTPUT_MODULE %s", c.defaultModule); err != nil {
			return output.SpeakFailed(Name, c.defaultModule, err)
		}
		if _, err := c.conn.command(codeLanguageSet, "SET self LANGUAGE %s", c.defaultLanguage); err != nil {
			return output.SpeakFailed(Name, c.defaultModule, err)
		}
		return nil
	}
	module, name, ok := strings.Cut(voice, "/")
	if !ok || module == "" || name == "" {
		return output.VoiceNotFound(voice)
	}
	if _, err := c.conn.command(codeOutputModuleSet, "SET self OUTPUT_MODULE %s", module); err != nil {
		return output.SpeakFailed(Name, voice, err)
	}
	if _, err := c.conn.command(codeVoiceSet, "SET self SYNTHESIS_VOICE %s", name); err != nil {
		return output.SpeakFailed(Name, voice, err)
	}
	return nil
}

func (c *Client) SpeakToAudioOutput(p output.Params, text string, interrupt bool) error {
	voice, err := c.resolveVoice(p)
	if err != nil {
		return err
	}
	if err := c.applyVoice(voice); err != nil {
		return err
	}
	settings := []struct {
		code  int
		name  string
		value uint8
	}{
		{codeRateSet, "RATE", p.RateOrDefault()},
		{codePitchSet, "PITCH", p.PitchOrDefault()},
		{codeVolumeSet, "VOLUME", p.VolumeOrDefault()},
	}
	for _, s := range settings {
		if _, err := c.conn.command(s.code, "SET self %s %d", s.name, ssipLevel(s.value)); err != nil {
			return output.SpeakFailed(Name, voice, err)
		}
	}
	if interrupt {
		if err := c.cancel(); err != nil {
			return err
		}
	}
	if err := c.conn.speak(text); err != nil {
		return output.SpeakFailed(Name, voice, err)
	}
	return nil
}

func (c *Client) StopSpeech() error {
	return c.cancel()
}

func (c *Client) cancel() error {
	if _, err := c.conn.command(codeCanceled, "CANCEL self"); err != nil {
		return output.StopSpeechFailed(Name, err)
	}
	return nil
}

func (c *Client) Close() error {
	if _, err := c.conn.command(codeBye, "QUIT"); err != nil {
		c.log.WithError(err).Debug("QUIT failed")
	}
	return c.conn.Close()
}
