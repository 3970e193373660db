package config

import (
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"murmur/pkg/backends"
	"murmur/pkg/backends/google"
	"murmur/pkg/backends/piper"
	"murmur/pkg/output"
)

// Config is the CLI configuration. Speech parameters left unset fall through
// to each backend's defaults.
type Config struct {
	Speech   SpeechConfig   `mapstructure:"speech"`
	Braille  BrailleConfig  `mapstructure:"braille"`
	Backends BackendsConfig `mapstructure:"backends"`
	Log      LogConfig      `mapstructure:"log"`
}

type SpeechConfig struct {
	Backend  string `mapstructure:"backend"`
	Voice    string `mapstructure:"voice"`
	Language string `mapstructure:"language"`
	Rate     *int   `mapstructure:"rate"`
	Volume   *int   `mapstructure:"volume"`
	Pitch    *int   `mapstructure:"pitch"`
}

type BrailleConfig struct {
	Backend string `mapstructure:"backend"`
	Console bool   `mapstructure:"console"`
}

type BackendsConfig struct {
	ESpeak struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"espeak"`
	Piper struct {
		Binary     string `mapstructure:"binary"`
		Model      string `mapstructure:"model"`
		SampleRate int    `mapstructure:"sample_rate"`
	} `mapstructure:"piper"`
	Google struct {
		Enabled         string `mapstructure:"enabled"`
		CredentialsFile string `mapstructure:"credentials_file"`
		CacheDir        string `mapstructure:"cache_dir"`
	} `mapstructure:"google"`
	Speechd struct {
		Socket string `mapstructure:"socket"`
	} `mapstructure:"speechd"`
	NVDA struct {
		Library string `mapstructure:"library"`
	} `mapstructure:"nvda"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// keys without a default still need binding so MURMUR_* variables reach them.
var envKeys = []string{
	"speech.backend", "speech.voice", "speech.language",
	"speech.rate", "speech.volume", "speech.pitch",
	"braille.backend",
	"backends.espeak.path", "backends.piper.binary", "backends.piper.model",
	"backends.google.credentials_file", "backends.google.cache_dir",
	"backends.speechd.socket", "backends.nvda.library",
}

// New returns a viper instance with the search paths, environment binding and
// defaults in place.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("murmur")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.murmur")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MURMUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("braille.console", false)
	v.SetDefault("backends.piper.binary", "piper")
	v.SetDefault("backends.piper.sample_rate", 22050)
	v.SetDefault("backends.google.enabled", "auto") // only with credentials
	v.SetDefault("log.level", "warning")
}

// Load reads .env and the config file if present and decodes the result.
func Load(v *viper.Viper) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "failed to load .env")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "failed to read config")
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	return cfg, nil
}

// LogLevel parses the configured level, falling back to warning.
func (c Config) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}

// SpeechRequest returns the configured speech request. Values that cannot be a
// parameter at all are rejected here; the facade checks the 0..100 range.
func (c Config) SpeechRequest() (output.Speech, error) {
	rate, err := level("speech.rate", c.Speech.Rate)
	if err != nil {
		return output.Speech{}, err
	}
	volume, err := level("speech.volume", c.Speech.Volume)
	if err != nil {
		return output.Speech{}, err
	}
	pitch, err := level("speech.pitch", c.Speech.Pitch)
	if err != nil {
		return output.Speech{}, err
	}
	return output.Speech{
		Backend:  c.Speech.Backend,
		Voice:    c.Speech.Voice,
		Language: c.Speech.Language,
		Rate:     rate,
		Volume:   volume,
		Pitch:    pitch,
	}, nil
}

func level(key string, v *int) (*uint8, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 || *v > 255 {
		return nil, errors.Errorf("%s (%d) is not between 0 and 255", key, *v)
	}
	return output.Level(uint8(*v)), nil
}

// BackendConfig maps the backends section onto the adapter configuration.
// console receives Braille output when braille.console is set.
func (c Config) BackendConfig(console io.Writer) backends.Config {
	cfg := backends.Config{
		ESpeakPath: c.Backends.ESpeak.Path,
		Piper: piper.Config{
			Binary:     c.Backends.Piper.Binary,
			Model:      c.Backends.Piper.Model,
			SampleRate: c.Backends.Piper.SampleRate,
		},
		Google: google.Config{
			Enabled:         c.Backends.Google.Enabled,
			CredentialsFile: c.Backends.Google.CredentialsFile,
			CacheDir:        c.Backends.Google.CacheDir,
		},
		SpeechdSocket: c.Backends.Speechd.Socket,
		NVDALibrary:   c.Backends.NVDA.Library,
	}
	if c.Braille.Console {
		cfg.Console = console
	}
	return cfg
}
