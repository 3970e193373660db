// Package backends assembles the engine adapters available on the running
// platform into the factory list the output facade registers.
package backends

import (
	"io"
	"strings"

	"murmur/pkg/backends/console"
	"murmur/pkg/backends/espeak"
	"murmur/pkg/backends/google"
	"murmur/pkg/backends/piper"
	"murmur/pkg/output"
)

// Config selects and configures adapters. Zero values pick each adapter's
// defaults.
type Config struct {
	ESpeakPath    string
	Piper         piper.Config
	Google        google.Config
	SpeechdSocket string
	NVDALibrary   string
	// Console enables the terminal Braille display when non-nil.
	Console io.Writer
}

// Factories returns the adapters for this platform, screen readers first.
// Adapters whose engine is missing fail at construction and are dropped by
// the registry.
func Factories(cfg Config) []output.Factory {
	factories := platformFactories(cfg)
	factories = append(factories, espeak.Factory(cfg.ESpeakPath))
	if cfg.Piper.Model != "" {
		factories = append(factories, piper.Factory(cfg.Piper))
	}
	if !strings.EqualFold(cfg.Google.Enabled, "false") {
		factories = append(factories, google.Factory(cfg.Google))
	}
	if cfg.Console != nil {
		factories = append(factories, console.Factory(cfg.Console))
	}
	return factories
}

// Names lists the factory names Factories would return for cfg.
func Names(cfg Config) []string {
	factories := Factories(cfg)
	names := make([]string, 0, len(factories))
	for _, f := range factories {
		names = append(names, f.Name)
	}
	return names
}
