//go:build linux

package backends

import (
	"murmur/pkg/backends/speechd"
	"murmur/pkg/output"
)

func platformFactories(cfg Config) []output.Factory {
	return []output.Factory{speechd.Factory(cfg.SpeechdSocket)}
}
