//go:build darwin

package backends

import (
	"murmur/pkg/backends/say"
	"murmur/pkg/output"
)

func platformFactories(Config) []output.Factory {
	return []output.Factory{say.Factory()}
}
