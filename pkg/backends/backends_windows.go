//go:build windows

package backends

import (
	"murmur/pkg/backends/jaws"
	"murmur/pkg/backends/nvda"
	"murmur/pkg/backends/sapi"
	"murmur/pkg/output"
)

func platformFactories(cfg Config) []output.Factory {
	return []output.Factory{
		nvda.Factory(cfg.NVDALibrary),
		jaws.Factory(),
		sapi.Factory(),
	}
}
