// Package nvda talks to a running NVDA screen reader through its controller
// client library.
package nvda

import (
	"murmur/pkg/output"
)

// Name is the backend name callers select NVDA with.
const Name = "NVDA"

const (
	voiceName       = "nvda"
	voicePriority   = 0
	braillePriority = 0
)

func voices() []output.Voice {
	return []output.Voice{{
		DisplayName: Name,
		Name:        voiceName,
		Languages:   []string{},
		Priority:    voicePriority,
	}}
}

// libraryName returns the controller client shipped for arch.
func libraryName(arch string) string {
	if arch == "386" {
		return "nvdaControllerClient32.dll"
	}
	return "nvdaControllerClient64.dll"
}
