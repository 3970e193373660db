// Package jaws drives the JAWS screen reader through its COM API.
package jaws

import (
	"strings"

	"murmur/pkg/output"
)

// Name is the backend name callers select JAWS with.
const Name = "JAWS"

const (
	voiceName       = "jaws"
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

// brailleFunction builds the JAWS script call that shows text on the display.
// The script language has no escape for double quotes.
func brailleFunction(text string) string {
	return `BrailleString("` + strings.ReplaceAll(text, `"`, "'") + `")`
}
