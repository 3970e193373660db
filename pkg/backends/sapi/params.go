// Package sapi speaks through the Windows Speech API (SAPI 5) using COM
// automation.
package sapi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"murmur/pkg/output"
)

// Name is the backend name callers select SAPI with.
const Name = "SAPI 5"

const (
	voicePriority = 2
	sampleRate    = 22050

	// SpeechAudioFormatType SAFT22kHz16BitMono.
	formatType = 22

	// SpeechVoiceSpeakFlags.
	flagAsync        = 1
	flagPurgeFirst   = 2
	flagIsXML        = 8
	flagParseSAPI    = 128
	languageAttrName = "Language"
)

// rate maps 0..100 onto SAPI's -10..10.
func rate(p output.Params) int {
	return int(p.RateOrDefault())/5 - 10
}

func volume(p output.Params) int {
	return int(p.VolumeOrDefault())
}

// markup wraps text in SAPI XML carrying the absolute pitch, -10..10.
func markup(p output.Params, text string) (string, error) {
	var buf bytes.Buffer
	pitch := int(p.PitchOrDefault())/5 - 10
	fmt.Fprintf(&buf, `<pitch absmiddle="%d">`, pitch)
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		return "", err
	}
	buf.WriteString("</pitch>")
	return buf.String(), nil
}

// parseLanguages turns a token's Language attribute, a semicolon separated
// list of hexadecimal LCIDs such as "409;9", into lowercase locale names.
// Unknown or malformed identifiers are skipped.
func parseLanguages(attr string, localeName func(lcid uint32) (string, error)) []string {
	languages := []string{}
	seen := map[string]bool{}
	for _, field := range strings.Split(attr, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		lcid, err := strconv.ParseUint(field, 16, 32)
		if err != nil {
			continue
		}
		name, err := localeName(uint32(lcid))
		if err != nil || name == "" {
			continue
		}
		name = strings.ToLower(name)
		if seen[name] {
			continue
		}
		seen[name] = true
		languages = append(languages, name)
	}
	return languages
}

func hasLanguage(languages []string, language string) bool {
	language = strings.ToLower(language)
	for _, l := range languages {
		if l == language {
			return true
		}
	}
	return false
}
