package output

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

// VoiceFilter narrows a voice listing. Empty strings match everything.
type VoiceFilter struct {
	Backend        string
	Voice          string
	Language       string
	NeedsAudioData bool
}

// listVoices collects voices from every backend matching f and sorts them
// by (priority, name). A backend whose listing fails contributes nothing.
func (r *registry) listVoices(f VoiceFilter, log logrus.FieldLogger) []Voice {
	language := strings.ToLower(f.Language)
	voices := []Voice{}
	for _, e := range r.entries {
		if f.Backend != "" && e.name() != f.Backend {
			continue
		}
		if !e.speaks() || (f.NeedsAudioData && e.audioData == nil) {
			continue
		}
		listed, err := e.backend.ListVoices()
		if err != nil {
			log.WithError(err).WithField("backend", e.name()).Warn("Failed to list voices")
			continue
		}
		md := e.synthesizerMetadata()
		for _, v := range listed {
			if f.Voice != "" && v.Name != f.Voice {
				continue
			}
			if language != "" && !matchesLanguage(v.Languages, language) {
				continue
			}
			v.Synthesizer = md
			voices = append(voices, v)
		}
	}
	sortVoices(voices)
	return voices
}

func matchesLanguage(languages []string, language string) bool {
	if len(languages) == 0 {
		return true
	}
	for _, l := range languages {
		if strings.ToLower(l) == language {
			return true
		}
	}
	return false
}

func sortVoices(voices []Voice) {
	slices.SortStableFunc(voices, func(a, b Voice) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// resolveBackend picks the backend for a speech request. An explicit
// backend is returned as given; otherwise the owner of the best ranked
// voice wins.
func (r *registry) resolveBackend(f VoiceFilter, log logrus.FieldLogger) (string, error) {
	if f.Backend != "" {
		return f.Backend, nil
	}
	voices := r.listVoices(f, log)
	if len(voices) > 0 {
		return voices[0].Synthesizer.Name, nil
	}
	switch {
	case f.Voice != "":
		return "", VoiceNotFound(f.Voice)
	case f.Language != "":
		return "", LanguageNotFound(f.Language)
	default:
		return "", &Error{Kind: KindNoVoices}
	}
}
