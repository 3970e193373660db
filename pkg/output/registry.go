package output

import (
	"github.com/sirupsen/logrus"
)

// entry is a registered backend with its capabilities resolved once.
type entry struct {
	backend     Backend
	audioData   AudioDataSynthesizer
	audioOutput AudioOutputSynthesizer
	braille     BrailleDisplay
}

func newEntry(b Backend) *entry {
	e := &entry{backend: b}
	e.audioData, _ = b.(AudioDataSynthesizer)
	e.audioOutput, _ = b.(AudioOutputSynthesizer)
	e.braille, _ = b.(BrailleDisplay)
	return e
}

func (e *entry) name() string {
	return e.backend.Name()
}

func (e *entry) speaks() bool {
	return e.audioData != nil || e.audioOutput != nil
}

func (e *entry) synthesizerMetadata() SpeechSynthesizerMetadata {
	md := SpeechSynthesizerMetadata{
		Name:                        e.name(),
		SupportsSpeakingToAudioData: e.audioData != nil,
	}
	switch {
	case e.audioData != nil:
		md.SupportsSpeechParameters = e.audioData.SupportsSpeechParameters()
	case e.audioOutput != nil:
		md.SupportsSpeechParameters = e.audioOutput.SupportsSpeechParameters()
	}
	return md
}

func (e *entry) brailleMetadata() BrailleBackendMetadata {
	return BrailleBackendMetadata{Name: e.name(), Priority: e.braille.BraillePriority()}
}

// registry maps backend names to adapters in registration order. It is
// built and read only on the dispatch goroutine.
type registry struct {
	entries []*entry
	byName  map[string]*entry
}

// buildRegistry constructs every factory, dropping the ones that fail.
func buildRegistry(factories []Factory, log logrus.FieldLogger) *registry {
	r := &registry{byName: make(map[string]*entry)}
	for _, f := range factories {
		b, err := f.New()
		if err != nil {
			log.WithError(err).WithField("backend", f.Name).Debug("Backend unavailable")
			continue
		}
		if b == nil {
			continue
		}
		if !r.add(b) {
			log.WithField("backend", b.Name()).Warn("Backend name already registered, ignoring duplicate")
			closeQuietly(b, log)
			continue
		}
		log.WithField("backend", b.Name()).Info("Backend registered")
	}
	return r
}

func (r *registry) add(b Backend) bool {
	name := b.Name()
	if _, exists := r.byName[name]; exists {
		return false
	}
	e := newEntry(b)
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return true
}

func (r *registry) get(name string) (*entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

func (r *registry) synthesizers(needsAudioData bool) []SpeechSynthesizerMetadata {
	out := []SpeechSynthesizerMetadata{}
	for _, e := range r.entries {
		if !e.speaks() || (needsAudioData && e.audioData == nil) {
			continue
		}
		out = append(out, e.synthesizerMetadata())
	}
	return out
}

func (r *registry) brailleBackends() []BrailleBackendMetadata {
	out := []BrailleBackendMetadata{}
	for _, e := range r.entries {
		if e.braille != nil {
			out = append(out, e.brailleMetadata())
		}
	}
	return out
}

// preferredBraille returns the Braille backend with the lowest priority,
// breaking ties by name.
func (r *registry) preferredBraille() (*entry, bool) {
	var best *entry
	var bestPriority uint8
	for _, e := range r.entries {
		if e.braille == nil {
			continue
		}
		p := e.braille.BraillePriority()
		if best == nil || p < bestPriority || (p == bestPriority && e.name() < best.name()) {
			best, bestPriority = e, p
		}
	}
	return best, best != nil
}

type closer interface {
	Close() error
}

func closeQuietly(b Backend, log logrus.FieldLogger) {
	c, ok := b.(closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.WithError(err).WithField("backend", b.Name()).Warn("Failed to close backend")
	}
}

func (r *registry) close(log logrus.FieldLogger) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		closeQuietly(r.entries[i].backend, log)
	}
	r.entries = nil
	r.byName = map[string]*entry{}
}
