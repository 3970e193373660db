// Command libmurmur builds the C shared library:
//
//	go build -buildmode=c-shared -o libmurmur.so ./cmd/libmurmur
//
// Every function returns the error code of the failure, or 0. NULL string
// and parameter pointers leave the value to the backend.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	unsigned char *pcm;
	size_t pcm_len;
	uint8_t sample_format;
	unsigned int sample_rate;
} MurmurSpeechResult;

typedef struct {
	char *name;
	bool supports_speaking_to_audio_data;
	bool supports_speech_parameters;
} MurmurSpeechSynthesizerMetadata;

typedef struct {
	char *name;
	unsigned char priority;
} MurmurBrailleBackendMetadata;

typedef struct {
	MurmurSpeechSynthesizerMetadata *synthesizer;
	char *display_name;
	char *name;
	char **languages;
	size_t languages_len;
	unsigned char priority;
} MurmurVoice;
*/
import "C"

import (
	"unsafe"

	"murmur/pkg/backends"
	"murmur/pkg/output"
)

var lib = &library{
	open: func() (*output.Output, error) {
		return output.New(output.WithFactories(backends.Factories(backends.Config{})...))
	},
}

func main() {}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func goLevel(v *C.uchar) *uint8 {
	if v == nil {
		return nil
	}
	return output.Level(uint8(*v))
}

func speechFrom(backend, voice, language *C.char, rate, volume, pitch *C.uchar) output.Speech {
	return output.Speech{
		Backend:  goString(backend),
		Voice:    goString(voice),
		Language: goString(language),
		Rate:     goLevel(rate),
		Volume:   goLevel(volume),
		Pitch:    goLevel(pitch),
	}
}

// cArray allocates n pointers with malloc.
func cArray[T any](n int) (unsafe.Pointer, []*T) {
	if n == 0 {
		n = 1
	}
	p := C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(uintptr(0))))
	return p, unsafe.Slice((**T)(p), n)
}

func newSynthesizer(m output.SpeechSynthesizerMetadata) *C.MurmurSpeechSynthesizerMetadata {
	s := (*C.MurmurSpeechSynthesizerMetadata)(C.malloc(C.size_t(unsafe.Sizeof(C.MurmurSpeechSynthesizerMetadata{}))))
	s.name = C.CString(m.Name)
	s.supports_speaking_to_audio_data = C.bool(m.SupportsSpeakingToAudioData)
	s.supports_speech_parameters = C.bool(m.SupportsSpeechParameters)
	return s
}

func freeSynthesizer(s *C.MurmurSpeechSynthesizerMetadata) {
	C.free(unsafe.Pointer(s.name))
	C.free(unsafe.Pointer(s))
}

//export murmur_initialize
func murmur_initialize() C.int {
	return C.int(lib.initialize())
}

//export murmur_shutdown
func murmur_shutdown() C.int {
	return C.int(lib.shutdown())
}

//export murmur_get_last_error
func murmur_get_last_error() *C.char {
	msg, ok := lib.takeLastError()
	if !ok {
		return nil
	}
	return C.CString(msg)
}

//export murmur_free_error
func murmur_free_error(err *C.char) {
	C.free(unsafe.Pointer(err))
}

//export murmur_list_voices
func murmur_list_voices(backend, voice, language *C.char, needsAudioData C.bool, voicesOut ***C.MurmurVoice, lenOut *C.size_t) C.int {
	if voicesOut == nil {
		return C.int(lib.nullArgument("voices_out"))
	}
	if lenOut == nil {
		return C.int(lib.nullArgument("len_out"))
	}
	filter := output.VoiceFilter{
		Backend:        goString(backend),
		Voice:          goString(voice),
		Language:       goString(language),
		NeedsAudioData: bool(needsAudioData),
	}
	return C.int(lib.call(func(o *output.Output) error {
		voices, err := o.ListVoices(filter)
		if err != nil {
			return err
		}
		p, items := cArray[C.MurmurVoice](len(voices))
		for i, v := range voices {
			cv := (*C.MurmurVoice)(C.malloc(C.size_t(unsafe.Sizeof(C.MurmurVoice{}))))
			cv.synthesizer = newSynthesizer(v.Synthesizer)
			cv.display_name = C.CString(v.DisplayName)
			cv.name = C.CString(v.Name)
			lp, languages := cArray[C.char](len(v.Languages))
			for j, l := range v.Languages {
				languages[j] = C.CString(l)
			}
			cv.languages = (**C.char)(lp)
			cv.languages_len = C.size_t(len(v.Languages))
			cv.priority = C.uchar(v.Priority)
			items[i] = cv
		}
		*voicesOut = (**C.MurmurVoice)(p)
		*lenOut = C.size_t(len(voices))
		return nil
	}))
}

//export murmur_free_voice_list
func murmur_free_voice_list(voices **C.MurmurVoice, n C.size_t) {
	if voices == nil {
		return
	}
	for _, v := range unsafe.Slice(voices, int(n)) {
		freeSynthesizer(v.synthesizer)
		C.free(unsafe.Pointer(v.display_name))
		C.free(unsafe.Pointer(v.name))
		for _, l := range unsafe.Slice(v.languages, int(v.languages_len)) {
			C.free(unsafe.Pointer(l))
		}
		C.free(unsafe.Pointer(v.languages))
		C.free(unsafe.Pointer(v))
	}
	C.free(unsafe.Pointer(voices))
}

func listSynthesizers(list func(*output.Output) ([]output.SpeechSynthesizerMetadata, error), out ***C.MurmurSpeechSynthesizerMetadata, lenOut *C.size_t) C.int {
	if out == nil {
		return C.int(lib.nullArgument("synthesizers_out"))
	}
	if lenOut == nil {
		return C.int(lib.nullArgument("len_out"))
	}
	return C.int(lib.call(func(o *output.Output) error {
		synthesizers, err := list(o)
		if err != nil {
			return err
		}
		p, items := cArray[C.MurmurSpeechSynthesizerMetadata](len(synthesizers))
		for i, s := range synthesizers {
			items[i] = newSynthesizer(s)
		}
		*out = (**C.MurmurSpeechSynthesizerMetadata)(p)
		*lenOut = C.size_t(len(synthesizers))
		return nil
	}))
}

//export murmur_list_speech_synthesizers
func murmur_list_speech_synthesizers(out ***C.MurmurSpeechSynthesizerMetadata, lenOut *C.size_t) C.int {
	return listSynthesizers((*output.Output).ListSpeechSynthesizers, out, lenOut)
}

//export murmur_list_speech_synthesizers_supporting_audio_data
func murmur_list_speech_synthesizers_supporting_audio_data(out ***C.MurmurSpeechSynthesizerMetadata, lenOut *C.size_t) C.int {
	return listSynthesizers((*output.Output).ListSpeechSynthesizersSupportingAudioData, out, lenOut)
}

//export murmur_free_speech_synthesizer_list
func murmur_free_speech_synthesizer_list(synthesizers **C.MurmurSpeechSynthesizerMetadata, n C.size_t) {
	if synthesizers == nil {
		return
	}
	for _, s := range unsafe.Slice(synthesizers, int(n)) {
		freeSynthesizer(s)
	}
	C.free(unsafe.Pointer(synthesizers))
}

//export murmur_list_braille_backends
func murmur_list_braille_backends(out ***C.MurmurBrailleBackendMetadata, lenOut *C.size_t) C.int {
	if out == nil {
		return C.int(lib.nullArgument("backends_out"))
	}
	if lenOut == nil {
		return C.int(lib.nullArgument("len_out"))
	}
	return C.int(lib.call(func(o *output.Output) error {
		list, err := o.ListBrailleBackends()
		if err != nil {
			return err
		}
		p, items := cArray[C.MurmurBrailleBackendMetadata](len(list))
		for i, b := range list {
			cb := (*C.MurmurBrailleBackendMetadata)(C.malloc(C.size_t(unsafe.Sizeof(C.MurmurBrailleBackendMetadata{}))))
			cb.name = C.CString(b.Name)
			cb.priority = C.uchar(b.Priority)
			items[i] = cb
		}
		*out = (**C.MurmurBrailleBackendMetadata)(p)
		*lenOut = C.size_t(len(list))
		return nil
	}))
}

//export murmur_free_braille_backend_list
func murmur_free_braille_backend_list(list **C.MurmurBrailleBackendMetadata, n C.size_t) {
	if list == nil {
		return
	}
	for _, b := range unsafe.Slice(list, int(n)) {
		C.free(unsafe.Pointer(b.name))
		C.free(unsafe.Pointer(b))
	}
	C.free(unsafe.Pointer(list))
}

//export murmur_speak_to_audio_data
func murmur_speak_to_audio_data(backend, voice, language *C.char, rate, volume, pitch *C.uchar, text *C.char, resultOut **C.MurmurSpeechResult) C.int {
	if resultOut == nil {
		return C.int(lib.nullArgument("result_out"))
	}
	sp := speechFrom(backend, voice, language, rate, volume, pitch)
	t := goString(text)
	return C.int(lib.call(func(o *output.Output) error {
		res, err := o.SpeakToAudioData(sp, t)
		if err != nil {
			return err
		}
		cr := (*C.MurmurSpeechResult)(C.malloc(C.size_t(unsafe.Sizeof(C.MurmurSpeechResult{}))))
		cr.pcm = (*C.uchar)(C.CBytes(res.PCM))
		cr.pcm_len = C.size_t(len(res.PCM))
		cr.sample_format = C.uint8_t(res.SampleFormat)
		cr.sample_rate = C.uint(res.SampleRate)
		*resultOut = cr
		return nil
	}))
}

//export murmur_free_speech_result
func murmur_free_speech_result(result *C.MurmurSpeechResult) {
	if result == nil {
		return
	}
	C.free(unsafe.Pointer(result.pcm))
	C.free(unsafe.Pointer(result))
}

//export murmur_speak_to_audio_output
func murmur_speak_to_audio_output(backend, voice, language *C.char, rate, volume, pitch *C.uchar, text *C.char, interrupt C.bool) C.int {
	sp := speechFrom(backend, voice, language, rate, volume, pitch)
	t := goString(text)
	return C.int(lib.call(func(o *output.Output) error {
		return o.SpeakToAudioOutput(sp, t, bool(interrupt))
	}))
}

//export murmur_stop_speech
func murmur_stop_speech(backend *C.char) C.int {
	b := goString(backend)
	return C.int(lib.call(func(o *output.Output) error {
		return o.StopSpeech(b)
	}))
}

//export murmur_braille
func murmur_braille(backend, text *C.char) C.int {
	b, t := goString(backend), goString(text)
	return C.int(lib.call(func(o *output.Output) error {
		return o.Braille(b, t)
	}))
}

//export murmur_output
func murmur_output(backend, voice, language *C.char, rate, volume, pitch *C.uchar, brailleBackend, text *C.char, interrupt C.bool) C.int {
	sp := speechFrom(backend, voice, language, rate, volume, pitch)
	bb, t := goString(brailleBackend), goString(text)
	return C.int(lib.call(func(o *output.Output) error {
		return o.Output(sp, bb, t, bool(interrupt))
	}))
}
