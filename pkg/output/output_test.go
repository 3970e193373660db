package output

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/pkg/audio"
)

func TestNew_SinkFailureIsInitializeFailed(t *testing.T) {
	_, err := New(WithSink(func() (AudioSink, error) { return nil, errors.New("no audio device") }))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitializeFailed)
	assert.Contains(t, err.Error(), "no audio device")
}

func TestNew_DropsBackendsThatFailToConstruct(t *testing.T) {
	good := &fakeAudioData{fakeBackend: fakeBackend{name: "Good"}, rate: 22050}
	o, _, hook := newTestOutput(t, failingFactory("Broken"), factoryFor(good))

	synths, err := o.ListSpeechSynthesizers()
	require.NoError(t, err)
	require.Len(t, synths, 1)
	assert.Equal(t, "Good", synths[0].Name)

	var dropped bool
	for _, e := range hook.AllEntries() {
		if e.Data["backend"] == "Broken" {
			dropped = true
		}
	}
	assert.True(t, dropped, "dropped backend should be logged")
}

func TestNew_FirstBackendWithANameWins(t *testing.T) {
	first := &fakeAudioData{fakeBackend: fakeBackend{name: "Engine", voices: []Voice{voice("first", 1)}}, rate: 8000}
	second := &fakeAudioData{fakeBackend: fakeBackend{name: "Engine", voices: []Voice{voice("second", 0)}}, rate: 8000}
	o, _, _ := newTestOutput(t, factoryFor(first), factoryFor(second))

	voices, err := o.ListVoices(VoiceFilter{})
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "first", voices[0].Name)
	assert.EqualValues(t, 1, second.closed, "rejected duplicate should be closed")
}

func TestSpeak_InvalidParametersNeverReachBackends(t *testing.T) {
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data", voices: []Voice{voice("v1", 0)}}, rate: 8000}
	native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native", voices: []Voice{voice("n1", 0)}}}
	o, sink, _ := newTestOutput(t, factoryFor(data), factoryFor(native))

	tests := []struct {
		name   string
		speech Speech
		want   *Error
	}{
		{"rate", Speech{Rate: Level(101)}, &Error{Kind: KindInvalidRate, Value: 101}},
		{"volume", Speech{Volume: Level(150)}, &Error{Kind: KindInvalidVolume, Value: 150}},
		{"pitch", Speech{Pitch: Level(255)}, &Error{Kind: KindInvalidPitch, Value: 255}},
		{"rate checked first", Speech{Rate: Level(200), Pitch: Level(200)}, &Error{Kind: KindInvalidRate, Value: 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.SpeakToAudioData(tt.speech, "hello")
			assert.Equal(t, tt.want, err)

			err = o.SpeakToAudioOutput(tt.speech, "hello", false)
			assert.Equal(t, tt.want, err)

			err = o.Output(tt.speech, "", "hello", false)
			assert.Equal(t, tt.want, err)
		})
	}

	assert.Equal(t, 0, data.callCount())
	assert.Empty(t, native.spoken)
	events, _ := sink.snapshot()
	assert.Empty(t, events)
}

func TestSpeak_BoundaryParametersAreAccepted(t *testing.T) {
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data", voices: []Voice{voice("v1", 0)}}, rate: 8000}
	o, _, _ := newTestOutput(t, factoryFor(data))

	_, err := o.SpeakToAudioData(Speech{Rate: Level(0), Volume: Level(100), Pitch: Level(100)}, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), data.last.RateOrDefault())
	assert.Equal(t, uint8(100), data.last.VolumeOrDefault())
}

func TestSpeakToAudioData_RoundTrip(t *testing.T) {
	data := &fakeAudioData{
		fakeBackend: fakeBackend{name: "Fake", voices: []Voice{voice("v1", 5, "en")}},
		rate:        16000,
	}
	o, _, _ := newTestOutput(t, factoryFor(data))

	res, err := o.SpeakToAudioData(Speech{Voice: "v1", Rate: Level(50), Volume: Level(100), Pitch: Level(50)}, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, res.PCM)
	assert.Equal(t, uint32(16000), res.SampleRate)

	assert.Equal(t, "v1", data.last.Voice)
	require.NotNil(t, data.last.Rate)
	assert.Equal(t, uint8(50), *data.last.Rate)
}

func TestSpeakToAudioData_SelectionErrors(t *testing.T) {
	native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native", voices: []Voice{voice("n1", 0, "en")}}}
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data", voices: []Voice{voice("d1", 0, "fr")}}, rate: 8000}
	o, _, _ := newTestOutput(t, factoryFor(native), factoryFor(data))

	tests := []struct {
		name   string
		speech Speech
		kind   Kind
	}{
		{"unknown backend", Speech{Backend: "Missing"}, KindBackendNotFound},
		{"unknown backend with voice", Speech{Backend: "Missing", Voice: "d1", Language: "fr"}, KindBackendNotFound},
		{"explicit backend without audio data", Speech{Backend: "Native"}, KindAudioDataNotSupported},
		{"voice only on native backend", Speech{Voice: "n1"}, KindVoiceNotFound},
		{"language only on native backend", Speech{Language: "en"}, KindLanguageNotFound},
		{"voice takes precedence over language", Speech{Voice: "zz", Language: "zz"}, KindVoiceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.SpeakToAudioData(tt.speech, "hello")
			assert.Equal(t, tt.kind, KindOf(err), "got %v", err)
		})
	}
}

func TestSpeak_NoBackendsIsNoVoices(t *testing.T) {
	o, _, _ := newTestOutput(t)

	_, err := o.SpeakToAudioData(Speech{}, "hello")
	assert.ErrorIs(t, err, ErrNoVoices)

	err = o.SpeakToAudioOutput(Speech{}, "hello", false)
	assert.ErrorIs(t, err, ErrNoVoices)
}

func TestSpeakToAudioData_BackendFailures(t *testing.T) {
	cause := errors.New("synthesis crashed")
	failing := &fakeAudioData{fakeBackend: fakeBackend{name: "Failing", voices: []Voice{voice("f", 0)}}, rate: 8000, err: cause}
	badPCM := &fakeAudioData{fakeBackend: fakeBackend{name: "BadPCM", voices: []Voice{voice("b", 0)}}, rate: 8000, pcm: []byte{1, 2, 3}}
	taxonomy := &fakeAudioData{fakeBackend: fakeBackend{name: "Taxonomy", voices: []Voice{voice("t", 0)}}, rate: 8000, err: VoiceNotFound("t")}
	o, _, _ := newTestOutput(t, factoryFor(failing), factoryFor(badPCM), factoryFor(taxonomy))

	_, err := o.SpeakToAudioData(Speech{Backend: "Failing", Voice: "f"}, "hello")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindSpeakFailed, e.Kind)
	assert.Equal(t, "Failing", e.Backend)
	assert.Equal(t, "f", e.Voice)
	assert.ErrorIs(t, err, cause)

	_, err = o.SpeakToAudioData(Speech{Backend: "BadPCM"}, "hello")
	assert.Equal(t, KindSpeakFailed, KindOf(err))

	_, err = o.SpeakToAudioData(Speech{Backend: "Taxonomy"}, "hello")
	assert.Equal(t, KindVoiceNotFound, KindOf(err))
}

func TestSpeakToAudioData_PanicIsUnknown(t *testing.T) {
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Panicky"}, rate: 8000, panics: true}
	o, _, _ := newTestOutput(t, factoryFor(data))

	_, err := o.SpeakToAudioData(Speech{Backend: "Panicky"}, "hello")
	assert.ErrorIs(t, err, ErrUnknown)

	// The dispatcher survives.
	_, err = o.ListBrailleBackends()
	assert.NoError(t, err)
}

func TestSpeakToAudioData_CallsAreSerialized(t *testing.T) {
	data := &fakeAudioData{
		fakeBackend: fakeBackend{name: "Slow", voices: []Voice{voice("v1", 0)}},
		rate:        8000,
		delay:       20 * time.Millisecond,
	}
	o, _, _ := newTestOutput(t, factoryFor(data))

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = o.SpeakToAudioData(Speech{Backend: "Slow"}, "hello")
		}(i)
	}
	close(start)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 2, data.callCount())
	assert.EqualValues(t, 1, data.maxInFlight)
}

func TestSpeakToAudioOutput_DataOnlyBackendUsesSink(t *testing.T) {
	data := &fakeAudioData{
		fakeBackend: fakeBackend{name: "Data", voices: []Voice{voice("v1", 0)}},
		rate:        22050,
		pcm:         []byte{0x00, 0x40, 0x00, 0xc0},
	}
	o, sink, _ := newTestOutput(t, factoryFor(data))

	require.NoError(t, o.SpeakToAudioOutput(Speech{}, "one", false))
	require.NoError(t, o.SpeakToAudioOutput(Speech{}, "two", true))

	events, clips := sink.snapshot()
	assert.Equal(t, []string{"append", "stop", "append"}, events)
	require.Len(t, clips, 2)
	assert.Equal(t, 22050, clips[0].SampleRate)
	assert.Equal(t, []float64{0.5, -0.5}, clips[0].Samples)
	assert.Equal(t, 2, data.callCount())
}

func TestSpeakToAudioOutput_DecodesFloatSamples(t *testing.T) {
	data := &fakeAudioData{
		fakeBackend: fakeBackend{name: "Float"},
		rate:        24000,
		format:      audio.F32,
		pcm:         []byte{0x00, 0x00, 0x80, 0x3e}, // 0.25
	}
	o, sink, _ := newTestOutput(t, factoryFor(data))

	require.NoError(t, o.SpeakToAudioOutput(Speech{Backend: "Float"}, "hello", false))
	_, clips := sink.snapshot()
	require.Len(t, clips, 1)
	assert.Equal(t, []float64{0.25}, clips[0].Samples)
}

func TestSpeakToAudioOutput_PrefersNativePlayback(t *testing.T) {
	both := &fakeBoth{fakeAudioData: fakeAudioData{fakeBackend: fakeBackend{name: "Both", voices: []Voice{voice("b", 0)}}, rate: 8000}}
	native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native", voices: []Voice{voice("n", 1)}}}
	o, sink, _ := newTestOutput(t, factoryFor(both), factoryFor(native))

	require.NoError(t, o.SpeakToAudioOutput(Speech{}, "hello", false))
	assert.Equal(t, []string{"hello"}, both.nativeSpoken)
	assert.Equal(t, 0, both.callCount())
	events, _ := sink.snapshot()
	assert.Empty(t, events)

	require.NoError(t, o.SpeakToAudioOutput(Speech{Voice: "n"}, "again", true))
	assert.Equal(t, []string{"again"}, native.spoken)
	assert.Equal(t, []bool{true}, native.interrupts)
}

func TestSpeakToAudioOutput_Errors(t *testing.T) {
	cause := errors.New("device busy")
	native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native", voices: []Voice{voice("n", 0)}}, speakErr: cause}
	display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}}
	o, _, _ := newTestOutput(t, factoryFor(native), factoryFor(display))

	err := o.SpeakToAudioOutput(Speech{Backend: "Display"}, "hello", false)
	assert.Equal(t, &Error{Kind: KindSpeechNotSupported, Backend: "Display"}, err)

	err = o.SpeakToAudioOutput(Speech{Backend: "Nope"}, "hello", false)
	assert.Equal(t, KindBackendNotFound, KindOf(err))

	err = o.SpeakToAudioOutput(Speech{Voice: "n"}, "hello", false)
	assert.Equal(t, KindSpeakFailed, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestStopSpeech_AllSwallowsBackendFailures(t *testing.T) {
	broken := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Broken"}, stopErr: errors.New("stop failed")}
	healthy := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Healthy"}}
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data"}, rate: 8000}
	o, sink, _ := newTestOutput(t, factoryFor(broken), factoryFor(healthy), factoryFor(data))

	require.NoError(t, o.StopSpeech(""))
	assert.Equal(t, 1, broken.stops)
	assert.Equal(t, 1, healthy.stops)
	events, _ := sink.snapshot()
	assert.Equal(t, []string{"stop"}, events)
}

func TestStopSpeech_Named(t *testing.T) {
	cause := errors.New("stop failed")
	broken := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Broken"}, stopErr: cause}
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data"}, rate: 8000}
	display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}}
	o, sink, _ := newTestOutput(t, factoryFor(broken), factoryFor(data), factoryFor(display))

	err := o.StopSpeech("Broken")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindStopSpeechFailed, e.Kind)
	assert.Equal(t, "Broken", e.Backend)
	assert.ErrorIs(t, err, cause)

	require.NoError(t, o.StopSpeech("Data"))
	events, _ := sink.snapshot()
	assert.Equal(t, []string{"stop"}, events)

	assert.Equal(t, KindBackendNotFound, KindOf(o.StopSpeech("Missing")))
}

func TestStopSpeech_BrailleOnlyStopsSink(t *testing.T) {
	display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}}
	o, sink, _ := newTestOutput(t, factoryFor(display))

	require.NoError(t, o.StopSpeech("Display"))
	events, _ := sink.snapshot()
	assert.Equal(t, []string{"stop"}, events)
}

func TestBraille(t *testing.T) {
	low := &fakeBraille{fakeBackend: fakeBackend{name: "Low"}, priority: 0}
	high := &fakeBraille{fakeBackend: fakeBackend{name: "High"}, priority: 9}
	speaker := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Speaker"}}
	o, _, _ := newTestOutput(t, factoryFor(high), factoryFor(low), factoryFor(speaker))

	require.NoError(t, o.Braille("", "default"))
	assert.Equal(t, []string{"default"}, low.shown)

	require.NoError(t, o.Braille("High", "explicit"))
	assert.Equal(t, []string{"explicit"}, high.shown)

	assert.Equal(t, &Error{Kind: KindBrailleNotSupported, Backend: "Speaker"}, o.Braille("Speaker", "x"))
	assert.Equal(t, KindBackendNotFound, KindOf(o.Braille("Missing", "x")))
}

func TestBraille_TiesBreakByName(t *testing.T) {
	b := &fakeBraille{fakeBackend: fakeBackend{name: "B"}, priority: 1}
	a := &fakeBraille{fakeBackend: fakeBackend{name: "A"}, priority: 1}
	o, _, _ := newTestOutput(t, factoryFor(b), factoryFor(a))

	require.NoError(t, o.Braille("", "hi"))
	assert.Equal(t, []string{"hi"}, a.shown)
	assert.Empty(t, b.shown)
}

func TestBraille_Failures(t *testing.T) {
	o, _, _ := newTestOutput(t)
	assert.ErrorIs(t, o.Braille("", "x"), ErrNoBrailleBackends)

	cause := errors.New("display unplugged")
	broken := &fakeBraille{fakeBackend: fakeBackend{name: "Broken"}, err: cause}
	o, _, _ = newTestOutput(t, factoryFor(broken))
	err := o.Braille("", "x")
	assert.Equal(t, KindBrailleFailed, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestOutput_MergesSpeechAndBraille(t *testing.T) {
	t.Run("no backends at all", func(t *testing.T) {
		o, _, _ := newTestOutput(t)
		assert.ErrorIs(t, o.Output(Speech{}, "", "hello", false), ErrNoBackends)
	})

	t.Run("braille only", func(t *testing.T) {
		display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}}
		o, _, _ := newTestOutput(t, factoryFor(display))
		require.NoError(t, o.Output(Speech{}, "", "hello", false))
		assert.Equal(t, []string{"hello"}, display.shown)
	})

	t.Run("braille only and failing", func(t *testing.T) {
		display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}, err: errors.New("unplugged")}
		o, _, _ := newTestOutput(t, factoryFor(display))
		assert.Equal(t, KindBrailleFailed, KindOf(o.Output(Speech{}, "", "hello", false)))
	})

	t.Run("speech only", func(t *testing.T) {
		native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native", voices: []Voice{voice("n", 0)}}}
		o, _, _ := newTestOutput(t, factoryFor(native))
		require.NoError(t, o.Output(Speech{}, "", "hello", true))
		assert.Equal(t, []string{"hello"}, native.spoken)
	})

	t.Run("speech failure wins but braille still runs", func(t *testing.T) {
		native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native", voices: []Voice{voice("n", 0)}}, speakErr: errors.New("busy")}
		display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}}
		o, _, _ := newTestOutput(t, factoryFor(native), factoryFor(display))
		assert.Equal(t, KindSpeakFailed, KindOf(o.Output(Speech{}, "", "hello", false)))
		assert.Equal(t, []string{"hello"}, display.shown)
	})

	t.Run("screen reader does both", func(t *testing.T) {
		reader := &fakeScreenReader{fakeAudioOutput: fakeAudioOutput{fakeBackend: fakeBackend{name: "Reader", voices: []Voice{voice("r", 0)}}}}
		o, _, _ := newTestOutput(t, factoryFor(reader))
		require.NoError(t, o.Output(Speech{}, "", "hello", false))
		assert.Equal(t, []string{"hello"}, reader.spoken)
		assert.Equal(t, []string{"hello"}, reader.shown)
	})
}

func TestMergeOutput(t *testing.T) {
	speakErr := SpeakFailed("S", "", errors.New("x"))
	brailleErr := BrailleFailed("B", errors.New("y"))
	tests := []struct {
		name     string
		speech   error
		braille  error
		wantKind Kind
	}{
		{"both ok", nil, nil, KindNone},
		{"both absent", &Error{Kind: KindNoVoices}, &Error{Kind: KindNoBrailleBackends}, KindNoBackends},
		{"no voices, braille ok", &Error{Kind: KindNoVoices}, nil, KindNone},
		{"no voices, braille failed", &Error{Kind: KindNoVoices}, brailleErr, KindBrailleFailed},
		{"speech ok, no braille", nil, &Error{Kind: KindNoBrailleBackends}, KindNone},
		{"speech failed, braille failed", speakErr, brailleErr, KindSpeakFailed},
		{"voice missing, no braille", VoiceNotFound("v"), &Error{Kind: KindNoBrailleBackends}, KindVoiceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(mergeOutput(tt.speech, tt.braille)))
		})
	}
}

func TestListings(t *testing.T) {
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data"}, rate: 8000}
	native := &fakeAudioOutput{fakeBackend: fakeBackend{name: "Native"}}
	reader := &fakeScreenReader{fakeAudioOutput: fakeAudioOutput{fakeBackend: fakeBackend{name: "Reader"}}, priority: 0}
	display := &fakeBraille{fakeBackend: fakeBackend{name: "Display"}, priority: 4}
	o, _, _ := newTestOutput(t, factoryFor(data), factoryFor(native), factoryFor(reader), factoryFor(display))

	synths, err := o.ListSpeechSynthesizers()
	require.NoError(t, err)
	assert.Equal(t, []SpeechSynthesizerMetadata{
		{Name: "Data", SupportsSpeakingToAudioData: true, SupportsSpeechParameters: true},
		{Name: "Native"},
		{Name: "Reader"},
	}, synths)

	synths, err = o.ListSpeechSynthesizersSupportingAudioData()
	require.NoError(t, err)
	assert.Equal(t, []SpeechSynthesizerMetadata{
		{Name: "Data", SupportsSpeakingToAudioData: true, SupportsSpeechParameters: true},
	}, synths)

	braille, err := o.ListBrailleBackends()
	require.NoError(t, err)
	assert.Equal(t, []BrailleBackendMetadata{
		{Name: "Reader", Priority: 0},
		{Name: "Display", Priority: 4},
	}, braille)
}

func TestListVoices_IsFreshOnEveryCall(t *testing.T) {
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data", voices: []Voice{voice("a", 0)}}, rate: 8000}
	o, _, _ := newTestOutput(t, factoryFor(data))

	voices, err := o.ListVoices(VoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, voices, 1)

	_, err = submit(o.d, "test_add_voice", func(s *state) (struct{}, error) {
		data.voices = append(data.voices, voice("b", 0))
		return struct{}{}, nil
	})
	require.NoError(t, err)

	voices, err = o.ListVoices(VoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, voices, 2)
}

func TestClose(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	sink := &fakeSink{}
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Data"}, rate: 8000}
	o, err := New(
		WithFactories(factoryFor(data)),
		WithSink(func() (AudioSink, error) { return sink, nil }),
		WithLogger(log),
	)
	require.NoError(t, err)

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.EqualValues(t, 1, data.closed)
	sink.mu.Lock()
	assert.True(t, sink.closed)
	sink.mu.Unlock()

	_, err = o.SpeakToAudioData(Speech{Backend: "Data"}, "hello")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.ErrorIs(t, o.StopSpeech(""), ErrUnknown)
	assert.Equal(t, 0, data.callCount())
}

func TestClose_WaitsForRunningWork(t *testing.T) {
	data := &fakeAudioData{fakeBackend: fakeBackend{name: "Slow"}, rate: 8000, delay: 50 * time.Millisecond}
	o, _, _ := newTestOutput(t, factoryFor(data))

	done := make(chan error, 1)
	go func() {
		_, err := o.SpeakToAudioData(Speech{Backend: "Slow"}, "hello")
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&data.inFlight) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, o.Close())
	assert.EqualValues(t, 1, atomic.LoadInt32(&data.closed))
	assert.NoError(t, <-done)
}
