//go:build windows

package nvda

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"murmur/pkg/output"
)

// Controller wraps the functions exported by nvdaControllerClient.
type Controller struct {
	dll            *windows.LazyDLL
	testIfRunning  *windows.LazyProc
	speakText      *windows.LazyProc
	cancelSpeech   *windows.LazyProc
	brailleMessage *windows.LazyProc
}

// Factory registers NVDA. An empty library uses the client next to the
// executable or on the DLL search path.
func Factory(library string) output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			c, err := New(library)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// New loads the client library and fails unless NVDA is running.
func New(library string) (*Controller, error) {
	if library == "" {
		library = libraryName(runtime.GOARCH)
	}
	dll := windows.NewLazyDLL(library)
	if err := dll.Load(); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", library)
	}
	c := &Controller{
		dll:            dll,
		testIfRunning:  dll.NewProc("nvdaController_testIfRunning"),
		speakText:      dll.NewProc("nvdaController_speakText"),
		cancelSpeech:   dll.NewProc("nvdaController_cancelSpeech"),
		brailleMessage: dll.NewProc("nvdaController_brailleMessage"),
	}
	if err := c.call(c.testIfRunning); err != nil {
		return nil, errors.Wrap(err, "NVDA is not running")
	}
	return c, nil
}

// call invokes proc with optional text and maps the returned error_status_t.
func (c *Controller) call(proc *windows.LazyProc, text ...string) error {
	if err := proc.Find(); err != nil {
		return err
	}
	var args []uintptr
	for _, t := range text {
		p, err := windows.UTF16PtrFromString(t)
		if err != nil {
			return err
		}
		args = append(args, uintptr(unsafe.Pointer(p)))
	}
	status, _, _ := proc.Call(args...)
	if status != 0 {
		return windows.Errno(status)
	}
	return nil
}

func (c *Controller) Name() string { return Name }

func (c *Controller) ListVoices() ([]output.Voice, error) { return voices(), nil }

func (c *Controller) SupportsSpeechParameters() bool { return false }

func (c *Controller) SpeakToAudioOutput(_ output.Params, text string, interrupt bool) error {
	if interrupt {
		if err := c.call(c.cancelSpeech); err != nil {
			return output.StopSpeechFailed(Name, err)
		}
	}
	if err := c.call(c.speakText, text); err != nil {
		return output.SpeakFailed(Name, voiceName, err)
	}
	return nil
}

func (c *Controller) StopSpeech() error {
	if err := c.call(c.cancelSpeech); err != nil {
		return output.StopSpeechFailed(Name, err)
	}
	return nil
}

func (c *Controller) BraillePriority() uint8 { return braillePriority }

func (c *Controller) Braille(text string) error {
	if err := c.call(c.brailleMessage, text); err != nil {
		return output.BrailleFailed(Name, err)
	}
	return nil
}
