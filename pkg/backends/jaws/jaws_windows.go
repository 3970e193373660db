//go:build windows

package jaws

import (
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"murmur/pkg/output"
)

const (
	progID      = "FreedomSci.JawsApi"
	windowClass = "JFWUI2"
	sFalse      = 1
)

var procFindWindow = windows.NewLazySystemDLL("user32.dll").NewProc("FindWindowW")

// ScreenReader speaks and brailles through a running JAWS instance.
type ScreenReader struct {
	api *ole.IDispatch
}

// Factory registers JAWS.
func Factory() output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			s, err := New()
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// New fails unless the JAWS window is present.
func New() (*ScreenReader, error) {
	if !running() {
		return nil, errors.New("JAWS is not running")
	}
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			return nil, errors.Wrap(err, "failed to initialize COM")
		}
	}
	unknown, err := oleutil.CreateObject(progID)
	if err != nil {
		ole.CoUninitialize()
		return nil, errors.Wrapf(err, "failed to create %s", progID)
	}
	defer unknown.Release()
	api, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		ole.CoUninitialize()
		return nil, errors.Wrap(err, "QueryInterface JawsApi failed")
	}
	return &ScreenReader{api: api}, nil
}

func running() bool {
	class, err := windows.UTF16PtrFromString(windowClass)
	if err != nil {
		return false
	}
	hwnd, _, _ := procFindWindow.Call(uintptr(unsafe.Pointer(class)), 0)
	return hwnd != 0
}

func (s *ScreenReader) Name() string { return Name }

func (s *ScreenReader) ListVoices() ([]output.Voice, error) { return voices(), nil }

func (s *ScreenReader) SupportsSpeechParameters() bool { return false }

func (s *ScreenReader) SpeakToAudioOutput(_ output.Params, text string, interrupt bool) error {
	ok, err := s.call("SayString", text, interrupt)
	if err != nil {
		return output.SpeakFailed(Name, voiceName, err)
	}
	if !ok {
		return output.SpeakFailed(Name, voiceName, errors.New("JAWS failed to speak"))
	}
	return nil
}

func (s *ScreenReader) StopSpeech() error {
	if _, err := oleutil.CallMethod(s.api, "StopSpeech"); err != nil {
		return output.StopSpeechFailed(Name, err)
	}
	return nil
}

func (s *ScreenReader) BraillePriority() uint8 { return braillePriority }

func (s *ScreenReader) Braille(text string) error {
	ok, err := s.call("RunFunction", brailleFunction(text))
	if err != nil {
		return output.BrailleFailed(Name, err)
	}
	if !ok {
		return output.BrailleFailed(Name, errors.New("JAWS failed to Braille the message"))
	}
	return nil
}

func (s *ScreenReader) call(method string, args ...interface{}) (bool, error) {
	result, err := oleutil.CallMethod(s.api, method, args...)
	if err != nil {
		return false, err
	}
	defer result.Clear()
	ok, _ := result.Value().(bool)
	return ok, nil
}

func (s *ScreenReader) Close() error {
	s.api.Release()
	ole.CoUninitialize()
	return nil
}
