// Package console shows Braille messages on a terminal for machines without
// a Braille display.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"murmur/pkg/output"
)

// Name is the backend name callers select the console display with.
const Name = "Console"

// Priority sorts the console behind every real display.
const Priority = 255

// brailleASCII is the North American Braille ASCII table. The cell for the
// character at index i is U+2800+i.
const brailleASCII = " A1B'K2L@CIF/MSP\"E3H9O6R^DJG>NTQ,*5<-U8V.%[$+X!&;:4\\0Z7(_?W]#Y)="

// Display writes each message as a line of Braille cells followed by the
// text it came from.
type Display struct {
	w     io.Writer
	cells *color.Color
	text  *color.Color
}

// Factory registers a console display writing to w.
func Factory(w io.Writer) output.Factory {
	return output.Factory{
		Name: Name,
		New: func() (output.Backend, error) {
			return New(w), nil
		},
	}
}

func New(w io.Writer) *Display {
	return &Display{
		w:     w,
		cells: color.New(color.FgHiCyan, color.Bold),
		text:  color.New(color.Faint),
	}
}

func (d *Display) Name() string { return Name }

func (d *Display) ListVoices() ([]output.Voice, error) { return nil, nil }

func (d *Display) BraillePriority() uint8 { return Priority }

func (d *Display) Braille(text string) error {
	line := strings.Join(strings.Fields(text), " ")
	if _, err := fmt.Fprintf(d.w, "%s  %s\n", d.cells.Sprint(Cells(line)), d.text.Sprint(line)); err != nil {
		return output.BrailleFailed(Name, errors.Wrap(err, "failed to write"))
	}
	return nil
}

// Cells transcribes text cell by cell using Braille ASCII. Characters the
// table lacks become a full cell.
func Cells(text string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(text) {
		i := strings.IndexRune(brailleASCII, r)
		if i < 0 {
			i = 0x3f
		}
		b.WriteRune(rune(0x2800 + i))
	}
	return b.String()
}
