// Package cli implements the murmur command handlers.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"murmur/internal/cli/scheme/colours"
	"murmur/pkg/audio"
	"murmur/pkg/output"
)

// Facade is the part of *output.Output the commands use.
type Facade interface {
	ListVoices(output.VoiceFilter) ([]output.Voice, error)
	ListSpeechSynthesizers() ([]output.SpeechSynthesizerMetadata, error)
	ListSpeechSynthesizersSupportingAudioData() ([]output.SpeechSynthesizerMetadata, error)
	ListBrailleBackends() ([]output.BrailleBackendMetadata, error)
	SpeakToAudioData(sp output.Speech, text string) (*audio.SpeechResult, error)
	SpeakToAudioOutput(sp output.Speech, text string, interrupt bool) error
	StopSpeech(backend string) error
	Braille(backend, text string) error
	Output(sp output.Speech, brailleBackend, text string, interrupt bool) error
}

// App holds the facade and the configured defaults the commands start from.
type App struct {
	Output         Facade
	Speech         output.Speech
	BrailleBackend string

	out    io.Writer
	in     io.Reader
	ctx    context.Context
	Cancel context.CancelFunc
}

func NewApp(facade Facade, speech output.Speech, brailleBackend string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Output:         facade,
		Speech:         speech,
		BrailleBackend: brailleBackend,
		out:            os.Stdout,
		in:             os.Stdin,
		ctx:            ctx,
		Cancel:         cancel,
	}
}

// SetIO redirects command input and output.
func (a *App) SetIO(in io.Reader, out io.Writer) {
	a.in, a.out = in, out
}

// Commands returns the subcommands to add to the root command.
func (a *App) Commands() []*cobra.Command {
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "List voices",
		Long:  "List voices across all speech synthesizers, best first",
		Args:  cobra.NoArgs,
		RunE:  a.ListVoices,
	}
	voicesCmd.Flags().StringP("backend", "b", "", "Only voices of this backend")
	voicesCmd.Flags().StringP("voice", "v", "", "Only the voice with this name")
	voicesCmd.Flags().StringP("language", "l", "", "Only voices speaking this language")
	voicesCmd.Flags().Bool("audio-data", false, "Only voices that can return audio data")

	synthesizersCmd := &cobra.Command{
		Use:   "synthesizers",
		Short: "List speech synthesizers",
		Args:  cobra.NoArgs,
		RunE:  a.ListSynthesizers,
	}
	synthesizersCmd.Flags().Bool("audio-data", false, "Only synthesizers that can return audio data")

	brailleBackendsCmd := &cobra.Command{
		Use:   "braille-backends",
		Short: "List Braille backends",
		Args:  cobra.NoArgs,
		RunE:  a.ListBrailleBackends,
	}

	speakCmd := &cobra.Command{
		Use:   "speak TEXT",
		Short: "Speak text",
		Long:  "Speak text through the best matching voice, or write it to a WAV file with --out",
		Args:  cobra.ExactArgs(1),
		RunE:  a.Speak,
	}
	addSpeechFlags(speakCmd)
	speakCmd.Flags().StringP("out", "o", "", "Write audio to this WAV file instead of playing it")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop speech",
		Args:  cobra.NoArgs,
		RunE:  a.Stop,
	}
	stopCmd.Flags().StringP("backend", "b", "", "Only stop this backend")

	brailleCmd := &cobra.Command{
		Use:   "braille TEXT",
		Short: "Show text on a Braille display",
		Args:  cobra.ExactArgs(1),
		RunE:  a.Braille,
	}
	brailleCmd.Flags().StringP("backend", "b", "", "Braille backend to use")

	outputCmd := &cobra.Command{
		Use:   "output TEXT",
		Short: "Speak text and show it in Braille",
		Args:  cobra.ExactArgs(1),
		RunE:  a.SpeakAndBraille,
	}
	addSpeechFlags(outputCmd)
	outputCmd.Flags().String("braille-backend", "", "Braille backend to use")

	return []*cobra.Command{voicesCmd, synthesizersCmd, brailleBackendsCmd, speakCmd, stopCmd, brailleCmd, outputCmd}
}

func addSpeechFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("backend", "b", "", "Speech backend to use")
	cmd.Flags().StringP("voice", "v", "", "Voice to use")
	cmd.Flags().StringP("language", "l", "", "Language to speak")
	cmd.Flags().Uint8("rate", output.DefaultRate, "Speech rate, 0 to 100")
	cmd.Flags().Uint8("volume", output.DefaultVolume, "Speech volume, 0 to 100")
	cmd.Flags().Uint8("pitch", output.DefaultPitch, "Speech pitch, 0 to 100")
	cmd.Flags().BoolP("interrupt", "i", false, "Interrupt speech in progress")
	cmd.Flags().Duration("wait", 0, "Keep running this long instead of waiting for Enter")
}

// speech applies the flags the user set on top of the configured defaults.
func (a *App) speech(cmd *cobra.Command) output.Speech {
	sp := a.Speech
	flags := cmd.Flags()
	if flags.Changed("backend") {
		sp.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("voice") {
		sp.Voice, _ = flags.GetString("voice")
	}
	if flags.Changed("language") {
		sp.Language, _ = flags.GetString("language")
	}
	for name, field := range map[string]**uint8{"rate": &sp.Rate, "volume": &sp.Volume, "pitch": &sp.Pitch} {
		if flags.Changed(name) {
			v, _ := flags.GetUint8(name)
			*field = output.Level(v)
		}
	}
	return sp
}

func (a *App) ListVoices(cmd *cobra.Command, args []string) error {
	var f output.VoiceFilter
	f.Backend, _ = cmd.Flags().GetString("backend")
	f.Voice, _ = cmd.Flags().GetString("voice")
	f.Language, _ = cmd.Flags().GetString("language")
	f.NeedsAudioData, _ = cmd.Flags().GetBool("audio-data")

	voices, err := a.Output.ListVoices(f)
	if err != nil {
		return err
	}
	colours.Title.Fprintln(a.out, "Voices")
	if len(voices) == 0 {
		colours.Warning.Fprintln(a.out, "No voices found matching your criteria.")
		return nil
	}
	for i, v := range voices {
		fmt.Fprintf(a.out, "  %d. %s ", i+1, v.DisplayName)
		colours.Backend.Fprintf(a.out, "[%s]", v.Synthesizer.Name)
		fmt.Fprintln(a.out)
		languages := "any"
		if len(v.Languages) > 0 {
			languages = strings.Join(v.Languages, ", ")
		}
		colours.Muted.Fprintf(a.out, "     name: %s | languages: %s | priority: %d\n", v.Name, languages, v.Priority)
	}
	colours.Success.Fprintf(a.out, "Found %d voices\n", len(voices))
	return nil
}

func (a *App) ListSynthesizers(cmd *cobra.Command, args []string) error {
	audioData, _ := cmd.Flags().GetBool("audio-data")
	list := a.Output.ListSpeechSynthesizers
	if audioData {
		list = a.Output.ListSpeechSynthesizersSupportingAudioData
	}
	synthesizers, err := list()
	if err != nil {
		return err
	}
	colours.Title.Fprintln(a.out, "Speech synthesizers")
	for _, s := range synthesizers {
		colours.Backend.Fprintf(a.out, "  %s", s.Name)
		colours.Muted.Fprintf(a.out, " (audio data: %s, parameters: %s)\n", yesNo(s.SupportsSpeakingToAudioData), yesNo(s.SupportsSpeechParameters))
	}
	if len(synthesizers) == 0 {
		colours.Warning.Fprintln(a.out, "No speech synthesizers available.")
	}
	return nil
}

func (a *App) ListBrailleBackends(cmd *cobra.Command, args []string) error {
	backends, err := a.Output.ListBrailleBackends()
	if err != nil {
		return err
	}
	colours.Title.Fprintln(a.out, "Braille backends")
	for _, b := range backends {
		colours.Backend.Fprintf(a.out, "  %s", b.Name)
		colours.Muted.Fprintf(a.out, " (priority %d)\n", b.Priority)
	}
	if len(backends) == 0 {
		colours.Warning.Fprintln(a.out, "No Braille backends available.")
	}
	return nil
}

func (a *App) Speak(cmd *cobra.Command, args []string) error {
	sp := a.speech(cmd)
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		return a.writeAudio(sp, args[0], path)
	}
	interrupt, _ := cmd.Flags().GetBool("interrupt")
	if err := a.Output.SpeakToAudioOutput(sp, args[0], interrupt); err != nil {
		return err
	}
	return a.waitForSpeech(cmd)
}

func (a *App) writeAudio(sp output.Speech, text, path string) error {
	res, err := a.Output.SpeakToAudioData(sp, text)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := audio.EncodeWAV(f, res); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	colours.Success.Fprintf(a.out, "Wrote %s (%s, %d Hz)\n", path, res.Duration().Round(time.Millisecond), res.SampleRate)
	return nil
}

func (a *App) Stop(cmd *cobra.Command, args []string) error {
	backend, _ := cmd.Flags().GetString("backend")
	if err := a.Output.StopSpeech(backend); err != nil {
		return err
	}
	colours.Warning.Fprintln(a.out, "Stopped")
	return nil
}

func (a *App) Braille(cmd *cobra.Command, args []string) error {
	backend := a.BrailleBackend
	if cmd.Flags().Changed("backend") {
		backend, _ = cmd.Flags().GetString("backend")
	}
	return a.Output.Braille(backend, args[0])
}

func (a *App) SpeakAndBraille(cmd *cobra.Command, args []string) error {
	brailleBackend := a.BrailleBackend
	if cmd.Flags().Changed("braille-backend") {
		brailleBackend, _ = cmd.Flags().GetString("braille-backend")
	}
	interrupt, _ := cmd.Flags().GetBool("interrupt")
	if err := a.Output.Output(a.speech(cmd), brailleBackend, args[0], interrupt); err != nil {
		return err
	}
	return a.waitForSpeech(cmd)
}

// waitForSpeech keeps the process alive while speech plays. Speech stops when
// the user enters 's', input ends, the wait elapses or the app is cancelled.
func (a *App) waitForSpeech(cmd *cobra.Command) error {
	var timeout <-chan time.Time
	if wait, _ := cmd.Flags().GetDuration("wait"); wait > 0 {
		timeout = time.After(wait)
	} else {
		colours.Prompt.Fprintln(a.out, "Press Enter when done, or 's' to stop")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(a.in)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			select {
			case lines <- strings.TrimSpace(strings.ToLower(line)):
			case <-a.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			return nil
		case <-timeout:
			return nil
		case line, ok := <-lines:
			if !ok {
				if timeout == nil {
					return nil
				}
				lines = nil
				continue
			}
			switch line {
			case "s", "stop":
				if err := a.Output.StopSpeech(""); err != nil {
					return err
				}
				colours.Warning.Fprintln(a.out, "Stopped")
				return nil
			case "":
				if timeout == nil {
					return nil
				}
			default:
				colours.Info.Fprintln(a.out, "Use Enter to finish or 's' to stop")
			}
		}
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
