package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"murmur/internal/cli"
	"murmur/internal/cli/scheme/colours"
	"murmur/internal/config"
	"murmur/pkg/backends"
	"murmur/pkg/output"
)

func main() {
	cfg, err := config.Load(config.New())
	if err != nil {
		colours.Error.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(cfg.LogLevel())

	speech, err := cfg.SpeechRequest()
	if err != nil {
		colours.Error.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	out, err := output.New(output.WithFactories(backends.Factories(cfg.BackendConfig(os.Stdout))...))
	if err != nil {
		colours.Error.Printf("Error: %v\n", err)
		os.Exit(output.Code(err))
	}

	app := cli.NewApp(out, speech, cfg.Braille.Backend)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Cancel()
		if err := out.StopSpeech(""); err != nil {
			logrus.WithError(err).Debug("Failed to stop speech")
		}
		fmt.Println()
		colours.Warning.Println("Stopped")
	}()

	rootCmd := &cobra.Command{
		Use:           "murmur",
		Short:         "Speak and Braille text through the platform's engines",
		Long:          "murmur routes text to the speech synthesizers and Braille displays available on this machine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(app.Commands()...)

	code := 0
	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("Error: %v\n", err)
		code = output.Code(err)
	}
	if err := out.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close output")
	}
	os.Exit(code)
}
