package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/bus"
	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/normalize"
	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
)

var version = "0.1.0-dev"

const usage = `usage: tonevoice <command> [flags]

commands:
  normalize              rewrite stdin with the built-in table and user dictionary
  analyze <file.wav>     report total and active speech seconds
  start|stop|toggle      drive the running daemon over the bus
  recopy                 copy the last transcript to the clipboard again
  status                 print the daemon's session state
  dictionary init        create the user dictionary template
  version                print version`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "normalize":
		err = cmdNormalize(os.Args[2:])
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case protocol.ActionStart, protocol.ActionStop, protocol.ActionToggle, protocol.ActionRecopy, protocol.ActionStatus:
		err = cmdControl(cmd, os.Args[2:])
	case "dictionary":
		err = cmdDictionary(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cmdNormalize(args []string) error {
	flags := flag.NewFlagSet("normalize", flag.ExitOnError)
	configPath := flags.String("config", "", "Path to configuration file")
	dictPath := flags.String("dict", "", "Dictionary file (overrides config)")
	_ = flags.Parse(args)

	if *dictPath == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		*dictPath = cfg.Dictionary.Path
	}
	return runNormalize(os.Stdin, os.Stdout, *dictPath)
}

func runNormalize(in io.Reader, out io.Writer, dictPath string) error {
	rules, err := normalize.LoadDictionary(dictPath)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	_, err = io.WriteString(out, normalize.Normalize(string(data), rules))
	return err
}

func cmdAnalyze(args []string) error {
	flags := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := flags.String("config", "", "Path to configuration file")
	level := flags.String("sensitivity", "", "relaxed|balanced|strict|very_strict (default from config)")
	minSpeech := flags.Float64("min-speech", 0, "Seconds of speech required to transcribe (default from config)")
	_ = flags.Parse(args)
	if flags.NArg() != 1 {
		return errors.New("analyze expects exactly one WAV file")
	}
	sensitivity, threshold, err := analyzeSettings(*configPath, *level, *minSpeech)
	if err != nil {
		return err
	}
	return runAnalyze(os.Stdout, flags.Arg(0), sensitivity, threshold)
}

// analyzeSettings fills unset flags from the daemon configuration so the
// verdict matches what a live session would decide.
func analyzeSettings(configPath, level string, minSpeech float64) (string, float64, error) {
	if level != "" && minSpeech > 0 {
		return level, minSpeech, nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", 0, err
	}
	if level == "" {
		level = cfg.Session.Sensitivity
	}
	if minSpeech <= 0 {
		minSpeech = cfg.Session.MinSpeechSeconds
	}
	return level, minSpeech, nil
}

func runAnalyze(out io.Writer, path, level string, minSpeech float64) error {
	sensitivity, err := silence.ParseSensitivity(level)
	if err != nil {
		return err
	}
	analysis, err := silence.Analyze(path, sensitivity.ThresholdDB())
	if err != nil {
		return err
	}
	verdict := "speech"
	if analysis.ActiveDuration < minSpeech {
		verdict = "silent"
	}
	_, err = fmt.Fprintf(out, "total=%.2fs active=%.2fs threshold=%.0fdB verdict=%s\n",
		analysis.TotalDuration, analysis.ActiveDuration, sensitivity.ThresholdDB(), verdict)
	return err
}

func cmdControl(action string, args []string) error {
	flags := flag.NewFlagSet(action, flag.ExitOnError)
	configPath := flags.String("config", "", "Path to configuration file")
	timeout := flags.Duration("timeout", 10*time.Second, "How long to wait for the daemon")
	_ = flags.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(ctx, cfg.Bus, "tonevoice-cli", logger)
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := bus.SendControl(ctx, client, action)
	if err != nil {
		return err
	}
	printReply(os.Stdout, reply)
	return nil
}

func printReply(out io.Writer, reply protocol.ControlReply) {
	fmt.Fprintf(out, "state: %s\n", reply.State)
	if reply.SessionID != "" {
		fmt.Fprintf(out, "session: %s\n", reply.SessionID)
	}
	if reply.LastTranscript != "" {
		fmt.Fprintf(out, "last transcript: %s\n", reply.LastTranscript)
	}
}

func cmdDictionary(args []string) error {
	if len(args) == 0 || args[0] != "init" {
		return errors.New("expected 'dictionary init'")
	}
	flags := flag.NewFlagSet("dictionary init", flag.ExitOnError)
	configPath := flags.String("config", "", "Path to configuration file")
	path := flags.String("path", "", "Dictionary file (overrides config)")
	_ = flags.Parse(args[1:])

	if *path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		*path = cfg.Dictionary.Path
	}
	if err := normalize.EnsureDictionaryFile(*path); err != nil {
		return err
	}
	fmt.Println(*path)
	return nil
}

// loadConfig uses tonevoice.yaml from the working directory when present
// and defaults otherwise.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		if _, err := os.Stat("tonevoice.yaml"); errors.Is(err, fs.ErrNotExist) {
			return config.Load("")
		}
		path = "tonevoice.yaml"
	}
	return config.Load(path)
}
