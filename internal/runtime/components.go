package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/capture"
	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/delivery"
	"github.com/pipboy3000/usual-tone-of-voice/internal/llm"
	"github.com/pipboy3000/usual-tone-of-voice/internal/secrets"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
	"github.com/pipboy3000/usual-tone-of-voice/internal/stt"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func buildRecorder(cfg config.CaptureConfig, logger *slog.Logger) (capture.Recorder, error) {
	switch cfg.Mode {
	case "portaudio":
		return capture.NewPortAudioRecorder(cfg.RecordingsDir, cfg.SampleRate, cfg.Channels, logger)
	default:
		return capture.NewExecRecorder(capture.ExecOptions{
			Command:     cfg.Command,
			Dir:         cfg.RecordingsDir,
			SampleRate:  cfg.SampleRate,
			Channels:    cfg.Channels,
			StopTimeout: millis(cfg.StopTimeoutMS),
		}, logger)
	}
}

func buildRecognizer(cfg config.STTConfig) (stt.Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return stt.NewMockRecognizer(), nil
	case "whispercpp":
		return stt.NewWhisperCppRecognizer()
	default:
		return stt.NewExecRecognizer(cfg.Command)
	}
}

func decodingParams(cfg config.STTConfig) stt.DecodingParams {
	return stt.DecodingParams{
		BeamSize:       cfg.BeamSize,
		BestOf:         cfg.BestOf,
		Temperature:    cfg.Temperature,
		TemperatureInc: cfg.TemperatureInc,
		NoFallback:     cfg.NoFallback,
		Threads:        cfg.Threads,
		ChunkSeconds:   cfg.ChunkSeconds,
	}
}

// buildEnhancer returns nil when the rewrite stage is disabled.
func buildEnhancer(cfg config.RewriteConfig, logger *slog.Logger) (*llm.Coordinator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	timeout := millis(cfg.TimeoutMS)
	var backend llm.Enhancer
	switch cfg.Mode {
	case "mock":
		backend = llm.NewMockEnhancer()
	case "exec":
		runner, err := llm.NewExecEnhancer(cfg.Command)
		if err != nil {
			return nil, err
		}
		backend = runner
	default:
		backend = llm.NewResponsesClient(cfg.Endpoint, timeout)
	}
	return llm.NewCoordinator(backend, timeout, logger), nil
}

// buildKeys resolves the API key lazily so a key exported after startup is
// still picked up. Mock and exec backends need no key, so they get a
// placeholder.
func buildKeys(cfg config.RewriteConfig) session.KeyStore {
	switch cfg.Mode {
	case "mock", "exec":
		return secrets.Static("local")
	default:
		return secrets.Env{Var: cfg.APIKeyEnv}
	}
}

func buildDispatcher(cfg config.DeliveryConfig, logger *slog.Logger) (*delivery.Dispatcher, error) {
	return delivery.NewDispatcher(delivery.SystemClipboard(), cfg.PasteCommand, millis(cfg.PasteDelayMS), logger)
}

func buildPermissions(cfg config.PermissionsConfig) (session.PermissionProvider, error) {
	if strings.TrimSpace(cfg.MicrophoneCheck) == "" {
		return session.AllowMicrophone{}, nil
	}
	return session.NewCommandPermission(cfg.MicrophoneCheck)
}

func buildPrompter(cfg config.SessionConfig) (session.SilencePrompter, error) {
	if strings.TrimSpace(cfg.PromptCommand) == "" {
		return session.AutoStop{}, nil
	}
	return session.NewCommandPrompter(cfg.PromptCommand)
}

// settingsSource snapshots the configured session defaults.
func settingsSource(cfg config.Config) (session.StaticSettings, error) {
	sensitivity, err := silence.ParseSensitivity(cfg.Session.Sensitivity)
	if err != nil {
		return session.StaticSettings{}, err
	}
	return session.StaticSettings{
		Language:       cfg.Session.Language,
		AutoPaste:      cfg.Session.AutoPaste,
		RewriteEnabled: cfg.Rewrite.Enabled,
		Sensitivity:    sensitivity,
		Model:          cfg.Rewrite.Model,
		Instructions:   cfg.Rewrite.Instructions,
		InitialPrompt:  cfg.STT.InitialPrompt,
	}, nil
}

func closeIfCloser(v any, logger *slog.Logger, what string) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn(fmt.Sprintf("%s close failed", what), slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
