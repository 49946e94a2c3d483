//go:build whisper

package stt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperCppRecognizer runs whisper.cpp in process. Models are loaded lazily
// and kept until Close.
type whisperCppRecognizer struct {
	mu     sync.Mutex
	models map[string]whisper.Model
}

func NewWhisperCppRecognizer() (Recognizer, error) {
	return &whisperCppRecognizer{models: make(map[string]whisper.Model)}, nil
}

func (r *whisperCppRecognizer) model(path string) (whisper.Model, error) {
	if m, ok := r.models[path]; ok {
		return m, nil
	}
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load model: %v", ErrEngine, err)
	}
	r.models[path] = m
	return m, nil
}

func (r *whisperCppRecognizer) Transcribe(ctx context.Context, req Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkModel(req.ModelPath); err != nil {
		return "", err
	}
	samples, err := LoadPCM(req.AudioPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	model, err := r.model(req.ModelPath)
	if err != nil {
		return "", err
	}
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: create context: %v", ErrEngine, err)
	}

	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("%w: set language %q: %v", ErrEngine, lang, err)
	}
	if req.Params.Threads > 0 {
		wctx.SetThreads(uint(req.Params.Threads))
	}
	if req.Params.BeamSize > 0 {
		wctx.SetBeamSize(req.Params.BeamSize)
	}
	wctx.SetTemperature(float32(req.Params.Temperature))
	if !req.Params.NoFallback {
		wctx.SetTemperatureFallback(float32(req.Params.TemperatureInc))
	}
	if strings.TrimSpace(req.Prompt) != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process: %v", ErrEngine, err)
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: segment: %v", ErrEngine, err)
		}
		text.WriteString(segment.Text)
	}
	return strings.TrimSpace(text.String()), nil
}

func (r *whisperCppRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for path, m := range r.models {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.models, path)
	}
	return firstErr
}
