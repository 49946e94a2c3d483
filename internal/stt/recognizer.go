package stt

import (
	"context"
	"errors"
)

var (
	// ErrEngine reports a transcription run that failed or produced no
	// readable output.
	ErrEngine = errors.New("transcription engine failed")
	// ErrModelMissing reports a model path with nothing behind it.
	ErrModelMissing = errors.New("speech model not found")
	// ErrEngineUnavailable reports a missing binary or a backend not built in.
	ErrEngineUnavailable = errors.New("transcription engine unavailable")
)

// DecodingParams are passed through to the engine. Zero BeamSize or BestOf
// leaves the engine default.
type DecodingParams struct {
	BeamSize       int
	BestOf         int
	Temperature    float64
	TemperatureInc float64
	NoFallback     bool
	Threads        int
	// ChunkSeconds splits long recordings into consecutive pieces that are
	// transcribed one after another. Zero disables splitting.
	ChunkSeconds float64
}

// Request describes one finished recording to transcribe.
type Request struct {
	AudioPath string
	ModelPath string
	Language  string
	Prompt    string
	Params    DecodingParams
}

// Recognizer abstracts STT backends. Errors are returned as-is and never
// retried.
type Recognizer interface {
	Transcribe(ctx context.Context, req Request) (string, error)
}
