package stt

import (
	"context"
	"fmt"
	"os"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, req Request) (string, error) {
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return fmt.Sprintf("[mock transcript bytes=%d language=%s]", info.Size(), req.Language), nil
}
