package llm

import (
	"context"
	"strings"
	"time"
)

type mockEnhancer struct{}

// NewMockEnhancer returns an Enhancer that trims the input after a short
// delay. It never calls out.
func NewMockEnhancer() Enhancer { return &mockEnhancer{} }

func (m *mockEnhancer) Enhance(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	text := strings.TrimSpace(req.Input)
	if text == "" {
		return "", &EmptyOutputError{Status: "completed"}
	}
	return text, nil
}
