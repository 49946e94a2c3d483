package llm

import (
	"context"
	"fmt"
)

// Request is one rewrite call against a language model backend.
type Request struct {
	Input        string
	APIKey       string
	Model        string
	Instructions string
}

// Enhancer rewrites a transcript and returns the model's text.
type Enhancer interface {
	Enhance(ctx context.Context, req Request) (string, error)
}

// RequestError reports a non-2xx answer from the model service.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm request failed with status %d: %s", e.StatusCode, e.Message)
}

// EmptyOutputError reports a successful answer that carried no text.
type EmptyOutputError struct {
	Status  string
	Reason  string
	Snippet string
}

func (e *EmptyOutputError) Error() string {
	msg := "llm returned empty output"
	if e.Status != "" {
		msg += " (status=" + e.Status
		if e.Reason != "" {
			msg += ", reason=" + e.Reason
		}
		msg += ")"
	}
	if e.Snippet != "" {
		msg += ": " + e.Snippet
	}
	return msg
}
