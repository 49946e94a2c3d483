package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEnhancer runs a local command per request. The request goes in as JSON
// on stdin and the command answers with {"text": "..."} on stdout.
type execEnhancer struct {
	cmd []string
	mu  sync.Mutex
}

type execPayload struct {
	Model           string   `json:"model"`
	Input           string   `json:"input"`
	Instructions    string   `json:"instructions,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type execResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func NewExecEnhancer(command string) (Enhancer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse rewrite command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("rewrite command empty")
	}
	return &execEnhancer{cmd: args}, nil
}

func (e *execEnhancer) Enhance(ctx context.Context, req Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	profile := ProfileFor(req.Model)
	input, err := json.Marshal(execPayload{
		Model:           req.Model,
		Input:           req.Input,
		Instructions:    req.Instructions,
		MaxOutputTokens: profile.MaxOutputTokens,
		Temperature:     profile.Temperature,
	})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", &RequestError{Message: strings.TrimSpace(fmt.Sprintf("%v: %s", err, stderr.String()))}
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode rewrite exec response: %w", err)
	}
	if resp.Error != "" {
		return "", &RequestError{Message: resp.Error}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &EmptyOutputError{Snippet: snippet(output)}
	}
	return text, nil
}
