package session

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/pipboy3000/usual-tone-of-voice/internal/delivery"
	"github.com/pipboy3000/usual-tone-of-voice/internal/llm"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
)

// PermissionProvider answers whether the microphone may be used.
type PermissionProvider interface {
	MicrophoneAccess(ctx context.Context) (bool, error)
}

// SilencePrompter asks the user whether to stop a recording that has been
// silent for a while. It may block until the user answers.
type SilencePrompter interface {
	AskStop(ctx context.Context, sessionID string, silent time.Duration) (silence.Choice, error)
}

// TextRewriter is the deterministic normalization pass.
type TextRewriter interface {
	Rewrite(text string) string
}

// Enhancer is the optional model rewrite pass. It never fails; problems come
// back as Outcome.Warning.
type Enhancer interface {
	Rewrite(ctx context.Context, text string, opts llm.Options) llm.Outcome
}

// Deliverer puts text where the user wants it.
type Deliverer interface {
	Dispatch(ctx context.Context, text string, autoPaste bool) (delivery.Result, error)
}

// KeyStore provides the rewrite API key at session time.
type KeyStore interface {
	APIKey() (string, error)
}

// AllowMicrophone grants access unconditionally.
type AllowMicrophone struct{}

func (AllowMicrophone) MicrophoneAccess(context.Context) (bool, error) { return true, nil }

// CommandPermission runs a probe command; exit status zero grants access and
// any other exit status denies it.
type CommandPermission struct {
	argv []string
}

func NewCommandPermission(command string) (*CommandPermission, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse permission command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("permission command empty")
	}
	return &CommandPermission{argv: args}, nil
}

func (p *CommandPermission) MicrophoneAccess(ctx context.Context) (bool, error) {
	err := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// AutoStop answers every prompt with Stop.
type AutoStop struct{}

func (AutoStop) AskStop(context.Context, string, time.Duration) (silence.Choice, error) {
	return silence.Stop, nil
}

// CommandPrompter runs a dialog command with the session id and the silent
// seconds appended. Exit status zero means stop; non-zero means continue.
type CommandPrompter struct {
	argv []string
}

func NewCommandPrompter(command string) (*CommandPrompter, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse prompt command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("prompt command empty")
	}
	return &CommandPrompter{argv: args}, nil
}

func (p *CommandPrompter) AskStop(ctx context.Context, sessionID string, silent time.Duration) (silence.Choice, error) {
	args := append([]string{}, p.argv[1:]...)
	args = append(args, sessionID, strconv.Itoa(int(silent.Seconds())))
	err := exec.CommandContext(ctx, p.argv[0], args...).Run()
	if err == nil {
		return silence.Stop, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return silence.Continue, nil
	}
	return silence.Continue, err
}
