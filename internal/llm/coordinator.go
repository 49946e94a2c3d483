package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// BaseInstructions is always sent first. User additions follow it after
// InstructionSeparator and never replace it.
const BaseInstructions = "あなたは音声入力の書き起こしを、読みやすい文章に整形する変換器です。\n内容の追加や推測はせず、質問に答えたり解説しません。\n口調と意味を保ちつつ、句読点や改行を整えて出力は本文のみとします。"

const InstructionSeparator = "\n\n---\n"

// ComposeInstructions joins the base instruction with a non-blank user
// addition.
func ComposeInstructions(user string) string {
	if strings.TrimSpace(user) == "" {
		return BaseInstructions
	}
	return BaseInstructions + InstructionSeparator + user
}

// Options carries the per-session rewrite settings.
type Options struct {
	Enabled      bool
	APIKey       string
	Model        string
	Instructions string
}

// Outcome is the text to deliver. Warning is set when the rewrite failed
// and Text is the unmodified input.
type Outcome struct {
	Text     string
	Enhanced bool
	Warning  error
}

// Coordinator runs the optional rewrite stage. It never turns a transcript
// into an error: failures degrade to the input text.
type Coordinator struct {
	enhancer Enhancer
	timeout  time.Duration
	logger   *slog.Logger
}

func NewCoordinator(enhancer Enhancer, timeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		enhancer: enhancer,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "rewrite")),
	}
}

// Enhance sends transcript to the model with the composed instructions.
func (c *Coordinator) Enhance(ctx context.Context, transcript, apiKey, model, userInstructions string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.enhancer.Enhance(ctx, Request{
		Input:        transcript,
		APIKey:       apiKey,
		Model:        strings.TrimSpace(model),
		Instructions: ComposeInstructions(userInstructions),
	})
}

// Rewrite applies Enhance when enabled and keyed, falling back to text on
// any failure.
func (c *Coordinator) Rewrite(ctx context.Context, text string, opts Options) Outcome {
	if c == nil || c.enhancer == nil || !opts.Enabled {
		return Outcome{Text: text}
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		c.logger.Debug("rewrite skipped: no api key configured")
		return Outcome{Text: text}
	}
	if strings.TrimSpace(text) == "" {
		return Outcome{Text: text}
	}

	start := time.Now()
	enhanced, err := c.Enhance(ctx, text, opts.APIKey, opts.Model, opts.Instructions)
	if err != nil {
		c.logger.Warn("rewrite failed, delivering normalized text", slogError(err), slog.String("model", opts.Model))
		return Outcome{Text: text, Warning: err}
	}
	c.logger.Info("rewrite complete", slog.String("model", opts.Model), slog.Duration("latency", time.Since(start)))
	return Outcome{Text: enhanced, Enhanced: true}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
