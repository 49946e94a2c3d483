// Package session sequences one push-to-talk capture through silence
// analysis, transcription, text rewriting and delivery.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pipboy3000/usual-tone-of-voice/internal/capture"
	"github.com/pipboy3000/usual-tone-of-voice/internal/llm"
	"github.com/pipboy3000/usual-tone-of-voice/internal/normalize"
	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
	"github.com/pipboy3000/usual-tone-of-voice/internal/stt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPollInterval     = time.Second
	DefaultPromptAfter      = 90 * time.Second
	DefaultMinSpeechSeconds = 0.35
)

// Deps are the collaborators a Controller drives. Recorder, Recognizer and
// Delivery are required.
type Deps struct {
	Recorder    capture.Recorder
	Permissions PermissionProvider
	Prompter    SilencePrompter
	Recognizer  stt.Recognizer
	Rewriter    TextRewriter
	Enhancer    Enhancer
	Delivery    Deliverer
	Keys        KeyStore
	Settings    SettingsSource
	Sink        EventSink
}

type Options struct {
	ModelPath        string
	Decoding         stt.DecodingParams
	MinSpeechSeconds float64
	PollInterval     time.Duration
	PromptAfter      time.Duration
}

// Controller is the session state machine. All transitions run on the
// goroutine executing Run; the exported methods submit work to it and wait.
type Controller struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	metrics *metrics

	cmds    chan func()
	stopped chan struct{}
	running atomic.Bool
	workers sync.WaitGroup

	// owned by the Run goroutine
	runCtx  context.Context
	state   State
	current *Session
	ticker  *time.Ticker
	tickC   <-chan time.Time
	last    string

	statusMu sync.RWMutex
	status   Status

	now   func() time.Time
	newID func() string
}

func NewController(deps Deps, opts Options, logger *slog.Logger) (*Controller, error) {
	if deps.Recorder == nil || deps.Recognizer == nil || deps.Delivery == nil {
		return nil, errors.New("session controller requires a recorder, a recognizer and a delivery target")
	}
	if deps.Permissions == nil {
		deps.Permissions = AllowMicrophone{}
	}
	if deps.Prompter == nil {
		deps.Prompter = AutoStop{}
	}
	if deps.Rewriter == nil {
		deps.Rewriter = normalize.NewRewriter(nil)
	}
	if deps.Settings == nil {
		deps.Settings = StaticSettings{Sensitivity: silence.Balanced}
	}
	if deps.Sink == nil {
		deps.Sink = MultiSink{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PromptAfter <= 0 {
		opts.PromptAfter = DefaultPromptAfter
	}
	if opts.MinSpeechSeconds <= 0 {
		opts.MinSpeechSeconds = DefaultMinSpeechSeconds
	}
	c := &Controller{
		deps:    deps,
		opts:    opts,
		logger:  logger.With(slog.String("component", "session")),
		metrics: newMetrics(),
		cmds:    make(chan func()),
		stopped: make(chan struct{}),
		runCtx:  context.Background(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	c.status = Status{State: StateIdle, StateName: StateIdle.String()}
	return c, nil
}

// Run processes transitions until ctx is cancelled. A recording still open
// at that point is stopped and deleted.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session controller already running")
	}
	c.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			close(c.stopped)
			c.workers.Wait()
			return nil
		case fn := <-c.cmds:
			fn()
		case <-c.tickC:
			c.onTick()
		}
	}
}

func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, func() error { return c.start(ctx) })
}

func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, func() error { return c.stop("user") })
}

// Toggle starts from Idle, stops from Recording and is ignored while
// Transcribing.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.do(ctx, func() error {
		switch c.state {
		case StateIdle:
			return c.start(ctx)
		case StateRecording:
			return c.stop("user")
		default:
			c.ignored("toggle")
			return nil
		}
	})
}

// Recopy puts the last produced transcript back on the clipboard.
func (c *Controller) Recopy(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.last == "" {
			return ErrNothingToRecopy
		}
		if _, err := c.deps.Delivery.Dispatch(ctx, c.last, false); err != nil {
			c.emit(Event{Type: EventError, Text: c.last, Err: err, Message: "Copy failed"})
			return err
		}
		c.emit(Event{Type: EventDelivered, Text: c.last, Message: "Copied to clipboard"})
		return nil
	})
}

// Execute runs a named control action as sent by remote clients.
func (c *Controller) Execute(ctx context.Context, action string) error {
	switch action {
	case protocol.ActionStart:
		return c.Start(ctx)
	case protocol.ActionStop:
		return c.Stop(ctx)
	case protocol.ActionToggle:
		return c.Toggle(ctx)
	case protocol.ActionRecopy:
		return c.Recopy(ctx)
	case protocol.ActionStatus:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Status is safe to call from any goroutine.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Controller) State() State { return c.Status().State }

func (c *Controller) LastTranscript() string { return c.Status().LastTranscript }

func (c *Controller) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	task := func() { errCh <- fn() }
	select {
	case c.cmds <- task:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// a received task always runs to completion before the loop moves on
	return <-errCh
}

// post hands a result from a background goroutine to the loop. It is
// dropped once the loop has exited.
func (c *Controller) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.stopped:
	}
}

func (c *Controller) start(ctx context.Context) error {
	if c.state != StateIdle {
		c.ignored("start")
		return nil
	}

	granted, err := c.deps.Permissions.MicrophoneAccess(ctx)
	if err != nil || !granted {
		denied := ErrPermissionDenied
		if err != nil {
			denied = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		c.emit(Event{Type: EventError, Err: denied, Message: "Microphone access denied"})
		return denied
	}

	settings := c.deps.Settings.Settings()
	rec, err := c.deps.Recorder.Start(ctx)
	if err != nil {
		failure := fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		c.emit(Event{Type: EventError, Err: failure, Message: "Failed to start recording"})
		return failure
	}

	sess := &Session{
		ID:        c.newID(),
		StartedAt: c.now(),
		Settings:  settings,
		Recording: rec,
	}
	if meter, ok := rec.(capture.PowerMeter); ok {
		sess.meter = meter
		sess.monitor = silence.NewMonitor(settings.Sensitivity.ThresholdDB(), c.opts.PollInterval, c.opts.PromptAfter)
		c.ticker = time.NewTicker(c.opts.PollInterval)
		c.tickC = c.ticker.C
	}
	c.current = sess
	c.setState(StateRecording)
	c.metrics.sessionStarted(ctx)
	c.emit(Event{Type: EventRecordingStarted, SessionID: sess.ID, Message: "Recording started"})
	return nil
}

func (c *Controller) stop(reason string) error {
	if c.state != StateRecording {
		c.ignored("stop")
		return nil
	}
	sess := c.current
	c.stopTicker()
	sess.monitor = nil
	sess.meter = nil

	if err := sess.Recording.Stop(); err != nil {
		removeRecording(sess.Recording.Path(), c.logger)
		failure := fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		c.current = nil
		c.setState(StateIdle)
		c.metrics.sessionFinished(c.runCtx, "failed", Classify(failure))
		c.emit(Event{Type: EventError, SessionID: sess.ID, Err: failure, Message: "No audio file captured"})
		return failure
	}

	c.setState(StateTranscribing)
	c.emit(Event{Type: EventRecordingStopped, SessionID: sess.ID, Message: reason})

	j := job{
		id:       sess.ID,
		path:     sess.Recording.Path(),
		settings: sess.Settings,
		stopped:  c.now(),
	}
	c.workers.Add(1)
	go c.process(c.runCtx, j)
	return nil
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.ticker = nil
	c.tickC = nil
}

func (c *Controller) onTick() {
	sess := c.current
	if c.state != StateRecording || sess == nil || sess.monitor == nil {
		return
	}
	if !sess.monitor.Observe(sess.meter.AveragePower()) {
		return
	}

	silent := sess.monitor.ContinuousSilence()
	c.emit(Event{
		Type:      EventSilencePrompt,
		SessionID: sess.ID,
		Message:   fmt.Sprintf("No sound for %s. Stop recording?", silent.Round(time.Second)),
	})

	id := sess.ID
	ctx := c.runCtx
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		choice, err := c.deps.Prompter.AskStop(ctx, id, silent)
		if err != nil {
			c.logger.Warn("silence prompt failed, continuing", slogError(err))
			choice = silence.Continue
		}
		c.post(func() { c.resolvePrompt(id, choice) })
	}()
}

// resolvePrompt applies an answer unless the session it was asked for has
// already ended.
func (c *Controller) resolvePrompt(id string, choice silence.Choice) {
	sess := c.current
	if c.state != StateRecording || sess == nil || sess.ID != id || sess.monitor == nil {
		c.logger.Debug("dropping stale silence answer", slog.String("session_id", id), slog.String("choice", choice.String()))
		return
	}
	sess.monitor.Resolve(choice)
	if choice == silence.Stop {
		_ = c.stop("silence")
	}
}

type job struct {
	id       string
	path     string
	settings Settings
	stopped  time.Time
}

type result struct {
	id        string
	analysis  silence.Analysis
	text      string
	enhanced  bool
	warning   error
	err       error
	discarded bool
	reason    string
	elapsed   time.Duration
}

func (c *Controller) process(ctx context.Context, j job) {
	defer c.workers.Done()

	res := c.runPipeline(ctx, j)
	removeRecording(j.path, c.logger)
	res.elapsed = c.now().Sub(j.stopped)
	c.post(func() { c.complete(res) })
}

func (c *Controller) runPipeline(ctx context.Context, j job) result {
	res := result{id: j.id}
	ctx, span := c.metrics.tracer.Start(ctx, "session.pipeline",
		trace.WithAttributes(attribute.String("session.id", j.id)))
	defer span.End()

	_, analyzeSpan := c.metrics.tracer.Start(ctx, "silence.analyze")
	analysis, err := silence.Analyze(j.path, j.settings.Sensitivity.ThresholdDB())
	analyzeSpan.End()
	if err != nil {
		span.RecordError(err)
		res.err = err
		return res
	}
	res.analysis = analysis
	if analysis.ActiveDuration < c.opts.MinSpeechSeconds {
		res.discarded = true
		res.reason = fmt.Sprintf("Recording discarded: %.2fs of speech in %.2fs", analysis.ActiveDuration, analysis.TotalDuration)
		return res
	}

	sttCtx, sttSpan := c.metrics.tracer.Start(ctx, "stt.transcribe")
	raw, err := c.deps.Recognizer.Transcribe(sttCtx, stt.Request{
		AudioPath: j.path,
		ModelPath: c.opts.ModelPath,
		Language:  j.settings.Language,
		Prompt:    j.settings.InitialPrompt,
		Params:    c.opts.Decoding,
	})
	sttSpan.End()
	if err != nil {
		if errors.Is(err, stt.ErrModelMissing) || errors.Is(err, stt.ErrEngineUnavailable) {
			err = fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		}
		span.RecordError(err)
		res.err = err
		return res
	}

	text := c.deps.Rewriter.Rewrite(raw)
	if strings.TrimSpace(text) == "" {
		res.discarded = true
		res.reason = "Recording discarded: empty transcript"
		return res
	}
	res.text = text

	if j.settings.RewriteEnabled && c.deps.Enhancer != nil {
		key := ""
		if c.deps.Keys != nil {
			if k, err := c.deps.Keys.APIKey(); err == nil {
				key = k
			} else {
				c.logger.Debug("no rewrite api key available", slogError(err))
			}
		}
		rewriteCtx, rewriteSpan := c.metrics.tracer.Start(ctx, "llm.rewrite")
		out := c.deps.Enhancer.Rewrite(rewriteCtx, text, llm.Options{
			Enabled:      true,
			APIKey:       key,
			Model:        j.settings.Model,
			Instructions: j.settings.Instructions,
		})
		rewriteSpan.End()
		res.text = out.Text
		res.enhanced = out.Enhanced
		res.warning = out.Warning
	}
	return res
}

func (c *Controller) complete(res result) {
	sess := c.current
	if c.state != StateTranscribing || sess == nil || sess.ID != res.id {
		c.logger.Warn("dropping result for inactive session", slog.String("session_id", res.id))
		return
	}
	c.current = nil
	c.setState(StateIdle)
	ctx := c.runCtx
	c.metrics.observe(ctx, res.analysis.ActiveDuration, res.elapsed.Seconds())

	if res.err != nil {
		kind := Classify(res.err)
		c.metrics.sessionFinished(ctx, "failed", kind)
		c.emit(Event{Type: EventError, SessionID: res.id, Err: res.err, Message: "Transcription failed"})
		return
	}
	if res.discarded {
		analysis := res.analysis
		c.metrics.sessionFinished(ctx, "discarded", KindNone)
		c.emit(Event{Type: EventDiscarded, SessionID: res.id, Analysis: &analysis, Message: res.reason})
		return
	}
	if res.warning != nil {
		c.metrics.rewriteFallback(ctx, Classify(res.warning))
		c.emit(Event{Type: EventWarning, SessionID: res.id, Err: res.warning, Message: "Rewrite failed, using normalized text"})
	}

	c.last = res.text
	c.statusMu.Lock()
	c.status.LastTranscript = res.text
	c.statusMu.Unlock()
	c.logger.Info("transcription complete",
		slog.String("session_id", res.id),
		slog.Int("chars", len([]rune(res.text))),
		slog.Bool("enhanced", res.enhanced),
		slog.Duration("elapsed", res.elapsed))

	delivered, err := c.deps.Delivery.Dispatch(ctx, res.text, sess.Settings.AutoPaste)
	if err != nil {
		c.metrics.sessionFinished(ctx, "undelivered", Classify(err))
		c.emit(Event{Type: EventError, SessionID: res.id, Text: res.text, Err: err, Message: "Paste failed"})
		return
	}
	message := "Copied to clipboard"
	if delivered.Pasted {
		message = "Pasted into the active app"
	}
	c.metrics.sessionFinished(ctx, "delivered", KindNone)
	c.emit(Event{Type: EventDelivered, SessionID: res.id, Text: res.text, Pasted: delivered.Pasted, Message: message})
}

func (c *Controller) shutdown() {
	c.stopTicker()
	if c.state == StateRecording && c.current != nil {
		rec := c.current.Recording
		if err := rec.Stop(); err != nil {
			c.logger.Debug("recording stop on shutdown", slogError(err))
		}
		removeRecording(rec.Path(), c.logger)
		c.current = nil
		c.setState(StateIdle)
	}
}

func (c *Controller) ignored(action string) {
	id := ""
	if c.current != nil {
		id = c.current.ID
	}
	c.emit(Event{Type: EventIgnored, SessionID: id, Message: "ignoring " + action})
}

func (c *Controller) setState(state State) {
	c.state = state
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.State = state
	c.status.StateName = state.String()
	if c.current != nil {
		c.status.SessionID = c.current.ID
		c.status.StartedAt = c.current.StartedAt
	} else {
		c.status.SessionID = ""
		c.status.StartedAt = time.Time{}
	}
}

func (c *Controller) emit(ev Event) {
	ev.State = c.state
	if ev.At.IsZero() {
		ev.At = c.now().UTC()
	}
	attrs := []any{slog.String("event", string(ev.Type)), slog.String("state", ev.State.String())}
	if ev.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", ev.SessionID))
	}
	if ev.Err != nil {
		ev.Kind = Classify(ev.Err)
		attrs = append(attrs, slog.String("kind", string(ev.Kind)), slogError(ev.Err))
		c.statusMu.Lock()
		c.status.LastError = ev.Err.Error()
		c.statusMu.Unlock()
	}
	switch ev.Type {
	case EventError:
		c.logger.Error(ev.Message, attrs...)
	case EventWarning:
		c.logger.Warn(ev.Message, attrs...)
	default:
		c.logger.Info(ev.Message, attrs...)
	}
	c.deps.Sink.Handle(ev)
}

func removeRecording(path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to delete recording", slog.String("path", path), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
