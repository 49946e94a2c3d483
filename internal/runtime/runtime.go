// Package runtime assembles the daemon: telemetry, bus, event store,
// dictionary, session controller and the local HTTP surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/bus"
	"github.com/pipboy3000/usual-tone-of-voice/internal/capability"
	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/eventstore"
	"github.com/pipboy3000/usual-tone-of-voice/internal/natsserver"
	"github.com/pipboy3000/usual-tone-of-voice/internal/normalize"
	"github.com/pipboy3000/usual-tone-of-voice/internal/notify"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

type Runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	httpServer *http.Server
	controller *session.Controller
	ready      atomic.Bool
	wg         sync.WaitGroup

	// teardown runs in reverse registration order
	closers []func(context.Context)
}

func New(cfg config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		version: version,
	}
}

func (r *Runtime) onClose(fn func(context.Context)) {
	r.closers = append(r.closers, fn)
}

// Start brings every component up, serves until ctx is cancelled and then
// tears everything down.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.teardown()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.onClose(func(ctx context.Context) {
		if err := shutdownTelemetry(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	})

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.onClose(func(context.Context) { _ = store.Close() })

	dictionary, err := normalize.OpenDictionary(r.cfg.Dictionary.Path, r.logger)
	if err != nil {
		return fmt.Errorf("open dictionary: %w", err)
	}
	if r.cfg.Dictionary.Watch {
		watcher, err := normalize.NewWatcher(dictionary, millis(r.cfg.Dictionary.DebounceMS), r.logger)
		if err != nil {
			r.logger.Warn("dictionary watcher unavailable, reload on restart only", slogError(err))
		} else {
			watcher.Start()
			r.onClose(func(context.Context) { _ = watcher.Stop() })
		}
	}
	rewriter := normalize.NewRewriter(dictionary)

	// sinks are appended below before Run starts; nothing is emitted earlier
	sinks := &session.MultiSink{}
	controller, err := r.buildController(rewriter, sinks)
	if err != nil {
		return err
	}
	r.controller = controller

	eventSink := eventstore.NewSink(store, r.logger)
	r.onClose(func(context.Context) { eventSink.Close() })
	*sinks = append(*sinks, eventSink)

	if r.cfg.Notify.Enabled {
		notifier := notify.NewSink(r.cfg.Notify.Title, r.logger)
		r.onClose(func(context.Context) { notifier.Close() })
		*sinks = append(*sinks, notifier)
	}

	var registry *capability.Registry
	if r.cfg.Bus.Enabled {
		client, reg, err := r.startBus(ctx, controller)
		if err != nil {
			return err
		}
		registry = reg
		*sinks = append(*sinks, bus.NewEventPublisher(client))
	}

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		_ = controller.Run(ctx)
	}()

	handler := &api{
		session:  controller,
		rewriter: rewriter,
		store:    store,
		registry: registry,
		ready:    r.ready.Load,
		metrics:  metricsHandler,
		logger:   r.logger.With(slog.String("component", "http")),
	}
	if r.cfg.HTTP.Enabled {
		r.serveHTTP(handler.routes())
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("version", r.version),
		slog.String("capture", r.cfg.Capture.Mode),
		slog.String("stt", r.cfg.STT.Mode),
		slog.Bool("rewrite", r.cfg.Rewrite.Enabled))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()
	<-controllerDone
	return nil
}

func (r *Runtime) buildController(rewriter *normalize.Rewriter, sink session.EventSink) (*session.Controller, error) {
	cfg := r.cfg
	recorder, err := buildRecorder(cfg.Capture, r.logger)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	recognizer, err := buildRecognizer(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}
	r.onClose(func(context.Context) { closeIfCloser(recognizer, r.logger, "recognizer") })

	dispatcher, err := buildDispatcher(cfg.Delivery, r.logger)
	if err != nil {
		return nil, fmt.Errorf("delivery: %w", err)
	}
	permissions, err := buildPermissions(cfg.Permissions)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	prompter, err := buildPrompter(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("silence prompt: %w", err)
	}
	settings, err := settingsSource(cfg)
	if err != nil {
		return nil, err
	}

	deps := session.Deps{
		Recorder:    recorder,
		Permissions: permissions,
		Prompter:    prompter,
		Recognizer:  recognizer,
		Rewriter:    rewriter,
		Delivery:    dispatcher,
		Keys:        buildKeys(cfg.Rewrite),
		Settings:    settings,
		Sink:        sink,
	}
	// a nil *llm.Coordinator must not reach the interface field
	enhancer, err := buildEnhancer(cfg.Rewrite, r.logger)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	if enhancer != nil {
		deps.Enhancer = enhancer
	}
	if !dispatcher.CanPaste() && cfg.Session.AutoPaste {
		r.logger.Warn("auto paste enabled without a paste command; sessions will copy and then report a paste error")
	}

	return session.NewController(deps, session.Options{
		ModelPath:        cfg.STT.ModelPath,
		Decoding:         decodingParams(cfg.STT),
		MinSpeechSeconds: cfg.Session.MinSpeechSeconds,
		PollInterval:     millis(cfg.Session.SilencePollIntervalMS),
		PromptAfter:      millis(cfg.Session.SilencePromptAfterMS),
	}, r.logger)
}

// startBus brings up the embedded broker when configured, connects, and
// exposes the controller on the control subject.
func (r *Runtime) startBus(ctx context.Context, controller *session.Controller) (*bus.Client, *capability.Registry, error) {
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return nil, nil, err
	}
	if embedded != nil {
		r.onClose(func(context.Context) { embedded.Shutdown() })
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
	if err != nil {
		return nil, nil, err
	}
	r.onClose(func(context.Context) { client.Close() })

	control, err := bus.ServeControl(client, controller)
	if err != nil {
		return nil, nil, err
	}
	r.onClose(func(context.Context) { control.Close() })

	registry, err := capability.NewRegistry(ctx, r.cfg.Node, capability.Local{
		Version:      r.version,
		Capabilities: capability.Describe(r.cfg),
		State:        func() string { return controller.State().String() },
	}, client, r.logger)
	if err != nil {
		return nil, nil, err
	}
	r.onClose(func(context.Context) { registry.Close() })
	return client, registry, nil
}

func (r *Runtime) serveHTTP(handler http.Handler) {
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slogError(err))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", addr))
}

func (r *Runtime) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i](ctx)
	}
	r.closers = nil
}

// Controller exposes the session controller once Start has built it.
func (r *Runtime) Controller() *session.Controller {
	return r.controller
}

func (r *Runtime) Ready() bool {
	return r.ready.Load()
}
