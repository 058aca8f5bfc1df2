// Package runtime assembles the configured backends into a running service:
// telemetry, the message bus, storage, synthesis, dialogue, telephony, and
// the HTTP surface that ties them together.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxdial/voxdial-core/internal/api"
	"github.com/voxdial/voxdial-core/internal/bus"
	"github.com/voxdial/voxdial-core/internal/call"
	"github.com/voxdial/voxdial-core/internal/config"
	"github.com/voxdial/voxdial-core/internal/dialogue"
	"github.com/voxdial/voxdial-core/internal/eventstore"
	"github.com/voxdial/voxdial-core/internal/natsserver"
	"github.com/voxdial/voxdial-core/internal/storage"
	"github.com/voxdial/voxdial-core/internal/synth"
	"github.com/voxdial/voxdial-core/internal/telephony"
	"github.com/voxdial/voxdial-core/internal/transcribe"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	natsServer    *natsserver.EmbeddedServer
	busClient     *bus.Client
	callStore     *eventstore.Store
	artifactStore storage.Store
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every configured component and serves until ctx is
// canceled. It returns only after everything has shut down.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startBus(ctx); err != nil {
		return err
	}
	defer r.stopBus()

	r.callStore, err = eventstore.Open(ctx, r.cfg.CallStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open call store: %w", err)
	}
	defer r.callStore.Close()

	r.artifactStore, err = r.buildStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact storage: %w", err)
	}
	defer r.artifactStore.Close()

	synthesizer, err := r.buildSynthesizer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize synthesis backend: %w", err)
	}

	gateway, err := r.buildGateway()
	if err != nil {
		return fmt.Errorf("failed to initialize telephony gateway: %w", err)
	}

	controller := call.NewController(call.ControllerParams{
		Session:     r.cfg.Session,
		Dialogue:    r.cfg.Dialogue,
		Gateway:     gateway,
		Synth:       synthesizer,
		Completer:   r.buildCompleter(),
		Registry:    call.NewRegistry(r.logger),
		Bus:         r.busClient,
		Store:       r.callStore,
		From:        r.cfg.Telephony.FromNumber,
		RingTimeout: r.cfg.Telephony.RingTimeout,
		PublicURL:   r.cfg.HTTP.PublicURL,
		Logger:      r.logger,
	})

	audioDir := ""
	if local, ok := r.artifactStore.(*storage.LocalStore); ok {
		audioDir = local.Dir()
	}
	apiServer := api.NewServer(api.Params{
		Controller: controller,
		Gateway:    gateway,
		Opener:     r.buildOpener(),
		Bus:        r.busClient,
		Store:      r.callStore,
		AudioDir:   audioDir,
		Logger:     r.logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if metricHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("public_url", r.cfg.HTTP.PublicURL),
		slog.String("synthesis", r.cfg.Synthesis.Mode),
		slog.String("dialogue", r.cfg.Dialogue.Mode),
		slog.String("storage", r.cfg.Storage.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}
	if r.cfg.Bus.Embedded {
		srv, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = srv
	}
	client, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = client
	return nil
}

func (r *Runtime) stopBus() {
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
}

func (r *Runtime) buildStorage(ctx context.Context) (storage.Store, error) {
	switch r.cfg.Storage.Mode {
	case "s3":
		return storage.NewS3Store(ctx, r.cfg.Storage, r.logger)
	default:
		return storage.NewLocalStore(r.cfg.Storage, r.cfg.HTTP.PublicURL, r.logger)
	}
}

func (r *Runtime) buildSynthesizer(ctx context.Context) (synth.Synthesizer, error) {
	switch r.cfg.Synthesis.Mode {
	case "polly":
		return synth.NewPollySynth(ctx, r.cfg.Synthesis, r.artifactStore, r.logger)
	case "exec":
		return synth.NewExecSynth(r.cfg.Synthesis, r.artifactStore, r.logger)
	default:
		return synth.NewMockSynth(r.artifactStore, r.cfg.Synthesis.OutputFormat), nil
	}
}

func (r *Runtime) buildCompleter() dialogue.Completer {
	switch r.cfg.Dialogue.Mode {
	case "openai":
		return dialogue.NewOpenAICompleter(r.cfg.Dialogue)
	case "ollama":
		return dialogue.NewOllamaCompleter(r.cfg.Dialogue)
	default:
		return dialogue.NewMockCompleter()
	}
}

func (r *Runtime) buildGateway() (telephony.Gateway, error) {
	if r.cfg.Telephony.AccountSID == "mock" {
		return telephony.NewMockGateway(), nil
	}
	return telephony.NewTwilioGateway(r.cfg.Telephony, r.logger)
}

func (r *Runtime) buildOpener() transcribe.Opener {
	switch r.cfg.Transcribe.Mode {
	case "deepgram":
		return transcribe.NewDeepgramOpener(r.cfg.Transcribe, r.logger)
	default:
		return transcribe.NewMockOpener(time.Duration(r.cfg.Transcribe.FinalizeAfterMS)*time.Millisecond, r.logger)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
