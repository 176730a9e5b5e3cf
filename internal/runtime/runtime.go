package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/earshotlabs/earshot/internal/bus"
	"github.com/earshotlabs/earshot/internal/config"
	"github.com/earshotlabs/earshot/internal/listen"
	"github.com/earshotlabs/earshot/internal/mic"
	"github.com/earshotlabs/earshot/internal/natsserver"
	"github.com/earshotlabs/earshot/internal/protocol"
	"github.com/earshotlabs/earshot/internal/stt"
	"github.com/earshotlabs/earshot/internal/transcriptstore"
)

// Runtime wires the listener to the bus, the transcript store, and the
// health/metrics endpoints, and owns graceful shutdown.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	tel, err := initTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		busClient, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("connect bus: %w", err)
		}
	}

	store, err := transcriptstore.Open(ctx, r.cfg.Transcripts, r.logger)
	if err != nil {
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("open transcript store: %w", err)
	}

	recognizer, err := r.buildRecognizer()
	if err != nil {
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return err
	}

	listener := listen.New(r.cfg.Listener, r.cfg.Mic.SampleRate, r.cfg.Mic.Channels,
		recognizer, r.deviceFactory(), r.logger)

	sessionID := uuid.NewString()
	if err := store.BeginSession(ctx, sessionID); err != nil {
		r.logger.Warn("failed to record session start", slog.String("error", err.Error()))
	}

	onText := func(text string) {
		r.logger.Info("phrase recognized",
			slog.String("session_id", sessionID),
			slog.String("text", text))
		tel.CountPhrase(context.Background())
		capturedAt := time.Now().UTC()
		if busClient != nil {
			transcript := protocol.Transcript{SessionID: sessionID, Text: text, CapturedAt: capturedAt}
			if err := busClient.PublishTranscript(transcript); err != nil {
				r.logger.Warn("failed to publish transcript", slog.String("error", err.Error()))
			}
		}
		if err := store.Append(context.Background(), transcriptstore.Transcript{
			SessionID:  sessionID,
			Text:       text,
			CapturedAt: capturedAt,
		}); err != nil {
			r.logger.Warn("failed to persist transcript", slog.String("error", err.Error()))
		}
	}
	onStatus := func(status string) {
		if busClient == nil {
			return
		}
		update := protocol.Status{SessionID: sessionID, State: status, At: time.Now().UTC()}
		if err := busClient.PublishStatus(update); err != nil {
			r.logger.Warn("failed to publish status", slog.String("error", err.Error()))
		}
	}

	if err := listener.Start(onText, onStatus); err != nil {
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("start listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

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
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("session_id", sessionID))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	if err := listener.Close(); err != nil {
		r.logger.Warn("listener close error", slog.String("error", err.Error()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	busClient.Close()
	embedded.Shutdown()
	if err := store.Close(); err != nil {
		r.logger.Warn("transcript store close error", slog.String("error", err.Error()))
	}

	if err := tel.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) buildRecognizer() (stt.Recognizer, error) {
	switch r.cfg.STT.Mode {
	case "google":
		return stt.NewGoogleRecognizer(r.cfg.STT.Endpoint, r.cfg.STT.APIKey, r.cfg.STT.Language), nil
	case "exec":
		return stt.NewExecRecognizer(r.cfg.STT)
	case "mock":
		return stt.NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", r.cfg.STT.Mode)
	}
}

func (r *Runtime) deviceFactory() listen.DeviceFactory {
	return func() (mic.Device, error) {
		var source mic.FrameSource
		switch r.cfg.Mic.Mode {
		case "exec":
			execSource, err := mic.NewExecSource(r.cfg.Mic)
			if err != nil {
				return nil, err
			}
			source = execSource
		default:
			source = mic.NewSilenceSource(r.cfg.Mic)
		}
		return mic.New(source, r.cfg.Mic, r.logger), nil
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
