// Package runtime wires the daemon together: telemetry, the message bus,
// the event store, the dictation pipeline and the HTTP control surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxdlabs/voxd/internal/bus"
	"github.com/voxdlabs/voxd/internal/capture"
	"github.com/voxdlabs/voxd/internal/config"
	"github.com/voxdlabs/voxd/internal/dictation"
	"github.com/voxdlabs/voxd/internal/eventstore"
	"github.com/voxdlabs/voxd/internal/natsserver"
	"github.com/voxdlabs/voxd/internal/transcription"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	tracerClose func(context.Context) error
	dictation   *dictation.Service
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	transcriber, err := transcription.New(r.cfg.Transcription, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build transcription backend: %w", err)
	}

	devices, err := deviceFactory(r.cfg.Capture)
	if err != nil {
		return err
	}

	r.dictation = dictation.NewService(ctx, r.cfg, busClient.Conn(), store, transcriber, devices, r.logger)
	defer r.dictation.Close()

	mux := r.buildMux()

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

	if metricHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricHandler)
		r.metricsSrv = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("capture_driver", r.cfg.Capture.Driver),
		slog.String("transcription_mode", r.cfg.Transcription.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(shutdownCtx); err != nil {
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

func deviceFactory(cfg config.CaptureConfig) (dictation.DeviceFactory, error) {
	switch cfg.Driver {
	case "portaudio":
		return func() capture.Device { return capture.NewPortAudioDevice() }, nil
	case "mock":
		return func() capture.Device {
			dev := capture.NewMockDevice(make([]int16, cfg.ChunkFrames))
			dev.Loop = true
			dev.ReadDelay = time.Duration(cfg.ChunkFrames) * time.Second / time.Duration(cfg.SampleRate)
			return dev
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture driver %q", cfg.Driver)
	}
}
