// Package app wires all voxsplit subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject replacements via functional options (WithRegistry,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxsplit/voxsplit/internal/config"
	"github.com/voxsplit/voxsplit/internal/observe"
	"github.com/voxsplit/voxsplit/internal/server"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier/energy"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier/mock"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier/silero"
)

// drainTimeout bounds the HTTP server drain when Run's context is cancelled.
const drainTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the voxsplit streaming API.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics
	srv      *server.Server
	httpSrv  *http.Server
	watcher  *config.Watcher
	logLevel *slog.LevelVar

	// watchPath enables the config watcher when non-empty.
	watchPath string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry injects a classifier registry instead of the built-in one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects a metrics set instead of initialising the OTel SDK.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch enables hot reload of the config file at path. Reloads
// adjust the log level and the VAD tuning for new streams; classifier and
// server changes are logged but need a restart.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// WithLogLevel injects the level var backing the process logger so config
// reloads can adjust it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: telemetry setup, classifier
// registry construction, a classifier smoke build, the HTTP server, and
// (when enabled) the config file watcher.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// 1. Telemetry. Skipped when a metrics set was injected.
	if a.metrics == nil {
		otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			return otelShutdown(shutdownCtx)
		})
		a.metrics = observe.DefaultMetrics()
	}

	// 2. Classifier registry.
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinClassifiers(a.registry)
	}

	// 3. Smoke-build one classifier so a missing model or ONNX runtime
	// fails at startup rather than on the first stream.
	cls, err := a.registry.Create(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("app: classifier %q: %w", cfg.Classifier.Name, err)
	}
	if err := cls.Close(); err != nil {
		slog.Warn("classifier probe close error", "err", err)
	}

	// 4. Streaming server.
	a.srv = server.New(cfg, a.classifierFactory(), a.metrics, slog.Default())
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Config file watcher.
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight streams.
// It blocks and always returns a non-nil error: ctx.Err() after a clean
// drain, or the serve error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", a.httpSrv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain error", "err", err)
		}
		return gctx.Err()
	})

	return g.Wait()
}

// Shutdown tears down subsystems in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// classifierFactory returns the per-stream factory the server calls. It
// re-reads the current classifier entry on every call so a config reload
// applies to new streams.
func (a *App) classifierFactory() server.ClassifierFactory {
	return func() (classifier.Classifier, error) {
		return a.registry.Create(a.currentConfig().Classifier)
	}
}

// onConfigChange is the watcher callback. It runs on the watcher goroutine.
func (a *App) onConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Changed() {
		return
	}

	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VADChanged {
		a.srv.UpdateVAD(new.VAD)
		slog.Info("vad tuning reloaded; applies to new streams")
	}
	if diff.ClassifierChanged {
		slog.Info("classifier config reloaded; applies to new streams",
			"classifier", new.Classifier.Name)
	}
	if diff.ServerChanged {
		slog.Warn("server config changed; restart required to apply")
	}
}

// currentConfig returns the latest valid config: the watcher's copy when
// watching, otherwise the config New was given.
func (a *App) currentConfig() *config.Config {
	if a.watcher != nil {
		return a.watcher.Current()
	}
	return a.cfg
}

// ─── Built-in classifiers ────────────────────────────────────────────────────

// RegisterBuiltinClassifiers wires the classifier implementations that ship
// with voxsplit into reg.
func RegisterBuiltinClassifiers(reg *config.Registry) {
	reg.Register("silero", func(entry config.ClassifierConfig) (classifier.Classifier, error) {
		return silero.New(silero.Config{
			ModelPath:   entry.ModelPath,
			LibraryPath: entry.LibraryPath,
			Threshold:   entry.Threshold,
		})
	})

	reg.Register("energy", func(entry config.ClassifierConfig) (classifier.Classifier, error) {
		return energy.New(energy.Config{
			SpeechRMS:  optionFloat(entry.Options, "speech_rms"),
			SilenceRMS: optionFloat(entry.Options, "silence_rms"),
		}), nil
	})

	// mock always reports voice; useful for wiring tests and load drills.
	reg.Register("mock", func(entry config.ClassifierConfig) (classifier.Classifier, error) {
		return &mock.Classifier{
			Script: []classifier.Result{{Probability: 1, IsVoice: true}},
		}, nil
	})
}

// optionFloat reads a numeric value from a classifier options map. YAML
// decodes numbers as int or float64 depending on their spelling.
func optionFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
