// Package server exposes the segmentation pipeline over WebSocket.
//
// A client connects to /v1/stream, sends one JSON config message, then
// streams binary audio. The server answers with JSON events (speech_start,
// speech_end, misfire) and, after each speech_end, one binary message
// containing the segment as 16 kHz mono s16le PCM. A {"type":"flush"}
// text message drains the stream mid-connection; closing the connection
// normally flushes it too.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxsplit/voxsplit/internal/config"
	"github.com/voxsplit/voxsplit/internal/health"
	"github.com/voxsplit/voxsplit/internal/observe"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
	"github.com/voxsplit/voxsplit/pkg/vad"
)

// DefaultMaxMessageBytes caps a single audio message at 1 MiB, about 32
// seconds of 16 kHz mono s16le PCM.
const DefaultMaxMessageBytes = 1 << 20

// ClassifierFactory creates a fresh classifier for one stream. Streams
// never share classifier instances; recurrent state is per stream.
type ClassifierFactory func() (classifier.Classifier, error)

// Server handles the WebSocket streaming endpoint and the operational HTTP
// surface (health probes, Prometheus metrics).
type Server struct {
	cfg           config.ServerConfig
	clsName       string
	newClassifier ClassifierFactory
	metrics       *observe.Metrics
	health        *health.Handler
	log           *slog.Logger

	// vadMu guards vadCfg, which a config reload may swap while streams
	// are being accepted. Streams already running keep their tuning.
	vadMu  sync.RWMutex
	vadCfg config.VADConfig
}

// New creates a Server. The classifier factory is called once per stream.
func New(cfg *config.Config, factory ClassifierFactory, m *observe.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:           cfg.Server,
		vadCfg:        cfg.VAD,
		clsName:       cfg.Classifier.Name,
		newClassifier: factory,
		metrics:       m,
		health: health.New(health.Checker{
			Name: "classifier",
			// Building a classifier can mean loading an ONNX model, so a
			// passing probe is reused across scrapes.
			Check:    factoryCheck(factory),
			CacheFor: 30 * time.Second,
		}),
		log: logger.With("component", "server"),
	}
}

// Handler returns the full HTTP handler: the streaming endpoint wrapped in
// the observability middleware, plus /healthz, /readyz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

// handleStream upgrades the connection and runs one segmentation session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	limit := s.cfg.MaxMessageBytes
	if limit <= 0 {
		limit = DefaultMaxMessageBytes
	}
	conn.SetReadLimit(limit)

	ctx := r.Context()
	log := observe.Logger(ctx).With("component", "server", "remote", r.RemoteAddr)

	s.metrics.StreamOpened(ctx)
	defer s.metrics.StreamClosed(ctx)

	sess := newSession(conn, s.metrics, log)
	err = sess.run(ctx, s.newDetector)
	if err == nil {
		log.Info("stream finished", "frames", framesOf(sess))
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	switch {
	case isConfigError(err):
		log.Warn("stream rejected", "err", err)
		conn.Close(websocket.StatusPolicyViolation, trim(err.Error()))
	default:
		log.Error("stream failed", "err", err)
		conn.Close(websocket.StatusInternalError, "stream failed")
	}
}

// UpdateVAD replaces the server-wide VAD tuning. Only streams opened after
// the call see the new values.
func (s *Server) UpdateVAD(v config.VADConfig) {
	s.vadMu.Lock()
	s.vadCfg = v
	s.vadMu.Unlock()
}

// newDetector builds a detector for one stream, applying the client's
// per-stream overrides on top of the server's tuning.
func (s *Server) newDetector(cfg streamConfig, cb vad.Callbacks) (*vad.Detector, error) {
	cls, err := s.newClassifier()
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}
	cls = instrumentClassifier(cls, s.metrics, s.clsName)

	s.vadMu.RLock()
	base := s.vadCfg.Detector()
	s.vadMu.RUnlock()

	det, err := vad.New(applyOverrides(base, cfg.VAD), cls, cb, vad.WithLogger(s.log))
	if err != nil {
		cls.Close()
		return nil, err
	}
	return det, nil
}

// applyOverrides merges the client's per-stream tuning into base.
func applyOverrides(base vad.Config, ov *vadOverrides) vad.Config {
	if ov == nil {
		return base
	}
	if ov.PositiveSpeechThreshold != nil {
		base.PositiveSpeechThreshold = *ov.PositiveSpeechThreshold
	}
	if ov.NegativeSpeechThreshold != nil {
		base.NegativeSpeechThreshold = *ov.NegativeSpeechThreshold
	}
	if ov.MinSpeechFrames != nil {
		base.MinSpeechFrames = *ov.MinSpeechFrames
	}
	if ov.MinSilenceFrames != nil {
		base.MinSilenceFrames = *ov.MinSilenceFrames
	}
	if ov.PreSpeechPadMs != nil {
		base.PreSpeechPadMs = *ov.PreSpeechPadMs
	}
	if ov.PostSpeechPadMs != nil {
		base.PostSpeechPadMs = *ov.PostSpeechPadMs
	}
	if ov.MinSpeechMs != nil {
		base.MinSpeechMs = *ov.MinSpeechMs
	}
	return base
}

// factoryCheck probes the classifier factory for the readiness endpoint:
// ready means a classifier can actually be built (model file readable, ONNX
// runtime loadable).
func factoryCheck(factory ClassifierFactory) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cls, err := factory()
		if err != nil {
			return err
		}
		return cls.Close()
	}
}

func isConfigError(err error) bool {
	return errors.Is(err, errStreamConfig)
}

// trim bounds a close reason to the 123-byte WebSocket limit.
func trim(reason string) string {
	const max = 120
	if len(reason) > max {
		return reason[:max]
	}
	return reason
}

func framesOf(s *session) int64 {
	if s.det == nil {
		return 0
	}
	return s.det.FramesProcessed()
}
