package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"layeh.com/gopus"

	"github.com/voxsplit/voxsplit/internal/observe"
	"github.com/voxsplit/voxsplit/pkg/audio"
	"github.com/voxsplit/voxsplit/pkg/vad"
)

// opusMaxFrameSamples is the largest Opus frame per channel (120 ms at
// 48 kHz), used as the decode buffer bound.
const opusMaxFrameSamples = 5760

// configTimeout bounds the wait for the initial stream config message.
const configTimeout = 30 * time.Second

// session owns one WebSocket segmentation stream: config handshake, audio
// decode, detector, and event delivery. Reads and callback-driven writes
// happen on the same goroutine, so no locking is needed.
type session struct {
	conn    *websocket.Conn
	metrics *observe.Metrics
	log     *slog.Logger

	cfg streamConfig
	det *vad.Detector
	dec *gopus.Decoder

	// res carries the resample phase across messages so chunk boundaries
	// of a non-16 kHz stream stay seamless.
	res *audio.Resampler

	// ctx is the connection context, captured so detector callbacks can
	// write without plumbing a context through the vad package.
	ctx context.Context

	// writeErr records the first failed write; the loop stops on it.
	writeErr error
}

// errStreamConfig marks a handshake or payload problem caused by the
// client. Mapped to a policy-violation close status.
var errStreamConfig = errors.New("invalid stream config")

func newSession(conn *websocket.Conn, m *observe.Metrics, log *slog.Logger) *session {
	return &session{conn: conn, metrics: m, log: log}
}

// run drives the stream until the client closes it or an error occurs.
// newDetector builds the detector once the stream config is known.
func (s *session) run(ctx context.Context, newDetector func(streamConfig, vad.Callbacks) (*vad.Detector, error)) error {
	s.ctx = ctx

	first, firstPayload, err := s.readConfig(ctx)
	if err != nil {
		return err
	}
	s.cfg = first

	det, err := newDetector(s.cfg, vad.Callbacks{
		OnSpeechStart: s.onSpeechStart,
		OnSpeechEnd:   s.onSpeechEnd,
		OnVADMisfire:  s.onMisfire,
	})
	if err != nil {
		s.writeEvent(event{Type: EventError, Message: "detector init failed"})
		return fmt.Errorf("create detector: %w", err)
	}
	s.det = det
	defer det.Close()

	s.writeEvent(event{Type: EventReady})

	// A client that skipped the handshake already sent audio.
	if firstPayload != nil {
		if err := s.ingest(firstPayload); err != nil {
			return err
		}
	}

	for {
		if s.writeErr != nil {
			return fmt.Errorf("write event: %w", s.writeErr)
		}

		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return s.finish(err)
		}

		switch typ {
		case websocket.MessageBinary:
			if err := s.ingest(data); err != nil {
				s.writeEvent(event{Type: EventError, Message: err.Error()})
				return err
			}
		case websocket.MessageText:
			if err := s.control(data); err != nil {
				s.writeEvent(event{Type: EventError, Message: err.Error()})
				return err
			}
		}
	}
}

// readConfig reads the initial stream config. A binary first message means
// the client skipped the handshake; it gets the default config and the
// payload is returned for ingestion.
func (s *session) readConfig(ctx context.Context) (streamConfig, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, configTimeout)
	defer cancel()

	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return streamConfig{}, nil, fmt.Errorf("read stream config: %w", err)
	}

	if typ == websocket.MessageBinary {
		cfg, _ := normalizeConfig(streamConfig{})
		return cfg, data, nil
	}

	var cfg streamConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return streamConfig{}, nil, fmt.Errorf("%w: %v", errStreamConfig, err)
	}
	cfg, err = normalizeConfig(cfg)
	if err != nil {
		return streamConfig{}, nil, err
	}
	return cfg, nil, nil
}

// normalizeConfig fills defaults and validates the client's stream config.
func normalizeConfig(cfg streamConfig) (streamConfig, error) {
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingPCM
	}
	switch cfg.Encoding {
	case EncodingPCM:
		if cfg.SampleRate == 0 {
			cfg.SampleRate = vad.SampleRate
		}
		if cfg.SampleRate < 8000 || cfg.SampleRate > 48000 {
			return cfg, fmt.Errorf("%w: sample_rate %d out of range [8000, 48000]", errStreamConfig, cfg.SampleRate)
		}
	case EncodingOpus:
		if cfg.SampleRate == 0 {
			cfg.SampleRate = 48000
		}
		switch cfg.SampleRate {
		case 8000, 12000, 16000, 24000, 48000:
		default:
			return cfg, fmt.Errorf("%w: sample_rate %d is not a valid Opus rate", errStreamConfig, cfg.SampleRate)
		}
	default:
		return cfg, fmt.Errorf("%w: unknown encoding %q", errStreamConfig, cfg.Encoding)
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return cfg, fmt.Errorf("%w: channels %d, want 1 or 2", errStreamConfig, cfg.Channels)
	}
	return cfg, nil
}

// ingest decodes one binary audio message and feeds it to the detector.
func (s *session) ingest(payload []byte) error {
	s.metrics.AudioBytesIn.Add(s.ctx, int64(len(payload)),
		metric.WithAttributes(attribute.String("encoding", s.cfg.Encoding)))

	samples, err := s.decode(payload)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	before := s.det.FramesProcessed()
	if err := s.det.Push(samples); err != nil {
		return fmt.Errorf("push samples: %w", err)
	}
	s.metrics.FramesProcessed.Add(s.ctx, s.det.FramesProcessed()-before)
	return nil
}

// decode converts one payload into 16 kHz mono float32 samples.
func (s *session) decode(payload []byte) ([]float32, error) {
	switch s.cfg.Encoding {
	case EncodingPCM:
		// Fast path: already in the pipeline format.
		if s.cfg.SampleRate == vad.SampleRate && s.cfg.Channels == 1 {
			samples, err := audio.Float32FromS16LE(payload)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errStreamConfig, err)
			}
			return samples, nil
		}
		pcm, err := audio.Int16FromS16LE(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errStreamConfig, err)
		}
		return s.toPipelineRate(pcm), nil

	case EncodingOpus:
		if s.dec == nil {
			dec, err := gopus.NewDecoder(s.cfg.SampleRate, s.cfg.Channels)
			if err != nil {
				return nil, fmt.Errorf("create opus decoder: %w", err)
			}
			s.dec = dec
		}
		pcm, err := s.dec.Decode(payload, opusMaxFrameSamples, false)
		if err != nil {
			return nil, fmt.Errorf("%w: opus decode: %v", errStreamConfig, err)
		}
		return s.toPipelineRate(pcm), nil
	}
	return nil, fmt.Errorf("%w: unknown encoding %q", errStreamConfig, s.cfg.Encoding)
}

// toPipelineRate downmixes decoded PCM and resamples it to 16 kHz through
// the session's stateful resampler. Channel counts were validated during
// the handshake.
func (s *session) toPipelineRate(pcm []int16) []float32 {
	if s.cfg.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if s.res == nil {
		s.res = audio.NewResampler(s.cfg.SampleRate, vad.SampleRate)
	}
	return audio.Float32FromInt16(s.res.Process(pcm))
}

// control handles JSON text messages after the handshake. The only control
// message is flush, which drains the stream and acknowledges with a
// flushed event once all resulting segment events have been delivered.
func (s *session) control(data []byte) error {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: control message: %v", errStreamConfig, err)
	}
	switch msg.Type {
	case "flush":
		if err := s.det.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		s.writeEvent(event{Type: EventFlushed})
		return nil
	default:
		return fmt.Errorf("%w: unknown control message %q", errStreamConfig, msg.Type)
	}
}

// finish handles the end of the read loop: a clean client close flushes
// the stream so no trailing segment is lost.
func (s *session) finish(readErr error) error {
	status := websocket.CloseStatus(readErr)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		if err := s.det.Flush(); err != nil {
			return fmt.Errorf("flush on close: %w", err)
		}
		return nil
	}
	return readErr
}

func (s *session) onSpeechStart() {
	s.writeEvent(event{Type: EventSpeechStart, Frame: s.det.FramesProcessed()})
}

func (s *session) onSpeechEnd(seg vad.Segment) {
	s.metrics.RecordSegment(s.ctx, seg.Duration().Seconds())
	s.writeEvent(event{
		Type:       EventSpeechEnd,
		DurationMs: seg.DurationMs(),
		Samples:    len(seg.Samples),
		Frame:      s.det.FramesProcessed(),
	})
	s.writeBinary(audio.S16LEFromFloat32(seg.Samples))
}

func (s *session) onMisfire() {
	s.metrics.RecordMisfire(s.ctx)
	s.writeEvent(event{Type: EventMisfire, Frame: s.det.FramesProcessed()})
}

// writeEvent sends a JSON text message, recording the first failure.
func (s *session) writeEvent(ev event) {
	if s.writeErr != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.writeErr = err
		return
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		s.writeErr = err
	}
}

// writeBinary sends segment audio, recording the first failure.
func (s *session) writeBinary(data []byte) {
	if s.writeErr != nil {
		return
	}
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, data); err != nil {
		s.writeErr = err
	}
}
