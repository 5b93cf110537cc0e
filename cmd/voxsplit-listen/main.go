// Command voxsplit-listen captures microphone audio, runs it through the
// segmentation pipeline and writes every detected utterance to a FLAC file.
// It is the quickest way to audition VAD tuning without a WebSocket client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/voxsplit/voxsplit/internal/app"
	"github.com/voxsplit/voxsplit/internal/config"
	"github.com/voxsplit/voxsplit/pkg/audio"
	"github.com/voxsplit/voxsplit/pkg/vad"
)

const captureRate = 16000

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML config for classifier and VAD tuning")
	outDir := flag.String("out", ".", "directory for segment FLAC files")
	listDevices := flag.Bool("devices", false, "list capture devices and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := &config.Config{Classifier: config.ClassifierConfig{Name: "energy"}}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voxsplit-listen: %v\n", err)
			return 1
		}
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		slog.Error("audio context init failed", "err", err)
		return 1
	}
	defer func() {
		mctx.Uninit()
		mctx.Free()
	}()

	if *listDevices {
		return printDevices(mctx)
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinClassifiers(reg)
	cls, err := reg.Create(cfg.Classifier)
	if err != nil {
		slog.Error("classifier init failed", "classifier", cfg.Classifier.Name, "err", err)
		return 1
	}

	writer := &segmentWriter{dir: *outDir}
	det, err := vad.New(cfg.VAD.Detector(), cls, vad.Callbacks{
		OnSpeechStart: func() {
			slog.Info("speech started")
		},
		OnSpeechEnd: func(seg vad.Segment) {
			path, err := writer.write(seg)
			if err != nil {
				slog.Error("segment write failed", "err", err)
				return
			}
			slog.Info("segment saved", "path", path, "duration_ms", seg.DurationMs())
		},
		OnVADMisfire: func() {
			slog.Debug("misfire discarded")
		},
	})
	if err != nil {
		slog.Error("detector init failed", "err", err)
		return 1
	}
	defer det.Close()

	// The data callback runs on the audio thread; hand chunks to the
	// detector via a channel so capture never blocks on inference.
	chunks := make(chan []float32, 64)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = captureRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			samples, err := audio.Float32FromS16LE(data)
			if err != nil {
				return
			}
			select {
			case chunks <- samples:
			default:
				slog.Warn("capture overrun, dropping chunk", "samples", len(samples))
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		slog.Error("capture device init failed", "err", err)
		return 1
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		slog.Error("capture start failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("listening — press Ctrl+C to stop", "out", *outDir, "classifier", cfg.Classifier.Name)

	for {
		select {
		case <-ctx.Done():
			device.Stop()
			if err := det.Flush(); err != nil && !errors.Is(err, vad.ErrClosed) {
				slog.Warn("flush error", "err", err)
			}
			slog.Info("goodbye")
			return 0
		case samples := <-chunks:
			if err := det.Push(samples); err != nil {
				slog.Error("push failed", "err", err)
				device.Stop()
				return 1
			}
		}
	}
}

func printDevices(mctx *malgo.AllocatedContext) int {
	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		slog.Error("device enumeration failed", "err", err)
		return 1
	}
	for _, d := range devices {
		fmt.Println(d.Name())
	}
	return 0
}

// segmentWriter names and writes one FLAC file per finished segment.
type segmentWriter struct {
	dir string
	n   int
}

func (w *segmentWriter) write(seg vad.Segment) (string, error) {
	w.n++
	name := fmt.Sprintf("segment-%03d-%s.flac", w.n, time.Now().Format("150405"))
	path := filepath.Join(w.dir, name)
	if err := writeFLAC(path, audio.Int16FromFloat32(seg.Samples), captureRate); err != nil {
		return "", err
	}
	return path, nil
}
