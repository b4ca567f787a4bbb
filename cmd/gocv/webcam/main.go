//go:build gocv

// Command webcam runs the droppings detector on frames captured from a
// camera over the coop floor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/dropsight/config"
	"github.com/nvr-ai/dropsight/detector"
	"github.com/nvr-ai/dropsight/images"
	"github.com/nvr-ai/dropsight/inference"
	"github.com/nvr-ai/dropsight/logging"
)

func main() {
	var (
		deviceID   int
		configPath string
		every      time.Duration
	)
	flag.IntVar(&deviceID, "device", 0, "video capture device")
	flag.StringVar(&configPath, "config", "", "configuration file")
	flag.DurationVar(&every, "every", 5*time.Second, "minimum time between processed frames")
	flag.Parse()

	if err := run(deviceID, configPath, every); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(deviceID int, configPath string, every time.Duration) error {
	cfg, err := config.Load(configPath, "")
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, err := inference.NewONNXBackend(cfg.Runtime, logger.Named("onnx"))
	if err != nil {
		return err
	}
	engine := inference.NewEngine(backend, cfg.Detector.Model.Path, inference.WithEngineLogger(logger.Named("engine")))
	defer engine.Close()

	det, err := detector.New(cfg.Detector, engine, detector.WithLogger(logger.Named("detector")))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Load before opening the camera so a bad model fails fast.
	if _, err := engine.Load(ctx); err != nil {
		return err
	}

	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return err
	}
	defer webcam.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	logger.Info("reading camera", zap.Int("device", deviceID), zap.Duration("every", every))

	var last time.Time
	for n := 0; ctx.Err() == nil; n++ {
		if ok := webcam.Read(&frame); !ok {
			return fmt.Errorf("cannot read device %d", deviceID)
		}
		if frame.Empty() || time.Since(last) < every {
			continue
		}
		last = time.Now()

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
		if err != nil {
			logger.Warn("failed to encode frame", zap.Error(err))
			continue
		}
		data := make([]byte, len(buf.GetBytes()))
		copy(data, buf.GetBytes())
		buf.Close()

		rec, err := det.Detect(ctx, &images.Image{
			ID:         fmt.Sprintf("camera%d-frame%06d.jpg", deviceID, n),
			Format:     images.FormatJPEG,
			Data:       data,
			CapturedAt: last,
		})
		if err != nil {
			logger.Warn("frame failed", zap.Error(err))
			continue
		}

		logger.Info("frame processed",
			zap.String("dominantClass", rec.DominantClass),
			zap.Int("detections", len(rec.Detections)),
			zap.Int("healthStatus", rec.HealthStatus),
		)
	}

	return nil
}
