package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"edgelink/config"
	"edgelink/httpServer"
	"edgelink/internal/channels"
	"edgelink/internal/codec"
	"edgelink/internal/metrics"
	"edgelink/internal/recorder"
	"edgelink/internal/registry"
	"edgelink/internal/storage"
	"edgelink/internal/transport"
	"edgelink/pkg/models"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "main")
	log.Info("Starting edgelink server...")

	// Load configuration
	cfg := config.Load()
	log.Infof("WebSocket server: %s", cfg.WSAddr)
	log.Infof("HTTP server: %s", cfg.HTTPAddr)

	if err := codec.CheckFFmpegAvailable(); err != nil {
		log.WithError(err).Warn("ffmpeg not available, H.264 channels will fail")
	}

	// Initialize snapshot storage
	var storageBackend storage.Storage

	if cfg.StorageType == "gcs" {
		if cfg.GCSBucketName == "" {
			log.Fatal("GCS_BUCKET_NAME must be set when STORAGE_TYPE=gcs")
		}
		gcsStorage, err := storage.NewGCSStorage(context.Background(), cfg.GCSBucketName, cfg.GCSBaseDir)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize GCS storage")
		}
		storageBackend = gcsStorage
		log.Infof("Storage initialized: GCS bucket=%s, baseDir=%s", cfg.GCSBucketName, cfg.GCSBaseDir)
	} else {
		localStorage, err := storage.NewLocalStorage(cfg.StorageDir)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize local storage")
		}
		storageBackend = localStorage
		log.Infof("Storage initialized: local directory=%s", cfg.StorageDir)
	}

	// Initialize metrics
	m := metrics.New()
	log.Info("Prometheus metrics initialized")

	// Initialize snapshot recorder
	rec, err := recorder.New(storageBackend, cfg.SnapshotEvery)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize recorder")
	}

	// Initialize transport and codec registry
	trServer := transport.NewServer(cfg.SendQueueSize)
	reg := registry.New(codec.NewH264Encoder, codec.NewH264Decoder)

	// Channel bindings. Image channels persist snapshots and acknowledge
	// every decoded frame back to the sender on the results event.
	var srv *channels.ServerChannels

	imageHandler := func(event string) func(from transport.ConnID, r *models.DecodedRecord) {
		return func(from transport.ConnID, r *models.DecodedRecord) {
			rec.Record(fmt.Sprintf("%s_%s", from, event), r)
			result := map[string]interface{}{
				"timestamp": r.Timestamp,
				"width":     r.Frame.Width,
				"height":    r.Frame.Height,
			}
			if _, err := srv.SendData(result, "results", channels.ChannelTypeJSON, from, false); err != nil {
				logrus.WithError(err).WithField("conn", from).Warn("Failed to send result")
			}
		}
	}

	bindings := map[string]channels.ServerBinding{
		"image_h264": {
			Type:  channels.ChannelTypeH264,
			Image: imageHandler("image_h264"),
		},
		"image_jpeg": {
			Type:  channels.ChannelTypeJPEG,
			Image: imageHandler("image_jpeg"),
		},
		"telemetry": {
			Type: channels.ChannelTypeJSON,
			JSON: func(from transport.ConnID, data map[string]interface{}) {
				logrus.WithFields(logrus.Fields{
					"conn": from,
					"data": data,
				}).Info("Telemetry received")
			},
		},
	}

	srv, err = channels.NewServer(trServer, reg, bindings, channels.Options{
		BackPressureSize: cfg.BackPressureSize,
		RecreateAttempts: cfg.RecreateAttemptsCount,
		Stats:            cfg.Stats,
		Metrics:          m,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize channels")
	}

	// Keep the connection gauge in step with the transport.
	go func() {
		for range time.Tick(5 * time.Second) {
			m.Connections.Set(float64(len(trServer.Connections())))
		}
	}()

	// WebSocket endpoint
	mux := http.NewServeMux()
	mux.Handle(channels.DataNamespace, trServer)
	go func() {
		log.Infof("Starting WebSocket server on %s%s", cfg.WSAddr, channels.DataNamespace)
		if err := http.ListenAndServe(cfg.WSAddr, mux); err != nil {
			log.WithError(err).Fatal("WebSocket server failed")
		}
	}()

	// Diagnostics HTTP server
	infos := make([]httpServer.ChannelInfo, 0, len(bindings))
	for event, b := range bindings {
		infos = append(infos, httpServer.ChannelInfo{
			Event:      event,
			Type:       b.Type.String(),
			ErrorEvent: channels.DataErrorEvent,
		})
	}
	httpSrv := httpServer.New(reg, trServer, infos)

	log.Info("edgelink server started successfully")
	if err := httpSrv.Run(cfg.HTTPAddr); err != nil {
		log.WithError(err).Fatal("HTTP server failed")
	}
}
