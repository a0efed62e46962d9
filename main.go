package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stream-pipeline/internal/admin"
	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/config"
	"stream-pipeline/internal/dedup"
	"stream-pipeline/internal/ffmpeg"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/pool"
	"stream-pipeline/internal/processor"
	"stream-pipeline/internal/router"
	"stream-pipeline/internal/splitter"
	"stream-pipeline/internal/store"
)

func main() {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Broker
	client, err := broker.NewClient(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logging.Fatal("Broker error: %v", err)
	}
	defer client.Close()

	if err := client.EnsureTopic(ctx, cfg.TaskTopic, cfg.TopicPartitions); err != nil {
		logging.Fatal("Topic provisioning error: %v", err)
	}
	if cfg.PoolTopology == config.TopologySharded {
		for _, res := range cfg.Resolutions {
			if err := client.EnsureTopic(ctx, pool.TopicForResolution(res), cfg.TopicPartitions); err != nil {
				logging.Fatal("Topic provisioning error: %v", err)
			}
		}
	}

	// Blob storage
	blobs, err := blob.NewS3(ctx, blob.Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		logging.Fatal("Blob storage error: %v", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		logging.Fatal("Blob storage error: %v", err)
	}

	// Video record store
	videos, mongoClient, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logging.Fatal("Record store error: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	// Registries
	jobs := cancel.NewRegistry()
	uploads := dedup.NewRegistry(videos, cfg.DedupTTL)
	defer uploads.Close()
	intake := dedup.NewIntake(uploads, videos, client, cfg.TaskTopic)

	// Pipeline components
	encoder := ffmpeg.NewRunner(cfg.EncodeTimeout, jobs)
	split := splitter.New(blobs, videos, encoder, cfg.ScratchDir, cfg.ChunkDuration)
	proc := processor.New(blobs, videos, jobs, encoder, cfg.ScratchDir, cfg.ChunkDuration)
	rt := router.New(split, proc, videos, jobs, client, cfg.TaskTopic, cfg.EnqueueBatch)

	// Consumer topology
	var stats admin.StatsFunc
	switch cfg.PoolTopology {
	case config.TopologyAdaptive:
		manager := pool.NewAdaptive(client, rt.HandleMessage, pool.AdaptiveConfig{
			Topic:         cfg.TaskTopic,
			GroupID:       cfg.TaskGroupID,
			MinConsumers:  cfg.MinConsumers,
			MaxConsumers:  cfg.MaxConsumers,
			ScaleUpLag:    cfg.ScaleUpLag,
			ScaleDownLag:  cfg.ScaleDownLag,
			CheckInterval: cfg.CheckInterval,
		})
		if err := manager.Start(ctx); err != nil {
			logging.Fatal("Adaptive pool error: %v", err)
		}
		defer manager.Stop()
		stats = func(ctx context.Context) (interface{}, error) {
			return manager.Stats(ctx)
		}

	case config.TopologySharded:
		rt.RouteChunksByResolution(pool.TopicForResolution)

		// Split and merge tasks stay on the pipeline topic with a
		// single router consumer; chunk throughput comes from the
		// per-resolution shards.
		taskConsumer, err := client.NewGroupConsumer(cfg.TaskGroupID, broker.ConsumerOptions{})
		if err != nil {
			logging.Fatal("Task consumer error: %v", err)
		}
		if err := taskConsumer.Subscribe(cfg.TaskTopic); err != nil {
			logging.Fatal("Task consumer error: %v", err)
		}
		go func() {
			taskConsumer.Run(ctx, rt.HandleMessage)
			taskConsumer.Close()
		}()

		manager := pool.NewResolution(client, rt.HandleMessage, cfg.Resolutions)
		if err := manager.Start(ctx); err != nil {
			logging.Fatal("Sharded pool error: %v", err)
		}
		defer manager.Stop()
		stats = func(ctx context.Context) (interface{}, error) {
			return manager.Stats(), nil
		}
	}

	// Admin surface
	adminSrv := admin.New(cfg.AdminPort, jobs, uploads, intake, videos, cfg.Resolutions, stats)
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Admin server error: %v", err)
		}
	}()

	logging.Info("Pipeline running (%s topology, %d resolutions)", cfg.PoolTopology, len(cfg.Resolutions))
	<-ctx.Done()

	logging.Info("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Admin shutdown: %v", err)
	}
	// Deferred pool stop, dedup close and broker close run here.
}
