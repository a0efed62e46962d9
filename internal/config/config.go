package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/resolution"
)

// Topology selects which consumer pool manager runs the pipeline.
type Topology string

const (
	// TopologyAdaptive scales a homogeneous consumer count against lag.
	TopologyAdaptive Topology = "adaptive"
	// TopologySharded runs one dedicated consumer per resolution topic.
	TopologySharded Topology = "sharded"
)

// Config holds all runtime configuration for the pipeline.
type Config struct {
	// Kafka
	KafkaBrokers    string
	KafkaClientID   string
	TaskTopic       string
	TaskGroupID     string
	TopicPartitions int

	// Blob storage (S3-compatible)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3PathStyle bool

	// Video record store
	MongoURI      string
	MongoDatabase string

	// Pipeline
	Resolutions   []string
	ChunkDuration time.Duration
	ScratchDir    string
	EncodeTimeout time.Duration
	EnqueueBatch  int

	// Consumer topology
	PoolTopology  Topology
	MinConsumers  int
	MaxConsumers  int
	ScaleUpLag    int64
	ScaleDownLag  int64
	CheckInterval time.Duration

	// Dedup
	DedupTTL time.Duration

	// Admin HTTP surface
	AdminPort string
}

// Load reads configuration from the environment, applying defaults and
// validating the result.
func Load() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		KafkaBrokers:    getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaClientID:   getEnv("KAFKA_CLIENT_ID", "stream-pipeline"),
		TaskTopic:       getEnv("TASK_TOPIC", "video-tasks"),
		TaskGroupID:     getEnv("TASK_GROUP_ID", "video-task-consumer-group"),
		TopicPartitions: getEnvInt("TOPIC_PARTITIONS", 3),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", "videos"),
		S3PathStyle: getEnvBool("S3_PATH_STYLE", true),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "stream"),

		ScratchDir:    getEnv("SCRATCH_DIR", os.TempDir()),
		ChunkDuration: getEnvDuration("CHUNK_DURATION", 60*time.Second),
		EncodeTimeout: getEnvDuration("ENCODE_TIMEOUT", 10*time.Minute),
		EnqueueBatch:  getEnvInt("ENQUEUE_BATCH", 50),

		PoolTopology:  Topology(getEnv("POOL_TOPOLOGY", string(TopologySharded))),
		MinConsumers:  getEnvInt("MIN_CONSUMERS", 1),
		MaxConsumers:  getEnvInt("MAX_CONSUMERS", 3),
		ScaleUpLag:    int64(getEnvInt("SCALE_UP_LAG", 10)),
		ScaleDownLag:  int64(getEnvInt("SCALE_DOWN_LAG", 2)),
		CheckInterval: getEnvDuration("CHECK_INTERVAL", 10*time.Second),

		DedupTTL: getEnvDuration("DEDUP_TTL", 30*time.Minute),

		AdminPort: getEnv("ADMIN_PORT", "8080"),
	}

	resStr := getEnv("RESOLUTIONS", strings.Join(resolution.Names(), ","))
	for _, r := range strings.Split(resStr, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !resolution.Valid(r) {
			return nil, fmt.Errorf("RESOLUTIONS contains unknown tier %q", r)
		}
		cfg.Resolutions = append(cfg.Resolutions, r)
	}
	if len(cfg.Resolutions) == 0 {
		return nil, fmt.Errorf("RESOLUTIONS must name at least one tier")
	}

	scratch, err := filepath.Abs(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch directory: %w", err)
	}
	cfg.ScratchDir = scratch

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logging.Info("  KAFKA_BROKERS:     %s", cfg.KafkaBrokers)
	logging.Info("  TASK_TOPIC:        %s", cfg.TaskTopic)
	logging.Info("  TASK_GROUP_ID:     %s", cfg.TaskGroupID)
	logging.Info("  S3_ENDPOINT:       %s", cfg.S3Endpoint)
	logging.Info("  S3_BUCKET:         %s", cfg.S3Bucket)
	logging.Info("  MONGO_DATABASE:    %s", cfg.MongoDatabase)
	logging.Info("  RESOLUTIONS:       %s", strings.Join(cfg.Resolutions, ","))
	logging.Info("  CHUNK_DURATION:    %s", cfg.ChunkDuration)
	logging.Info("  SCRATCH_DIR:       %s", cfg.ScratchDir)
	logging.Info("  ENCODE_TIMEOUT:    %s", cfg.EncodeTimeout)
	logging.Info("  POOL_TOPOLOGY:     %s", cfg.PoolTopology)
	logging.Info("  ADMIN_PORT:        %s", cfg.AdminPort)
	logging.Info("  LOG_LEVEL:         %s", logging.GetLevel())

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PoolTopology != TopologyAdaptive && c.PoolTopology != TopologySharded {
		return fmt.Errorf("POOL_TOPOLOGY must be %q or %q, got %q",
			TopologyAdaptive, TopologySharded, c.PoolTopology)
	}
	if c.MinConsumers < 1 {
		return fmt.Errorf("MIN_CONSUMERS must be at least 1")
	}
	if c.MaxConsumers < c.MinConsumers {
		return fmt.Errorf("MAX_CONSUMERS (%d) must not be below MIN_CONSUMERS (%d)",
			c.MaxConsumers, c.MinConsumers)
	}
	if c.ChunkDuration < time.Second {
		return fmt.Errorf("CHUNK_DURATION must be at least 1s")
	}
	if c.EnqueueBatch < 1 {
		return fmt.Errorf("ENQUEUE_BATCH must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	logging.Warn("  Invalid %s=%q, using default: %v", key, v, fallback)
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default: %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default: %s", key, v, fallback)
		return fallback
	}
	return d
}
