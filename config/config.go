package config

import (
	"os"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/locking"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"false"`

	// Redis (merge locks)
	RedisHost     string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	LockEnabled   bool          `env:"LOCK_ENABLED" env-default:"true"`
	LockTTL       time.Duration `env:"LOCK_TTL" env-default:"60s"`
	LockWait      time.Duration `env:"LOCK_WAIT" env-default:"5s"`

	// Graph Database (Memgraph)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka Consumer (merge commands)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaMergeTopic      string   `env:"KAFKA_MERGE_TOPIC" env-default:"user-merge-commands"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-merge-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
	// A failed command is retried in place, never skipped.
	KafkaRetryBackoff    time.Duration `env:"KAFKA_RETRY_BACKOFF" env-default:"500ms"`
	KafkaMaxRetryBackoff time.Duration `env:"KAFKA_MAX_RETRY_BACKOFF" env-default:"30s"`

	// Kafka Producer settings
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" env-default:"user-events"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	OtelEnabled  bool   `env:"OTEL_ENABLED" env-default:"false"`
	OtelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OtelProtocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OtelInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`

	// Merging
	MergeDefaultForward  bool `env:"MERGE_DEFAULT_FORWARD" env-default:"true"`
	MergeForwardMaxDepth int  `env:"MERGE_FORWARD_MAX_DEPTH" env-default:"10"`
}

// Load reads an optional .env file and binds the environment onto a Config.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrapf(err, "load %s", envFile)
	}

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "bind environment")
	}
	return &cfg, nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		UserName:        c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(c.DatabaseMigrationVersion),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() locking.Config {
	return locking.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
	}
}

func (c *Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:         c.KafkaBrokers,
		Topic:           c.KafkaMergeTopic,
		ConsumerGroup:   c.KafkaConsumerGroup,
		RetryBackoff:    c.KafkaRetryBackoff,
		MaxRetryBackoff: c.KafkaMaxRetryBackoff,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() exporters.OTLPConfig {
	return exporters.OTLPConfig{
		Endpoint: c.OtelEndpoint,
		Protocol: c.OtelProtocol,
		Insecure: c.OtelInsecure,
	}
}
