// Package config loads the service's configuration via spf13/viper
// (+go-viper/mapstructure/v2 for decoding), matching the way the teacher's
// handlers consume a single injected *config.Config (see
// handler/system.go's `h.cfg.VectorDatabase.Driver`-style field access).
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ModelBackendConfig configures one C1 capability's local/remote pair.
type ModelBackendConfig struct {
	Source    string `mapstructure:"source"` // "local" or "remote"
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	ModelName string `mapstructure:"model_name"`
	ModelID   string `mapstructure:"model_id"`
}

// VectorDatabaseConfig selects and configures the document-corpus store.
type VectorDatabaseConfig struct {
	Driver     string `mapstructure:"driver"` // "qdrant"
	URL        string `mapstructure:"url"`
	Collection string `mapstructure:"collection"`
	Dimension  int    `mapstructure:"dimension"`
}

// QACacheConfig configures the separate QA-cache vector collection
// (pgvector, per spec.md §3 invariant "separate vector collection").
type QACacheConfig struct {
	DSN               string        `mapstructure:"dsn"`
	Table             string        `mapstructure:"table"`
	HitThreshold      float64       `mapstructure:"hit_threshold"`
	DislikeInvalidate int           `mapstructure:"dislike_invalidate"`
	ExportInterval    time.Duration `mapstructure:"export_interval"`
	ParquetDir        string        `mapstructure:"parquet_dir"`
}

// RetrieverConfig holds C3's tunables (spec.md §4.3).
type RetrieverConfig struct {
	CandidateK        int     `mapstructure:"candidate_k"`
	FinalK            int     `mapstructure:"final_k"`
	RerankEnabled     bool    `mapstructure:"rerank_enabled"`
	ScoreFloor        float64 `mapstructure:"score_floor"`
	DedupEpsilon      float64 `mapstructure:"dedup_epsilon"`
	KeywordIndexURL   string  `mapstructure:"keyword_index_url"`
	KeywordThreshold  float64 `mapstructure:"keyword_threshold"`
	VectorThreshold   float64 `mapstructure:"vector_threshold"`
	GraphDatabaseURL  string  `mapstructure:"graph_database_url"`
}

// ReActConfig holds C5's tunables (spec.md §4.5).
type ReActConfig struct {
	MaxIterations        int           `mapstructure:"max_iterations"`
	ObservationSoftLimit int           `mapstructure:"observation_soft_limit"`
	RequestDeadline      time.Duration `mapstructure:"request_deadline"`
	ToolDeadline         time.Duration `mapstructure:"tool_deadline"`
}

// HistoryConfig holds C8's tunables (spec.md §3/§4.8).
type HistoryConfig struct {
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisDB          int           `mapstructure:"redis_db"`
	MessageThreshold int           `mapstructure:"message_threshold"`
	TokenThreshold   int           `mapstructure:"token_threshold"`
	TailTurns        int           `mapstructure:"tail_turns"`
	Expiry           time.Duration `mapstructure:"expiry"`
}

// EventBusConfig holds C6's tunables (spec.md §4.6).
type EventBusConfig struct {
	Capacity         int           `mapstructure:"capacity"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	ConsumePoll      time.Duration `mapstructure:"consume_poll"`
	ReasonerPoolSize int           `mapstructure:"reasoner_pool_size"`
}

// ObjectStorageConfig selects the attachment backend (SPEC_FULL.md §C.9).
type ObjectStorageConfig struct {
	Backend string `mapstructure:"backend"` // "minio" or "cos"
	Bucket  string `mapstructure:"bucket"`

	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`

	COSBucketURL string `mapstructure:"cos_bucket_url"`
	COSSecretID  string `mapstructure:"cos_secret_id"`
	COSSecretKey string `mapstructure:"cos_secret_key"`
}

// HTTPConfig configures the gin server.
type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	MaxFileSizeMB  int64    `mapstructure:"max_file_size_mb"`
}

// PostgresConfig configures the relational store (sessions/messages/custom
// agents), matching application/repository/custom_agent.go's `*gorm.DB`.
type PostgresConfig struct {
	DSN             string `mapstructure:"dsn"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

// AsynqConfig configures the background job queue (auto-name, cache export).
type AsynqConfig struct {
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// Config is the single injected configuration object, mirroring
// handler/system.go's `h.cfg` field.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	HTTP           HTTPConfig           `mapstructure:"http"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	VectorDatabase VectorDatabaseConfig `mapstructure:"vector_database"`
	QACache        QACacheConfig        `mapstructure:"qa_cache"`
	Retriever      RetrieverConfig      `mapstructure:"retriever"`
	ReAct          ReActConfig          `mapstructure:"react"`
	History        HistoryConfig        `mapstructure:"history"`
	EventBus       EventBusConfig       `mapstructure:"event_bus"`
	ObjectStorage  ObjectStorageConfig  `mapstructure:"object_storage"`
	Asynq          AsynqConfig          `mapstructure:"asynq"`

	Chat      ModelBackendConfig `mapstructure:"chat"`
	Embedding ModelBackendConfig `mapstructure:"embedding"`
	Rerank    ModelBackendConfig `mapstructure:"rerank"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_file_size_mb", 50)
	v.SetDefault("vector_database.driver", "qdrant")
	v.SetDefault("vector_database.dimension", 1024)
	v.SetDefault("qa_cache.hit_threshold", 0.95)
	v.SetDefault("qa_cache.dislike_invalidate", 1)
	v.SetDefault("qa_cache.export_interval", 24*time.Hour)
	v.SetDefault("retriever.candidate_k", 15)
	v.SetDefault("retriever.final_k", 5)
	v.SetDefault("retriever.rerank_enabled", true)
	v.SetDefault("retriever.score_floor", -100.0)
	v.SetDefault("retriever.dedup_epsilon", 0.02)
	v.SetDefault("react.max_iterations", 5)
	v.SetDefault("react.observation_soft_limit", 10000)
	v.SetDefault("react.request_deadline", 120*time.Second)
	v.SetDefault("react.tool_deadline", 30*time.Second)
	v.SetDefault("history.message_threshold", 10)
	v.SetDefault("history.token_threshold", 6400)
	v.SetDefault("history.tail_turns", 4)
	v.SetDefault("history.expiry", 24*time.Hour)
	v.SetDefault("event_bus.capacity", 1024)
	v.SetDefault("event_bus.publish_timeout", 200*time.Millisecond)
	v.SetDefault("event_bus.consume_poll", 50*time.Millisecond)
	v.SetDefault("event_bus.reasoner_pool_size", 64)
	v.SetDefault("object_storage.backend", "minio")
}

// Load reads config.yaml (searched in ".", "./config", "/etc/ragstream")
// plus RAGSTREAM_-prefixed environment overrides, matching the teacher's
// viper-based config loading convention.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("ragstream")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ragstream")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, err
	}
	return cfg, nil
}
