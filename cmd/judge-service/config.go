package main

import (
	"fmt"
	"os"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/catalog"
	"codejudge/internal/judge/comparator"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/language"
	"codejudge/internal/judge/sandbox/security"
	"codejudge/internal/judge/scheduler"
	"codejudge/internal/judge/service"
	"codejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:2358"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 2 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWatchInterval   = 200 * time.Millisecond
	defaultVerdictTTL      = 24 * time.Hour
	defaultJobTTL          = time.Hour
	defaultSweepInterval   = time.Minute
	defaultCatalogCacheTTL = 10 * time.Minute
	defaultCatalogEmptyTTL = 30 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	WatchInterval time.Duration `yaml:"watchInterval"`
}

// KafkaConfig holds verdict event settings.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`
	VerdictTopic   string `yaml:"verdictTopic"`
}

// CatalogConfig holds problem source settings.
type CatalogConfig struct {
	ProblemsFile string        `yaml:"problemsFile"`
	Builtin      bool          `yaml:"builtin"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	EmptyTTL     time.Duration `yaml:"emptyTTL"`
	Timeout      time.Duration `yaml:"timeout"`
}

// JudgeConfig holds verdict aggregation settings.
type JudgeConfig struct {
	RunRetries    *int          `yaml:"runRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	RetryMaxDelay time.Duration `yaml:"retryMaxDelay"`
	MaxWait       time.Duration `yaml:"maxWait"`
	StoreTimeout  time.Duration `yaml:"storeTimeout"`
	VerdictTTL    time.Duration `yaml:"verdictTTL"`
	JobTTL        time.Duration `yaml:"jobTTL"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// LanguageConfig holds language definitions.
type LanguageConfig struct {
	Languages []language.Spec `yaml:"languages"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server      ServerConfig             `yaml:"server"`
	Logger      logger.Config            `yaml:"logger"`
	Redis       cache.RedisConfig        `yaml:"redis"`
	Database    db.MySQLConfig           `yaml:"database"`
	MinIO       storage.MinIOConfig      `yaml:"minio"`
	Pack        catalog.PackConfig       `yaml:"pack"`
	Kafka       KafkaConfig              `yaml:"kafka"`
	Catalog     CatalogConfig            `yaml:"catalog"`
	Scheduler   scheduler.Config         `yaml:"scheduler"`
	Sandbox     engine.Config            `yaml:"sandbox"`
	Executor    sandbox.Config           `yaml:"executor"`
	Language    LanguageConfig           `yaml:"language"`
	Comparators map[int64]string         `yaml:"comparators"`
	Limits      service.Limits           `yaml:"limits"`
	Judge       JudgeConfig              `yaml:"judge"`
	RateLimit   commonmw.RateLimitPolicy `yaml:"rateLimit"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.WatchInterval == 0 {
		cfg.Server.WatchInterval = defaultWatchInterval
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
	if cfg.Pack.Bucket == "" {
		cfg.Pack.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Kafka.VerdictTopic == "" {
		cfg.Kafka.VerdictTopic = repository.DefaultVerdictTopic
	}
	if cfg.Catalog.CacheTTL == 0 {
		cfg.Catalog.CacheTTL = defaultCatalogCacheTTL
	}
	if cfg.Catalog.EmptyTTL == 0 {
		cfg.Catalog.EmptyTTL = defaultCatalogEmptyTTL
	}
	if cfg.Judge.RunRetries == nil {
		retries := service.DefaultRunRetries()
		cfg.Judge.RunRetries = &retries
	}
	if cfg.Judge.VerdictTTL == 0 {
		cfg.Judge.VerdictTTL = defaultVerdictTTL
	}
	if cfg.Judge.JobTTL == 0 {
		cfg.Judge.JobTTL = defaultJobTTL
	}
	if cfg.Judge.SweepInterval == 0 {
		cfg.Judge.SweepInterval = defaultSweepInterval
	}
	if len(cfg.Language.Languages) == 0 {
		cfg.Language.Languages = language.Defaults()
	}
	for i := range cfg.Language.Languages {
		if cfg.Language.Languages[i].Isolation.SeccompProfile == "" {
			cfg.Language.Languages[i].Isolation.SeccompProfile = security.DefaultSeccompProfile
		}
	}
	cfg.Scheduler = cfg.Scheduler.WithDefaults()
	if cfg.Scheduler.JobTTL == 0 {
		cfg.Scheduler.JobTTL = cfg.Judge.JobTTL
	}
}

// comparatorBindings merges configured bindings over the built-in ones.
func (c *AppConfig) comparatorBindings() map[int64]string {
	out := comparator.DefaultBindings()
	for id, name := range c.Comparators {
		out[id] = name
	}
	return out
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
