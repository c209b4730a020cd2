// Package config implements CueMap's four-level configuration hierarchy:
// built-in defaults, overlaid by a YAML file, overlaid by CUEMAP_*-prefixed
// environment variables, overlaid last by programmatic overrides such as
// parsed CLI flags. The file layer unmarshals YAML directly over the
// already-populated defaults struct, so any field the file omits keeps
// its default value.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig groups network listener settings.
type ServerConfig struct {
	HTTPAddr string `yaml:"httpAddr"`
	MCPAddr  string `yaml:"mcpAddr"`
	APIKey   string `yaml:"apiKey"`
}

// StorageConfig groups persistence settings.
type StorageConfig struct {
	DataPath         string        `yaml:"dataPath"`
	Compress         bool          `yaml:"compress"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// IndexConfig groups the Cue Index / Co-occurrence sizing constants.
type IndexConfig struct {
	ShardCount int `yaml:"shardCount"`
}

// RecallConfig groups the Recall Engine's scoring constants.
type RecallConfig struct {
	HalfLifePositions float64 `yaml:"halfLifePositions"`
	Alpha             float64 `yaml:"alpha"`
	Beta              float64 `yaml:"beta"`
	FastDepth         int     `yaml:"fastDepth"`
	CooccurTopK       int     `yaml:"cooccurTopK"`
	CooccurMinCount   uint32  `yaml:"cooccurMinCount"`
}

// EpisodeConfig groups episode-chunking constants.
type EpisodeConfig struct {
	Jaccard float64       `yaml:"jaccard"`
	Window  time.Duration `yaml:"window"`
}

// ConsolidateConfig groups consolidator constants.
type ConsolidateConfig struct {
	Jaccard  float64       `yaml:"jaccard"`
	Interval time.Duration `yaml:"interval"`
}

// AliasConfig groups alias-proposer constants.
type AliasConfig struct {
	Jaccard  float64       `yaml:"jaccard"`
	Interval time.Duration `yaml:"interval"`
}

// JobsConfig groups the Job Pipeline's sizing constants.
type JobsConfig struct {
	QueueCapacity     int           `yaml:"queueCapacity"`
	IngestSessionIdle time.Duration `yaml:"ingestSessionIdle"`
}

// TenantConfig groups multi-tenant supervisor settings.
type TenantConfig struct {
	RegistryEnabled bool          `yaml:"registryEnabled"`
	IdleEvictAfter  time.Duration `yaml:"idleEvictAfter"`
}

// Config is the full CueMap daemon configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Index       IndexConfig       `yaml:"index"`
	Recall      RecallConfig      `yaml:"recall"`
	Episode     EpisodeConfig     `yaml:"episode"`
	Consolidate ConsolidateConfig `yaml:"consolidate"`
	Alias       AliasConfig       `yaml:"alias"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Tenant      TenantConfig      `yaml:"tenant"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
		},
		Storage: StorageConfig{
			DataPath:         "./data",
			Compress:         true,
			SnapshotInterval: 60 * time.Second,
		},
		Index: IndexConfig{
			ShardCount: 128,
		},
		Recall: RecallConfig{
			HalfLifePositions: 32,
			Alpha:             0.5,
			Beta:              0.3,
			FastDepth:         256,
			CooccurTopK:       8,
			CooccurMinCount:   3,
		},
		Episode: EpisodeConfig{
			Jaccard: 0.4,
			Window:  300 * time.Second,
		},
		Consolidate: ConsolidateConfig{
			Jaccard:  0.8,
			Interval: 24 * time.Hour,
		},
		Alias: AliasConfig{
			Jaccard:  0.9,
			Interval: 10 * time.Minute,
		},
		Jobs: JobsConfig{
			QueueCapacity:     1000,
			IngestSessionIdle: 500 * time.Millisecond,
		},
		Tenant: TenantConfig{
			RegistryEnabled: false,
			IdleEvictAfter:  30 * time.Minute,
		},
	}
}

// FromFile reads a YAML configuration file and merges it on top of the
// built-in defaults. Fields absent from the file retain their defaults.
func FromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv applies CUEMAP_*-prefixed environment variable overrides to cfg.
// If cfg is nil a new default Config is created first.
func FromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = Default()
	}

	setEnvStr("CUEMAP_HTTP_ADDR", &cfg.Server.HTTPAddr)
	setEnvStr("CUEMAP_MCP_ADDR", &cfg.Server.MCPAddr)
	setEnvStr("CUEMAP_API_KEY", &cfg.Server.APIKey)

	setEnvStr("CUEMAP_DATA_PATH", &cfg.Storage.DataPath)
	setEnvBool("CUEMAP_COMPRESS", &cfg.Storage.Compress)
	setEnvDuration("CUEMAP_SNAPSHOT_INTERVAL", &cfg.Storage.SnapshotInterval)

	setEnvInt("CUEMAP_SHARD_COUNT", &cfg.Index.ShardCount)

	setEnvFloat("CUEMAP_HALF_LIFE_POSITIONS", &cfg.Recall.HalfLifePositions)
	setEnvFloat("CUEMAP_ALPHA", &cfg.Recall.Alpha)
	setEnvFloat("CUEMAP_BETA", &cfg.Recall.Beta)
	setEnvInt("CUEMAP_FAST_DEPTH", &cfg.Recall.FastDepth)
	setEnvInt("CUEMAP_COOCCURRENCE_TOPK", &cfg.Recall.CooccurTopK)

	setEnvFloat("CUEMAP_EPISODE_JACCARD", &cfg.Episode.Jaccard)
	setEnvDuration("CUEMAP_EPISODE_WINDOW", &cfg.Episode.Window)

	setEnvFloat("CUEMAP_CONSOLIDATE_JACCARD", &cfg.Consolidate.Jaccard)
	setEnvDuration("CUEMAP_CONSOLIDATE_INTERVAL", &cfg.Consolidate.Interval)

	setEnvFloat("CUEMAP_ALIAS_JACCARD", &cfg.Alias.Jaccard)
	setEnvDuration("CUEMAP_ALIAS_INTERVAL", &cfg.Alias.Interval)

	setEnvInt("CUEMAP_JOB_QUEUE_CAPACITY", &cfg.Jobs.QueueCapacity)
	setEnvDuration("CUEMAP_INGEST_SESSION_IDLE", &cfg.Jobs.IngestSessionIdle)

	setEnvBool("CUEMAP_TENANT_REGISTRY_ENABLED", &cfg.Tenant.RegistryEnabled)
	setEnvDuration("CUEMAP_TENANT_IDLE_EVICT_AFTER", &cfg.Tenant.IdleEvictAfter)

	return cfg
}

// Load implements the first three levels of the hierarchy: defaults, then
// (if configPath is non-empty) the YAML file, then environment variables.
// The caller applies the fourth level — CLI flag overrides — afterward.
func Load(configPath string) (*Config, error) {
	var cfg *Config
	if configPath != "" {
		var err error
		cfg, err = FromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = Default()
	}
	return FromEnv(cfg), nil
}

// Validate performs structural validation, returning a descriptive error
// for the first invalid field encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.httpAddr must not be empty")
	}
	if c.Storage.DataPath == "" {
		return fmt.Errorf("storage.dataPath must not be empty")
	}
	if c.Index.ShardCount < 1 {
		return fmt.Errorf("index.shardCount must be >= 1, got %d", c.Index.ShardCount)
	}
	if c.Recall.HalfLifePositions <= 0 {
		return fmt.Errorf("recall.halfLifePositions must be > 0")
	}
	if c.Jobs.QueueCapacity < 1 {
		return fmt.Errorf("jobs.queueCapacity must be >= 1, got %d", c.Jobs.QueueCapacity)
	}
	for name, j := range map[string]float64{
		"episode.jaccard":     c.Episode.Jaccard,
		"consolidate.jaccard": c.Consolidate.Jaccard,
		"alias.jaccard":       c.Alias.Jaccard,
	} {
		if j <= 0 || j > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", name, j)
		}
	}
	return nil
}

func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setEnvBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setEnvFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func setEnvDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
