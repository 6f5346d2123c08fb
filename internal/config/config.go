// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. Scoring weights and thresholds additionally
// hot-reload from the persisted config table (see store.ConfigStore); the
// values here are the deploy-time defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceMode selects which continuous service a process runs.
type ServiceMode string

const (
	ModePoll            ServiceMode = "poll"
	ModeWork            ServiceMode = "work"
	ModeWorkContinuous  ServiceMode = "work-continuous"
	ModeChunking        ServiceMode = "chunking"
	ModeChunkContinuous ServiceMode = "chunk-continuous"
	ModeEmbedding       ServiceMode = "embedding"
	ModeOpenAIMigration ServiceMode = "openai-migration"
	ModeFTS             ServiceMode = "fts"
	ModeFTSContinuous   ServiceMode = "fts-continuous"
	ModeBot             ServiceMode = "bot"
)

// ValidModes lists every SERVICE_MODE the launcher accepts.
var ValidModes = []ServiceMode{
	ModePoll, ModeWork, ModeWorkContinuous, ModeChunking, ModeChunkContinuous,
	ModeEmbedding, ModeOpenAIMigration, ModeFTS, ModeFTSContinuous, ModeBot,
}

// Config is the complete process configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`

	Feed   FeedConfig   `yaml:"feed"`
	Work   WorkConfig   `yaml:"work"`
	Chunk  ChunkConfig  `yaml:"chunk"`
	Embed  EmbedConfig  `yaml:"embed"`
	FTS    FTSConfig    `yaml:"fts"`
	Rank   RankConfig   `yaml:"rank"`
	Ask    AskConfig    `yaml:"ask"`
	Server ServerConfig `yaml:"server"`
}

// FeedConfig configures the feed poller.
type FeedConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	Interval        time.Duration `yaml:"interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	PerDomainRPS    float64       `yaml:"per_domain_rps"`
	DedupWindowDays int           `yaml:"dedup_window_days"`
	UserAgent       string        `yaml:"user_agent"`
}

// WorkConfig configures the article worker.
type WorkConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	Interval       time.Duration `yaml:"interval"`
	Workers        int           `yaml:"workers"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	MaxRetries     int           `yaml:"max_retries"`
	MinWordCount   int           `yaml:"min_word_count"`
	SoftDupJaccard float64       `yaml:"soft_dup_jaccard"`
}

// ChunkConfig configures the chunker.
type ChunkConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	Interval        time.Duration `yaml:"interval"`
	MaxChunkTokens  int           `yaml:"max_chunk_tokens"`
	OverlapTokens   int           `yaml:"overlap_tokens"`
	UseLLMSplitter  bool          `yaml:"use_llm_splitter"`
	SplitterModel   string        `yaml:"splitter_model"`
	SplitterTimeout time.Duration `yaml:"splitter_timeout"`
}

// EmbedConfig configures the embedder.
type EmbedConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	Interval       time.Duration `yaml:"interval"`
	Model          string        `yaml:"model"`
	Dimensions     int           `yaml:"dimensions"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// FTSConfig configures the full-text indexer.
type FTSConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Interval  time.Duration `yaml:"interval"`
}

// RankConfig holds retrieval scoring defaults. Runtime overrides come from
// the persisted config table and win over these within one polling cycle.
type RankConfig struct {
	SemanticWeight  float64       `yaml:"semantic_weight"`
	LexicalWeight   float64       `yaml:"lexical_weight"`
	FreshnessWeight float64       `yaml:"freshness_weight"`
	SourceWeight    float64       `yaml:"source_weight"`
	MinCosine       float64       `yaml:"min_cosine"`
	FreshnessTau    time.Duration `yaml:"freshness_tau"`
	MaxPerDomain    int           `yaml:"max_per_domain"`
	MinResults      int           `yaml:"min_results"`
	DefaultWindow   time.Duration `yaml:"default_window"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheSize       int           `yaml:"cache_size"`
}

// AskConfig configures the orchestrator and governor defaults.
type AskConfig struct {
	PrimaryModel    string        `yaml:"primary_model"`
	FallbackModels  []string      `yaml:"fallback_models"`
	MaxTokens       int           `yaml:"max_tokens"`
	BudgetCents     int           `yaml:"budget_cents"`
	Timeout         time.Duration `yaml:"timeout"`
	DefaultDepth    int           `yaml:"default_depth"`
	TrustedDomains  []string      `yaml:"trusted_domains"`
	ReasoningEffort string        `yaml:"reasoning_effort"`
}

// ServerConfig configures the HTTP retrieval surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the deploy-time defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Feed: FeedConfig{
			BatchSize:       50,
			Interval:        60 * time.Second,
			FetchTimeout:    30 * time.Second,
			PerDomainRPS:    1,
			DedupWindowDays: 7,
			UserAgent:       "rssnews/1.0 (+https://github.com/langgraphsystem/rssnews)",
		},
		Work: WorkConfig{
			BatchSize:      50,
			Interval:       30 * time.Second,
			Workers:        8,
			FetchTimeout:   30 * time.Second,
			LockTTL:        time.Hour,
			MaxRetries:     3,
			MinWordCount:   80,
			SoftDupJaccard: 0.85,
		},
		Chunk: ChunkConfig{
			BatchSize:       50,
			Interval:        30 * time.Second,
			MaxChunkTokens:  6000,
			OverlapTokens:   50,
			UseLLMSplitter:  false,
			SplitterModel:   "gpt-5-mini",
			SplitterTimeout: 20 * time.Second,
		},
		Embed: EmbedConfig{
			BatchSize:      100,
			Interval:       30 * time.Second,
			Model:          "text-embedding-3-large",
			Dimensions:     3072,
			MaxTokens:      8192,
			RequestTimeout: 60 * time.Second,
		},
		FTS: FTSConfig{
			BatchSize: 100000,
			Interval:  60 * time.Second,
		},
		Rank: RankConfig{
			SemanticWeight:  0.45,
			LexicalWeight:   0.30,
			FreshnessWeight: 0.20,
			SourceWeight:    0.05,
			MinCosine:       0.28,
			FreshnessTau:    72 * time.Hour,
			MaxPerDomain:    2,
			MinResults:      3,
			DefaultWindow:   7 * 24 * time.Hour,
			CacheTTL:        300 * time.Second,
			CacheSize:       512,
		},
		Ask: AskConfig{
			PrimaryModel:    "gpt-5",
			FallbackModels:  []string{"gpt-5-mini", "gpt-4o-mini"},
			MaxTokens:       8000,
			BudgetCents:     50,
			Timeout:         60 * time.Second,
			DefaultDepth:    3,
			TrustedDomains:  DefaultTrustedDomains,
			ReasoningEffort: "minimal",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Mode reads SERVICE_MODE. An empty value defaults to bot.
func Mode() (ServiceMode, error) {
	raw := strings.TrimSpace(os.Getenv("SERVICE_MODE"))
	if raw == "" {
		return ModeBot, nil
	}
	mode := ServiceMode(raw)
	for _, m := range ValidModes {
		if mode == m {
			return mode, nil
		}
	}
	return "", fmt.Errorf("unknown SERVICE_MODE %q", raw)
}

// applyEnv overlays environment variables on the loaded file.
func (c *Config) applyEnv() {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")

	setInt(&c.Feed.BatchSize, "FEED_BATCH_SIZE")
	setDuration(&c.Feed.Interval, "FEED_INTERVAL")
	setFloat(&c.Feed.PerDomainRPS, "FEED_PER_DOMAIN_RPS")
	setInt(&c.Feed.DedupWindowDays, "FEED_DEDUP_WINDOW_DAYS")

	setInt(&c.Work.BatchSize, "WORK_BATCH_SIZE")
	setInt(&c.Work.Workers, "WORK_WORKERS")
	setDuration(&c.Work.Interval, "WORK_INTERVAL")
	setInt(&c.Work.MinWordCount, "WORK_MIN_WORD_COUNT")

	setInt(&c.Chunk.BatchSize, "CHUNK_BATCH_SIZE")
	setInt(&c.Chunk.MaxChunkTokens, "CHUNK_MAX_TOKENS")
	setInt(&c.Chunk.OverlapTokens, "CHUNK_OVERLAP_TOKENS")
	setBool(&c.Chunk.UseLLMSplitter, "CHUNK_USE_LLM_SPLITTER")

	setInt(&c.Embed.BatchSize, "EMBED_BATCH_SIZE")
	setString(&c.Embed.Model, "EMBED_MODEL")
	setInt(&c.Embed.Dimensions, "EMBED_DIMENSIONS")
	setInt(&c.Embed.MaxTokens, "EMBED_MAX_TOKENS")

	setInt(&c.FTS.BatchSize, "FTS_BATCH_SIZE")
	setDuration(&c.FTS.Interval, "FTS_INTERVAL")

	setFloat(&c.Rank.SemanticWeight, "RANK_SEMANTIC_WEIGHT")
	setFloat(&c.Rank.LexicalWeight, "RANK_LEXICAL_WEIGHT")
	setFloat(&c.Rank.FreshnessWeight, "RANK_FRESHNESS_WEIGHT")
	setFloat(&c.Rank.SourceWeight, "RANK_SOURCE_WEIGHT")
	setFloat(&c.Rank.MinCosine, "RANK_MIN_COSINE")
	setInt(&c.Rank.MaxPerDomain, "RANK_MAX_PER_DOMAIN")
	setInt(&c.Rank.MinResults, "RANK_MIN_RESULTS")
	setDuration(&c.Rank.DefaultWindow, "RANK_DEFAULT_WINDOW")
	setDuration(&c.Rank.CacheTTL, "RANK_CACHE_TTL")

	setString(&c.Ask.PrimaryModel, "ASK_PRIMARY_MODEL")
	setInt(&c.Ask.MaxTokens, "ASK_MAX_TOKENS")
	setInt(&c.Ask.BudgetCents, "ASK_BUDGET_CENTS")
	setDuration(&c.Ask.Timeout, "ASK_TIMEOUT")
	setInt(&c.Ask.DefaultDepth, "ASK_DEFAULT_DEPTH")

	setString(&c.Server.Addr, "SERVER_ADDR")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	sum := c.Rank.SemanticWeight + c.Rank.LexicalWeight + c.Rank.FreshnessWeight + c.Rank.SourceWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("rank weights must sum to 1.0, got %.3f", sum)
	}
	if c.Rank.MinCosine < 0 || c.Rank.MinCosine > 1 {
		return fmt.Errorf("rank.min_cosine out of range: %f", c.Rank.MinCosine)
	}
	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("embed.dimensions must be positive")
	}
	if c.Chunk.OverlapTokens >= c.Chunk.MaxChunkTokens {
		return fmt.Errorf("chunk.overlap_tokens must be smaller than chunk.max_chunk_tokens")
	}
	if c.Ask.DefaultDepth < 1 || c.Ask.DefaultDepth > 3 {
		return fmt.Errorf("ask.default_depth must be 1..3")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
