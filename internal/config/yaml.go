package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Custom YAML decoding so duration fields accept "60s" / "72h" strings.
// Absent keys leave the already-applied defaults untouched, which is why
// every shadow field is a pointer.

func apply[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func applyDur(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func (f *FeedConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		BatchSize       *int     `yaml:"batch_size"`
		Interval        *string  `yaml:"interval"`
		FetchTimeout    *string  `yaml:"fetch_timeout"`
		PerDomainRPS    *float64 `yaml:"per_domain_rps"`
		DedupWindowDays *int     `yaml:"dedup_window_days"`
		UserAgent       *string  `yaml:"user_agent"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&f.BatchSize, raw.BatchSize)
	apply(&f.PerDomainRPS, raw.PerDomainRPS)
	apply(&f.DedupWindowDays, raw.DedupWindowDays)
	apply(&f.UserAgent, raw.UserAgent)
	if err := applyDur(&f.Interval, raw.Interval, "feed.interval"); err != nil {
		return err
	}
	return applyDur(&f.FetchTimeout, raw.FetchTimeout, "feed.fetch_timeout")
}

func (w *WorkConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		BatchSize      *int     `yaml:"batch_size"`
		Interval       *string  `yaml:"interval"`
		Workers        *int     `yaml:"workers"`
		FetchTimeout   *string  `yaml:"fetch_timeout"`
		LockTTL        *string  `yaml:"lock_ttl"`
		MaxRetries     *int     `yaml:"max_retries"`
		MinWordCount   *int     `yaml:"min_word_count"`
		SoftDupJaccard *float64 `yaml:"soft_dup_jaccard"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&w.BatchSize, raw.BatchSize)
	apply(&w.Workers, raw.Workers)
	apply(&w.MaxRetries, raw.MaxRetries)
	apply(&w.MinWordCount, raw.MinWordCount)
	apply(&w.SoftDupJaccard, raw.SoftDupJaccard)
	if err := applyDur(&w.Interval, raw.Interval, "work.interval"); err != nil {
		return err
	}
	if err := applyDur(&w.FetchTimeout, raw.FetchTimeout, "work.fetch_timeout"); err != nil {
		return err
	}
	return applyDur(&w.LockTTL, raw.LockTTL, "work.lock_ttl")
}

func (c *ChunkConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		BatchSize       *int    `yaml:"batch_size"`
		Interval        *string `yaml:"interval"`
		MaxChunkTokens  *int    `yaml:"max_chunk_tokens"`
		OverlapTokens   *int    `yaml:"overlap_tokens"`
		UseLLMSplitter  *bool   `yaml:"use_llm_splitter"`
		SplitterModel   *string `yaml:"splitter_model"`
		SplitterTimeout *string `yaml:"splitter_timeout"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&c.BatchSize, raw.BatchSize)
	apply(&c.MaxChunkTokens, raw.MaxChunkTokens)
	apply(&c.OverlapTokens, raw.OverlapTokens)
	apply(&c.UseLLMSplitter, raw.UseLLMSplitter)
	apply(&c.SplitterModel, raw.SplitterModel)
	if err := applyDur(&c.Interval, raw.Interval, "chunk.interval"); err != nil {
		return err
	}
	return applyDur(&c.SplitterTimeout, raw.SplitterTimeout, "chunk.splitter_timeout")
}

func (e *EmbedConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		BatchSize      *int    `yaml:"batch_size"`
		Interval       *string `yaml:"interval"`
		Model          *string `yaml:"model"`
		Dimensions     *int    `yaml:"dimensions"`
		MaxTokens      *int    `yaml:"max_tokens"`
		RequestTimeout *string `yaml:"request_timeout"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&e.BatchSize, raw.BatchSize)
	apply(&e.Model, raw.Model)
	apply(&e.Dimensions, raw.Dimensions)
	apply(&e.MaxTokens, raw.MaxTokens)
	if err := applyDur(&e.Interval, raw.Interval, "embed.interval"); err != nil {
		return err
	}
	return applyDur(&e.RequestTimeout, raw.RequestTimeout, "embed.request_timeout")
}

func (f *FTSConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		BatchSize *int    `yaml:"batch_size"`
		Interval  *string `yaml:"interval"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&f.BatchSize, raw.BatchSize)
	return applyDur(&f.Interval, raw.Interval, "fts.interval")
}

func (r *RankConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		SemanticWeight  *float64 `yaml:"semantic_weight"`
		LexicalWeight   *float64 `yaml:"lexical_weight"`
		FreshnessWeight *float64 `yaml:"freshness_weight"`
		SourceWeight    *float64 `yaml:"source_weight"`
		MinCosine       *float64 `yaml:"min_cosine"`
		FreshnessTau    *string  `yaml:"freshness_tau"`
		MaxPerDomain    *int     `yaml:"max_per_domain"`
		MinResults      *int     `yaml:"min_results"`
		DefaultWindow   *string  `yaml:"default_window"`
		CacheTTL        *string  `yaml:"cache_ttl"`
		CacheSize       *int     `yaml:"cache_size"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&r.SemanticWeight, raw.SemanticWeight)
	apply(&r.LexicalWeight, raw.LexicalWeight)
	apply(&r.FreshnessWeight, raw.FreshnessWeight)
	apply(&r.SourceWeight, raw.SourceWeight)
	apply(&r.MinCosine, raw.MinCosine)
	apply(&r.MaxPerDomain, raw.MaxPerDomain)
	apply(&r.MinResults, raw.MinResults)
	apply(&r.CacheSize, raw.CacheSize)
	if err := applyDur(&r.FreshnessTau, raw.FreshnessTau, "rank.freshness_tau"); err != nil {
		return err
	}
	if err := applyDur(&r.DefaultWindow, raw.DefaultWindow, "rank.default_window"); err != nil {
		return err
	}
	return applyDur(&r.CacheTTL, raw.CacheTTL, "rank.cache_ttl")
}

func (a *AskConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		PrimaryModel    *string   `yaml:"primary_model"`
		FallbackModels  *[]string `yaml:"fallback_models"`
		MaxTokens       *int      `yaml:"max_tokens"`
		BudgetCents     *int      `yaml:"budget_cents"`
		Timeout         *string   `yaml:"timeout"`
		DefaultDepth    *int      `yaml:"default_depth"`
		TrustedDomains  *[]string `yaml:"trusted_domains"`
		ReasoningEffort *string   `yaml:"reasoning_effort"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	apply(&a.PrimaryModel, raw.PrimaryModel)
	apply(&a.FallbackModels, raw.FallbackModels)
	apply(&a.MaxTokens, raw.MaxTokens)
	apply(&a.BudgetCents, raw.BudgetCents)
	apply(&a.DefaultDepth, raw.DefaultDepth)
	apply(&a.TrustedDomains, raw.TrustedDomains)
	apply(&a.ReasoningEffort, raw.ReasoningEffort)
	return applyDur(&a.Timeout, raw.Timeout, "ask.timeout")
}
