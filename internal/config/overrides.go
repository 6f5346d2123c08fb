package config

import (
	"strconv"
	"time"
)

// ApplyRankOverrides overlays persisted config-table values on a RankConfig.
// Keys use the "rank." prefix; unknown keys and unparseable values are
// ignored so a bad write cannot break retrieval.
func ApplyRankOverrides(base RankConfig, values map[string]string) RankConfig {
	out := base
	for key, raw := range values {
		switch key {
		case "rank.semantic_weight":
			setFloatValue(&out.SemanticWeight, raw)
		case "rank.lexical_weight":
			setFloatValue(&out.LexicalWeight, raw)
		case "rank.freshness_weight":
			setFloatValue(&out.FreshnessWeight, raw)
		case "rank.source_weight":
			setFloatValue(&out.SourceWeight, raw)
		case "rank.min_cosine":
			setFloatValue(&out.MinCosine, raw)
		case "rank.freshness_tau":
			setDurationValue(&out.FreshnessTau, raw)
		case "rank.max_per_domain":
			setIntValue(&out.MaxPerDomain, raw)
		case "rank.min_results":
			setIntValue(&out.MinResults, raw)
		case "rank.default_window":
			setDurationValue(&out.DefaultWindow, raw)
		}
	}
	return out
}

func setFloatValue(dst *float64, raw string) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		*dst = v
	}
}

func setIntValue(dst *int, raw string) {
	if v, err := strconv.Atoi(raw); err == nil {
		*dst = v
	}
}

func setDurationValue(dst *time.Duration, raw string) {
	if v, err := time.ParseDuration(raw); err == nil && v > 0 {
		*dst = v
	}
}
