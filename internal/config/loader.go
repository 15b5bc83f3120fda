package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "MATCHD_"

// Load builds a Config from defaults, an optional YAML file, and environment
// variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (MATCHD_CACHE_PROVIDER, MATCHD_VECTORSTORE_QDRANT_HOST, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map to config keys by stripping the MATCHD_ prefix,
// lowercasing, and replacing "_" with "." on the section boundary:
//
//	MATCHD_MATCHING_MIN_MATCH_SCORE -> matching.min_match_score
//	MATCHD_VECTORSTORE_QDRANT_HOST  -> vectorstore.qdrant.host
//
// configPath may be empty, in which case only defaults and environment
// variables apply. A missing file at a non-empty path is an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// envTransform maps MATCHD_SECTION_SUB_KEY to section.sub_key.
//
// Underscores are ambiguous: they appear inside leaf keys (min_match_score),
// inside one section name (response_cache), and as the section/key separator.
// The known multi-word prefixes are therefore handled explicitly before the
// generic first-underscore split.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))

	if rest, ok := strings.CutPrefix(s, "response_cache_"); ok {
		return "response_cache." + rest
	}
	for _, nested := range []string{"cache_redis_", "vectorstore_chromem_", "vectorstore_qdrant_"} {
		if strings.HasPrefix(s, nested) {
			parts := strings.SplitN(s, "_", 3)
			return parts[0] + "." + parts[1] + "." + parts[2]
		}
	}

	if i := strings.Index(s, "_"); i > 0 {
		return s[:i] + "." + s[i+1:]
	}
	return s
}
