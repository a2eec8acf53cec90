package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/mihaimyh/routequota/pkg/lookup"
	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
	filestore "github.com/mihaimyh/routequota/storage/file"
	"github.com/mihaimyh/routequota/storage/firestore"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"routequota.yaml",
	"routequota.yml",
	"/etc/routequota/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ROUTEQUOTA_CONFIG"

const envPrefix = "ROUTEQUOTA_"

// legacyEnv maps the variable names older deployments exported.
var legacyEnv = map[string]string{
	"AVIATIONSTACK_KEY": "lookup.aviationstack.access_key",
}

func defaultConfig() *Config {
	scorer := priority.DefaultConfig()
	return &Config{
		Quota: QuotaConfig{
			Totals:           map[string]int{routequota.DefaultAPI: routequota.DefaultMonthlyTotal},
			LowQuotaWarning:  routequota.DefaultLowQuotaWarning,
			PriorityReserve:  routequota.DefaultPriorityReserve,
			PriorityCarriers: append([]string(nil), routequota.DefaultPriorityCarriers...),
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			File:    FileConfig{Path: filestore.DefaultPath},
			Redis:   RedisConfig{KeyPrefix: "routequota:"},
			Firestore: FirestoreConfig{
				Collection:        "routequota",
				ClockSyncInterval: firestore.DefaultClockSyncInterval,
			},
		},
		Priority: PriorityConfig{
			Baseline:           scorer.Baseline,
			MilitaryBonus:      scorer.MilitaryBonus,
			PrivateBonus:       scorer.PrivateBonus,
			CargoBonus:         scorer.CargoBonus,
			InternationalBonus: scorer.InternationalBonus,
			VeryCommonPenalty:  scorer.VeryCommonPenalty,
			CommonPenalty:      scorer.CommonPenalty,
			RepeatPenalty:      scorer.RepeatPenalty,
			RepeatWindow:       scorer.RepeatWindow,
			VeryCommonMinCount: scorer.VeryCommonMinCount,
			RepeatMinCount:     scorer.RepeatMinCount,
			Bands:              scorer.Bands,
			FloorThreshold:     scorer.FloorThreshold,
		},
		Lookup: LookupConfig{
			AviationStack: AviationStackConfig{
				Endpoint:          lookup.DefaultAviationStackEndpoint,
				Timeout:           lookup.DefaultTimeout,
				RequestsPerSecond: 1,
			},
			ADSBExchange: ADSBExchangeConfig{
				Enabled:  true,
				Endpoint: lookup.DefaultADSBExchangeEndpoint,
				Timeout:  lookup.DefaultTimeout,
			},
			CacheSize: lookup.DefaultCacheSize,
			CacheTTL:  lookup.DefaultCacheTTL,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or the
// first of DefaultConfigPaths that exists when path is empty) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variables to koanf paths.
// Unrelated variables map to "" and are dropped.
//
// Examples:
//   - ROUTEQUOTA_STORAGE__BACKEND -> storage.backend
//   - ROUTEQUOTA_QUOTA__TOTALS__AVIATIONSTACK -> quota.totals.aviationstack
//   - ROUTEQUOTA_LOOKUP__AVIATIONSTACK__ACCESS_KEY -> lookup.aviationstack.access_key
//   - AVIATIONSTACK_KEY -> lookup.aviationstack.access_key
func envTransformFunc(key string) string {
	if path, ok := legacyEnv[key]; ok {
		return path
	}
	if !strings.HasPrefix(key, envPrefix) || key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// sliceConfigPaths are parsed as comma-separated lists when set from the environment
var sliceConfigPaths = []string{
	"quota.priority_carriers",
	"priority.common_routes",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
