package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	GitHub   GitHubConfig
	Scoring  ScoringConfig
	Pipeline PipelineConfig
	Model    ModelConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	Mode         string        `env:"GIN_MODE" envDefault:"release"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
}

type DatabaseConfig struct {
	Path string `env:"DB_PATH" envDefault:"./gscout.db"`
}

type GitHubConfig struct {
	Token        string        `env:"GITHUB_TOKEN"`
	APIURL       string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	WebURL       string        `env:"GITHUB_WEB_URL" envDefault:"https://github.com"`
	RequestDelay time.Duration `env:"REQUEST_DELAY" envDefault:"1s"`
	Timeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	BackoffBase  time.Duration `env:"FETCH_BACKOFF_BASE" envDefault:"1s"`
	MaxAttempts  uint          `env:"FETCH_MAX_ATTEMPTS" envDefault:"5"`
	CacheTTL     time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"1h"`
}

// ScoringConfig holds the heuristic scorer's keyword and location sets.
// SCORING_PROFILE may point at a YAML file that overrides any of the lists.
type ScoringConfig struct {
	ProfilePath       string   `env:"SCORING_PROFILE"`
	MyCity            string   `env:"MY_CITY" envDefault:"Rome"`
	NearbyCities      []string `env:"NEARBY_CITIES" envSeparator:","`
	RegionalLocations []string `env:"ITALIAN_LOCATIONS" envSeparator:","`
	BioKeywords       []string `env:"KEYWORDS_BIO" envSeparator:","`
	ReadmeKeywords    []string `env:"KEYWORDS_README" envSeparator:","`
	SearchLanguage    string   `env:"SEARCH_LANGUAGE" envDefault:"Python"`
	SearchFollowers   string   `env:"SEARCH_FOLLOWERS" envDefault:"10..2000"`
}

type PipelineConfig struct {
	KeyUsers           []string      `env:"KEY_USERS" envSeparator:","`
	TargetUsers        int           `env:"N_USERS" envDefault:"10"`
	MaxRepos           int           `env:"MAX_REPOS" envDefault:"5"`
	BatchSize          int           `env:"BATCH_SIZE" envDefault:"50"`
	Workers            int           `env:"WORKERS" envDefault:"10"`
	HarvestWorkers     int           `env:"HARVEST_WORKERS" envDefault:"5"`
	MaxBatches         int           `env:"MAX_BATCHES" envDefault:"100"`
	MinPublicRepos     int           `env:"MIN_PUBLIC_REPOS" envDefault:"5"`
	MinCandidates      int           `env:"MIN_CANDIDATES" envDefault:"100"`
	GlobalListingLimit int           `env:"GLOBAL_LISTING_LIMIT" envDefault:"500"`
	PeerPageSize       int           `env:"PEER_PAGE_SIZE" envDefault:"50"`
	Quota              int           `env:"RUN_QUOTA" envDefault:"5"`
	UncertaintyBand    float64       `env:"UNCERTAINTY_BAND" envDefault:"0.1"`
	PromisingThreshold float64       `env:"PROMISING_THRESHOLD" envDefault:"0.75"`
	RunLockTTL         time.Duration `env:"RUN_LOCK_TTL" envDefault:"2h"`
}

type ModelConfig struct {
	Trees           int   `env:"FOREST_TREES" envDefault:"200"`
	MaxDepth        int   `env:"FOREST_MAX_DEPTH" envDefault:"10"`
	MinSamplesSplit int   `env:"FOREST_MIN_SAMPLES_SPLIT" envDefault:"5"`
	MinSamplesLeaf  int   `env:"FOREST_MIN_SAMPLES_LEAF" envDefault:"1"`
	MaxFeatures     int   `env:"TFIDF_MAX_FEATURES" envDefault:"300"`
	Seed            int64 `env:"MODEL_SEED" envDefault:"42"`
}

// RedisConfig enables the cross-process run lock when Addr is set
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	APIToken string `env:"API_TOKEN"`
}

var AppConfig *Config

// Load loads configuration from .env file and environment variables
func Load() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := Parse()
	if err != nil {
		return err
	}

	AppConfig = cfg
	return nil
}

// Parse builds a Config from the current environment without touching AppConfig
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path := cfg.Scoring.ProfilePath; path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("scoring profile %s: %w", path, err)
		}
		if err := applyScoringProfile(&cfg.Scoring, path); err != nil {
			return nil, err
		}
	}

	cfg.Scoring.NearbyCities = compact(cfg.Scoring.NearbyCities)
	cfg.Scoring.RegionalLocations = compact(cfg.Scoring.RegionalLocations)
	cfg.Scoring.BioKeywords = compact(cfg.Scoring.BioKeywords)
	cfg.Scoring.ReadmeKeywords = compact(cfg.Scoring.ReadmeKeywords)
	cfg.Pipeline.KeyUsers = compact(cfg.Pipeline.KeyUsers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.UncertaintyBand < 0 || c.Pipeline.UncertaintyBand > 0.5 {
		return fmt.Errorf("UNCERTAINTY_BAND must be within [0, 0.5], got %v", c.Pipeline.UncertaintyBand)
	}
	if c.Pipeline.PromisingThreshold < 0 || c.Pipeline.PromisingThreshold > 1 {
		return fmt.Errorf("PROMISING_THRESHOLD must be within [0, 1], got %v", c.Pipeline.PromisingThreshold)
	}
	if c.GitHub.MaxAttempts == 0 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
