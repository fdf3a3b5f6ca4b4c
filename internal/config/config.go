// Package config loads the immutable engine configuration from
// SENTINEL_* environment variables, with an optional .env file.
// Evaluators and surfaces receive a read-only Config; there is no
// mutable global.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"sentinel/internal/model"
)

// Config is the single configuration record produced at startup.
type Config struct {
	// UseLocalMocks selects file-backed stores for the audit log and
	// agent registry instead of a database.
	UseLocalMocks bool

	// DataDir holds the seed topology / policy / incident files and,
	// in mock mode, the decisions/ and agents/ directories.
	DataDir string

	TopologyPath  string
	PoliciesPath  string
	IncidentsPath string

	// AuditDSN selects the audit/registry database in live mode.
	// postgres:// DSNs use pgx; anything else is a SQLite file path.
	AuditDSN string

	Weights    model.Weights
	Thresholds model.Thresholds

	// EvaluatorTimeout bounds each evaluator within one pipeline call.
	EvaluatorTimeout time.Duration

	// MaxConcurrentEvaluations bounds in-flight evaluations admitted by
	// the streaming surface.
	MaxConcurrentEvaluations int

	// ServerURL is the externally visible URL advertised in the agent card.
	ServerURL string

	// ListenAddr is the bind address for the A2A + dashboard server.
	ListenAddr string

	// WatchFiles enables hot reload of the seed files.
	WatchFiles bool

	// Narrator selects the optional LLM narration vendor:
	// "" (off), "anthropic", or "gemini".
	Narrator       string
	NarratorModel  string
	NarratorAPIKey string
}

// Load builds a Config from the environment. A .env file in the working
// directory is applied first when present (existing env vars win).
// Returns model.ErrConfig (wrapped) on any invalid option.
func Load() (*Config, error) {
	// Ignore a missing .env; explicit env vars always take precedence.
	_ = godotenv.Load()

	cfg := &Config{
		UseLocalMocks:            envBool("SENTINEL_USE_LOCAL_MOCKS", true),
		DataDir:                  envOr("SENTINEL_DATA_DIR", "data"),
		AuditDSN:                 os.Getenv("SENTINEL_AUDIT_DSN"),
		Weights:                  model.DefaultWeights(),
		Thresholds:               model.DefaultThresholds(),
		MaxConcurrentEvaluations: 64,
		ServerURL:                envOr("SENTINEL_SERVER_URL", "http://localhost:8000"),
		ListenAddr:               envOr("SENTINEL_LISTEN_ADDR", ":8000"),
		WatchFiles:               envBool("SENTINEL_WATCH_FILES", false),
		Narrator:                 os.Getenv("SENTINEL_NARRATOR"),
		NarratorModel:            os.Getenv("SENTINEL_NARRATOR_MODEL"),
		NarratorAPIKey:           os.Getenv("SENTINEL_NARRATOR_API_KEY"),
	}

	cfg.TopologyPath = envOr("SENTINEL_TOPOLOGY_PATH", cfg.DataDir+"/topology.json")
	cfg.PoliciesPath = envOr("SENTINEL_POLICIES_PATH", cfg.DataDir+"/policies.json")
	cfg.IncidentsPath = envOr("SENTINEL_INCIDENTS_PATH", cfg.DataDir+"/incidents.json")

	var err error
	if cfg.Thresholds.AutoApprove, err = envFloat("SENTINEL_AUTO_APPROVE_THRESHOLD", cfg.Thresholds.AutoApprove); err != nil {
		return nil, err
	}
	if cfg.Thresholds.HumanReview, err = envFloat("SENTINEL_HUMAN_REVIEW_THRESHOLD", cfg.Thresholds.HumanReview); err != nil {
		return nil, err
	}
	if cfg.Weights.Infrastructure, err = envFloat("SENTINEL_WEIGHT_INFRA", cfg.Weights.Infrastructure); err != nil {
		return nil, err
	}
	if cfg.Weights.Policy, err = envFloat("SENTINEL_WEIGHT_POLICY", cfg.Weights.Policy); err != nil {
		return nil, err
	}
	if cfg.Weights.Historical, err = envFloat("SENTINEL_WEIGHT_HISTORICAL", cfg.Weights.Historical); err != nil {
		return nil, err
	}
	if cfg.Weights.Cost, err = envFloat("SENTINEL_WEIGHT_COST", cfg.Weights.Cost); err != nil {
		return nil, err
	}

	timeoutSecs, err := envFloat("SENTINEL_EVALUATOR_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.EvaluatorTimeout = time.Duration(timeoutSecs * float64(time.Second))

	if v := os.Getenv("SENTINEL_MAX_CONCURRENT_EVALUATIONS"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return nil, fmt.Errorf("%w: SENTINEL_MAX_CONCURRENT_EVALUATIONS: %v", model.ErrConfig, convErr)
		}
		cfg.MaxConcurrentEvaluations = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants: weights sum to 1.0
// within 1e-9, thresholds are ordered, and bounds are sane.
func (c *Config) Validate() error {
	if diff := math.Abs(c.Weights.Sum() - 1.0); diff > 1e-9 {
		return fmt.Errorf("%w: SRI weights sum to %.12f, must be 1.0", model.ErrConfig, c.Weights.Sum())
	}
	t := c.Thresholds
	if t.AutoApprove < 0 || t.AutoApprove > t.HumanReview || t.HumanReview > 100 {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= auto_approve (%.1f) <= human_review (%.1f) <= 100",
			model.ErrConfig, t.AutoApprove, t.HumanReview)
	}
	if c.EvaluatorTimeout <= 0 {
		return fmt.Errorf("%w: evaluator timeout must be positive", model.ErrConfig)
	}
	if c.MaxConcurrentEvaluations < 1 {
		return fmt.Errorf("%w: max concurrent evaluations must be at least 1", model.ErrConfig)
	}
	switch c.Narrator {
	case "", "anthropic", "gemini":
	default:
		return fmt.Errorf("%w: unknown narrator vendor %q (supported: anthropic, gemini)", model.ErrConfig, c.Narrator)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", model.ErrConfig, key, err)
	}
	return f, nil
}
