package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/apexlabs/apexbot/types"
)

// Config is the full runtime configuration. It is loaded once at startup
// and validated before anything else runs; the process refuses to start on
// an invalid configuration rather than trade with undefined safety behavior.
type Config struct {
	// Mode selects LIVE, DEV or SIM. Fixed for the life of the process
	// except via the controller's logged administrative override.
	Mode string `json:"mode"`

	// Chains enabled for scanning.
	Chains []string `json:"chains"`

	// ProvidersFile points at the YAML flashloan provider table. Empty
	// selects the built-in defaults.
	ProvidersFile string `json:"providers_file"`

	// PoolsFile points at the YAML pool registry the live scanner reads
	// reserves for. Required outside SIM mode.
	PoolsFile string `json:"pools_file"`

	ScanInterval time.Duration `json:"scan_interval"`

	// MetricsAddr is the listen address for the prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddr string `json:"metrics_addr"`

	Safety    SafetyConfig    `json:"safety"`
	Execution ExecutionConfig `json:"execution"`
	Scoring   ScoringConfig   `json:"scoring"`
	Tracker   TrackerConfig   `json:"tracker"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// SafetyConfig bounds how much damage a bad run can do.
type SafetyConfig struct {
	MinProfitUsd           float64       `json:"min_profit_usd"`
	MaxGasPriceGwei        float64       `json:"max_gas_price_gwei"`
	MaxDailyLossUsd        float64       `json:"max_daily_loss_usd"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
	MinTimeBetweenTrades   time.Duration `json:"min_time_between_trades"`
}

// ExecutionConfig tunes route evaluation and dispatch.
type ExecutionConfig struct {
	// ExecutionThreshold is the minimum score an opportunity needs before
	// LIVE mode will execute (or DEV/SIM will simulate).
	ExecutionThreshold float64 `json:"execution_threshold"`

	// MaxImpactBps caps trade size per hop as a fraction of the input
	// reserve, in basis points.
	MaxImpactBps int64 `json:"max_impact_bps"`

	// GridBps are the trial input sizes as basis points of the smallest
	// reserve on the route. Logarithmically spaced by default.
	GridBps []int64 `json:"grid_bps"`

	// MinFlashloanPercent/MaxFlashloanPercent bound trial sizes as a
	// percentage of the route's smallest reserve; grid entries outside the
	// bounds are clamped onto them.
	MinFlashloanPercent float64 `json:"min_flashloan_percent"`
	MaxFlashloanPercent float64 `json:"max_flashloan_percent"`

	// GasLimitPerHop sizes the gas estimate for an n-hop route.
	GasLimitPerHop uint64 `json:"gas_limit_per_hop"`

	// Workers bounds the per-chain evaluation pool. Zero means NumCPU.
	Workers int `json:"workers"`
}

// ScoringConfig holds the scorer's weights and classification thresholds.
// All values here are tuned defaults, not load-bearing constants; validate
// them empirically before trusting them.
type ScoringConfig struct {
	ProfitWeight    float64 `json:"profit_weight"`
	RiskWeight      float64 `json:"risk_weight"`
	LiquidityWeight float64 `json:"liquidity_weight"`
	HistoryWeight   float64 `json:"history_weight"`

	ExcellentThreshold float64 `json:"excellent_threshold"`
	GoodThreshold      float64 `json:"good_threshold"`
	ModerateThreshold  float64 `json:"moderate_threshold"`
	PoorThreshold      float64 `json:"poor_threshold"`

	// NeutralHistoryScore is the sub-score an averagely reliable route
	// earns; unseen routes receive HistoryPenaltyFactor of it.
	NeutralHistoryScore  float64 `json:"neutral_history_score"`
	HistoryPenaltyFactor float64 `json:"history_penalty_factor"`
}

// TrackerConfig tunes the performance tracker.
type TrackerConfig struct {
	WindowSize       int     `json:"window_size"`
	AlertFloor       float64 `json:"alert_floor"`
	AlertCeiling     float64 `json:"alert_ceiling"`
	MaxAlerts        int     `json:"max_alerts"`
	RouteHistorySize int     `json:"route_history_size"`
}

// RateLimitConfig paces scan cycles.
type RateLimitConfig struct {
	ScansPerSecond float64 `json:"scans_per_second"`
	BurstSize      int     `json:"burst_size"`
}

// DefaultConfig mirrors the original deployment's defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:         "DEV",
		Chains:       []string{"polygon", "ethereum", "arbitrum", "optimism", "base", "bsc"},
		ScanInterval: 60 * time.Second,
		MetricsAddr:  ":9090",
		Safety: SafetyConfig{
			MinProfitUsd:           5.0,
			MaxGasPriceGwei:        100.0,
			MaxDailyLossUsd:        50.0,
			MaxConsecutiveFailures: 5,
			MinTimeBetweenTrades:   30 * time.Second,
		},
		Execution: ExecutionConfig{
			ExecutionThreshold:  75.0,
			MaxImpactBps:        3000,
			GridBps:             []int64{10, 100, 500, 1500, 3000},
			MinFlashloanPercent: 0.1,
			MaxFlashloanPercent: 30.0,
			GasLimitPerHop:      150_000,
			Workers:             0,
		},
		Scoring: ScoringConfig{
			ProfitWeight:         0.25,
			RiskWeight:           0.25,
			LiquidityWeight:      0.20,
			HistoryWeight:        0.30,
			ExcellentThreshold:   85,
			GoodThreshold:        75,
			ModerateThreshold:    65,
			PoorThreshold:        50,
			NeutralHistoryScore:  50,
			HistoryPenaltyFactor: 0.8,
		},
		Tracker: TrackerConfig{
			WindowSize:       100,
			AlertFloor:       0.90,
			AlertCeiling:     0.999,
			MaxAlerts:        50,
			RouteHistorySize: 4096,
		},
		RateLimit: RateLimitConfig{
			ScansPerSecond: 1,
			BurstSize:      2,
		},
	}
}

// Validate collects every configuration problem rather than stopping at the
// first, so operators can fix a config file in one pass.
func (c *Config) Validate() error {
	var errs []string

	if _, err := types.ParseExecutionMode(c.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	if len(c.Chains) == 0 {
		errs = append(errs, "at least one chain must be enabled")
	}
	for _, name := range c.Chains {
		if _, err := ChainByName(name); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.ScanInterval <= 0 {
		errs = append(errs, "scan_interval must be positive")
	}

	if err := c.Safety.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("safety config error: %v", err))
	}
	if err := c.Execution.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("execution config error: %v", err))
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("scoring config error: %v", err))
	}
	if err := c.Tracker.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("tracker config error: %v", err))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rate limit config error: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *SafetyConfig) Validate() error {
	if s.MinProfitUsd <= 0 {
		return fmt.Errorf("min_profit_usd must be positive")
	}
	if s.MaxGasPriceGwei <= 0 {
		return fmt.Errorf("max_gas_price_gwei must be positive")
	}
	if s.MaxDailyLossUsd <= 0 {
		return fmt.Errorf("max_daily_loss_usd must be positive")
	}
	if s.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be positive")
	}
	if s.MinTimeBetweenTrades < 0 {
		return fmt.Errorf("min_time_between_trades must not be negative")
	}
	return nil
}

func (e *ExecutionConfig) Validate() error {
	if e.ExecutionThreshold < 0 || e.ExecutionThreshold > 100 {
		return fmt.Errorf("execution_threshold must be within [0,100]")
	}
	if e.MaxImpactBps <= 0 || e.MaxImpactBps >= 10000 {
		return fmt.Errorf("max_impact_bps must be within (0,10000)")
	}
	if len(e.GridBps) == 0 {
		return fmt.Errorf("grid_bps must not be empty")
	}
	for _, bps := range e.GridBps {
		if bps <= 0 || bps > e.MaxImpactBps {
			return fmt.Errorf("grid_bps entry %d outside (0,%d]", bps, e.MaxImpactBps)
		}
	}
	if e.MinFlashloanPercent < 0 {
		return fmt.Errorf("min_flashloan_percent must not be negative")
	}
	if e.MaxFlashloanPercent <= 0 || e.MaxFlashloanPercent > 100 {
		return fmt.Errorf("max_flashloan_percent must be within (0,100]")
	}
	if e.MinFlashloanPercent > e.MaxFlashloanPercent {
		return fmt.Errorf("min_flashloan_percent exceeds max_flashloan_percent")
	}
	if e.GasLimitPerHop == 0 {
		return fmt.Errorf("gas_limit_per_hop must be positive")
	}
	if e.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}

func (s *ScoringConfig) Validate() error {
	sum := s.ProfitWeight + s.RiskWeight + s.LiquidityWeight + s.HistoryWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}
	for name, w := range map[string]float64{
		"profit_weight":    s.ProfitWeight,
		"risk_weight":      s.RiskWeight,
		"liquidity_weight": s.LiquidityWeight,
		"history_weight":   s.HistoryWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if !(s.ExcellentThreshold > s.GoodThreshold &&
		s.GoodThreshold > s.ModerateThreshold &&
		s.ModerateThreshold > s.PoorThreshold &&
		s.PoorThreshold > 0) {
		return fmt.Errorf("classification thresholds must be strictly descending and positive")
	}
	if s.NeutralHistoryScore <= 0 || s.NeutralHistoryScore > 100 {
		return fmt.Errorf("neutral_history_score must be within (0,100]")
	}
	if s.HistoryPenaltyFactor <= 0 || s.HistoryPenaltyFactor > 1 {
		return fmt.Errorf("history_penalty_factor must be within (0,1]")
	}
	return nil
}

func (t *TrackerConfig) Validate() error {
	if t.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive")
	}
	if t.AlertFloor <= 0 || t.AlertFloor > 1 {
		return fmt.Errorf("alert_floor must be within (0,1]")
	}
	if t.AlertCeiling <= t.AlertFloor || t.AlertCeiling > 1 {
		return fmt.Errorf("alert_ceiling must be within (alert_floor,1]")
	}
	if t.MaxAlerts <= 0 {
		return fmt.Errorf("max_alerts must be positive")
	}
	if t.RouteHistorySize <= 0 {
		return fmt.Errorf("route_history_size must be positive")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.ScansPerSecond <= 0 {
		return fmt.Errorf("scans_per_second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst_size must be positive")
	}
	return nil
}

// LoadConfig reads the JSON config file, applying defaults for a missing
// path, and validates the result.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		file, err := os.Open(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if mode := os.Getenv("APEXBOT_MODE"); mode != "" {
		cfg.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnabledChains converts the configured chain names.
func (c *Config) EnabledChains() []types.Chain {
	chains := make([]types.Chain, 0, len(c.Chains))
	for _, name := range c.Chains {
		chains = append(chains, types.Chain(strings.ToLower(name)))
	}
	return chains
}
