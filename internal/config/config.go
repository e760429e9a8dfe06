// Package config loads process configuration: defaults, then an optional
// YAML file named by CONFIG_FILE, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL   string  `yaml:"database_url"`
	ServerAddress string  `yaml:"server_address"`
	Storage       string  `yaml:"storage"`
	LogLevel      string  `yaml:"log_level"`
	RateLimitRPS  float64 `yaml:"rate_limit_rps"`
	RateBurst     int     `yaml:"rate_limit_burst"`

	Scoring Scoring `yaml:"scoring"`
	Voting  Voting  `yaml:"voting"`
	Points  Points  `yaml:"points"`
	Penalty Penalty `yaml:"penalty"`
}

// Scoring holds bid scoring weights and thresholds. Max values are points.
type Scoring struct {
	PriceMax        float64 `yaml:"price_max"`
	ReputationMax   float64 `yaml:"reputation_max"`
	TimelineMax     float64 `yaml:"timeline_max"`
	ReputationCap   float64 `yaml:"reputation_cap"`
	FairBandLow     float64 `yaml:"fair_band_low"`
	FairBandFloor   float64 `yaml:"fair_band_floor"`
	LowBidCap       float64 `yaml:"low_bid_cap"`
	OverBudgetSlope float64 `yaml:"over_budget_slope"`
	MinDays         int     `yaml:"min_days"`
	MaxDays         int     `yaml:"max_days"`
	SlowFloor       float64 `yaml:"slow_floor"`
	CollusionRatio  float64 `yaml:"collusion_ratio"`
}

type Voting struct {
	// QuorumPercent is the share of assigned reviewers, in percent,
	// needed to approve or reject a work proof. Strict majority only.
	QuorumPercent int `yaml:"quorum_percent"`
}

// Delta is one row of the points table.
type Delta struct {
	Points     int     `yaml:"points"`
	Reputation float64 `yaml:"reputation"`
}

type Points struct {
	Table map[string]Delta `yaml:"table"`
}

type Penalty struct {
	// ReviewReputation is the low-water mark at or below which a penalized
	// contractor is flagged for blacklist review.
	ReviewReputation float64 `yaml:"review_reputation"`
}

func Default() Config {
	return Config{
		ServerAddress: "0.0.0.0:8080",
		Storage:       "postgres",
		LogLevel:      "info",
		RateLimitRPS:  50,
		RateBurst:     100,
		Scoring: Scoring{
			PriceMax:        50,
			ReputationMax:   30,
			TimelineMax:     20,
			ReputationCap:   100,
			FairBandLow:     0.7,
			FairBandFloor:   30,
			LowBidCap:       20,
			OverBudgetSlope: 100,
			MinDays:         30,
			MaxDays:         365,
			SlowFloor:       10,
			CollusionRatio:  0.01,
		},
		Voting: Voting{QuorumPercent: 51},
		Points: Points{Table: map[string]Delta{
			"COMPLETION":        {Points: 100, Reputation: 5},
			"TRANCHE_APPROVED":  {Points: 20, Reputation: 2},
			"VERIFICATION_VOTE": {Points: 5, Reputation: 0},
			"FALSE_COMPLAINT":   {Points: -20, Reputation: -3},
			"FRAUD_CONTRACTOR":  {Points: -30, Reputation: -10},
			"FRAUD_REVIEWER":    {Points: -50, Reputation: -15},
			"VALID_COMPLAINT":   {Points: 10, Reputation: 2},
		}},
		Penalty: Penalty{ReviewReputation: 20},
	}
}

// Load builds the configuration for the process.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse overlays YAML onto cfg. Point table entries merge by reason.
func Parse(raw []byte, cfg *Config) error {
	table := cfg.Points.Table
	cfg.Points.Table = nil
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		cfg.Points.Table = table
		return fmt.Errorf("parse config: %w", err)
	}
	merged := make(map[string]Delta, len(table))
	for k, v := range table {
		merged[k] = v
	}
	for k, v := range cfg.Points.Table {
		merged[k] = v
	}
	cfg.Points.Table = merged
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("POSTGRES_CONN"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.ServerAddress = v
	}
	if v := os.Getenv("STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateBurst = burst
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("POSTGRES_CONN env variable is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	s := c.Scoring
	if s.PriceMax+s.ReputationMax+s.TimelineMax != 100 {
		return errors.New("scoring maxima must sum to 100")
	}
	if s.FairBandLow <= 0 || s.FairBandLow >= 1 {
		return errors.New("scoring fair_band_low must be in (0,1)")
	}
	if s.MinDays <= 0 || s.MaxDays <= s.MinDays {
		return errors.New("scoring day range is empty")
	}
	if c.Voting.QuorumPercent <= 50 || c.Voting.QuorumPercent > 100 {
		return errors.New("voting quorum_percent must be in (50,100]")
	}
	return nil
}
