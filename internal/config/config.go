// Package config provides configuration management for the simulation core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Execution ExecutionConfig `mapstructure:"execution"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Exit      ExitConfig      `mapstructure:"exit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ExecutionConfig holds execution simulation parameters.
type ExecutionConfig struct {
	InitialBalance  float64 `mapstructure:"initial_balance"`
	Currency        string  `mapstructure:"currency"`
	MakerFeePercent float64 `mapstructure:"maker_fee_percent"`
	TakerFeePercent float64 `mapstructure:"taker_fee_percent"`
	SlippagePercent float64 `mapstructure:"slippage_percent"`
}

// RiskConfig holds portfolio-level risk limits.
type RiskConfig struct {
	MaxPositionSizePercent   float64 `mapstructure:"max_position_size_percent"`
	MaxPositions             int     `mapstructure:"max_positions"`
	MaxDailyLossPercent      float64 `mapstructure:"max_daily_loss_percent"`
	MaxTotalDrawdownPercent  float64 `mapstructure:"max_total_drawdown_percent"`
	DefaultStopLossPercent   float64 `mapstructure:"default_stop_loss_percent"`
	DefaultTakeProfitPercent float64 `mapstructure:"default_take_profit_percent"`
	MaxAssetExposurePercent  float64 `mapstructure:"max_asset_exposure_percent"`
	MaxCorrelatedPositions   int     `mapstructure:"max_correlated_positions"`
	CorrelationThreshold     float64 `mapstructure:"correlation_threshold"`
}

// TrailingStep is one rung of the stepped trailing stop ladder.
type TrailingStep struct {
	ProfitPercent   float64 `mapstructure:"profit_percent"`
	StopLossPercent float64 `mapstructure:"stop_loss_percent"`
}

// ExitConfig holds exit lifecycle rule parameters. Rules are evaluated in a
// fixed priority order: emergency, time-based, breakeven, stepped trailing,
// standard trailing.
type ExitConfig struct {
	EmergencyEnabled     bool          `mapstructure:"emergency_enabled"`
	EmergencyLossPercent float64       `mapstructure:"emergency_loss_percent"`
	TimeExitEnabled      bool          `mapstructure:"time_exit_enabled"`
	MaxHoldingTime       time.Duration `mapstructure:"max_holding_time"`
	MinProfitForTimeExit float64       `mapstructure:"min_profit_for_time_exit"`
	BreakevenEnabled     bool          `mapstructure:"breakeven_enabled"`
	BreakevenActivation  float64       `mapstructure:"breakeven_activation_percent"`

	SteppedTrailingEnabled bool           `mapstructure:"stepped_trailing_enabled"`
	TrailingSteps          []TrailingStep `mapstructure:"trailing_steps"`

	TrailingEnabled           bool    `mapstructure:"trailing_enabled"`
	TrailingActivationPercent float64 `mapstructure:"trailing_activation_percent"`
	TrailingDistancePercent   float64 `mapstructure:"trailing_distance_percent"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfig returns a configuration with sensible simulation defaults.
func DefaultConfig() *Config {
	return &Config{
		Execution: ExecutionConfig{
			InitialBalance:  10000,
			Currency:        "USDT",
			MakerFeePercent: 0.02,
			TakerFeePercent: 0.05,
			SlippagePercent: 0.05,
		},
		Risk: RiskConfig{
			MaxPositionSizePercent:   10,
			MaxPositions:             5,
			MaxDailyLossPercent:      5,
			MaxTotalDrawdownPercent:  20,
			DefaultStopLossPercent:   5,
			DefaultTakeProfitPercent: 10,
			MaxAssetExposurePercent:  30,
			MaxCorrelatedPositions:   2,
			CorrelationThreshold:     0.7,
		},
		Exit: ExitConfig{
			EmergencyEnabled:     true,
			EmergencyLossPercent: 10,
			TimeExitEnabled:      true,
			MaxHoldingTime:       48 * time.Hour,
			MinProfitForTimeExit: 1,
			BreakevenEnabled:     true,
			BreakevenActivation:  2,
			SteppedTrailingEnabled: true,
			TrailingSteps: []TrailingStep{
				{ProfitPercent: 2, StopLossPercent: 0},
				{ProfitPercent: 5, StopLossPercent: 2},
				{ProfitPercent: 10, StopLossPercent: 5},
			},
			TrailingEnabled:           true,
			TrailingActivationPercent: 3,
			TrailingDistancePercent:   1.5,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from the given file path, falling back to the
// default search locations when path is empty. Missing files are not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "paper-trader"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("execution.initial_balance", d.Execution.InitialBalance)
	v.SetDefault("execution.currency", d.Execution.Currency)
	v.SetDefault("execution.maker_fee_percent", d.Execution.MakerFeePercent)
	v.SetDefault("execution.taker_fee_percent", d.Execution.TakerFeePercent)
	v.SetDefault("execution.slippage_percent", d.Execution.SlippagePercent)

	v.SetDefault("risk.max_position_size_percent", d.Risk.MaxPositionSizePercent)
	v.SetDefault("risk.max_positions", d.Risk.MaxPositions)
	v.SetDefault("risk.max_daily_loss_percent", d.Risk.MaxDailyLossPercent)
	v.SetDefault("risk.max_total_drawdown_percent", d.Risk.MaxTotalDrawdownPercent)
	v.SetDefault("risk.default_stop_loss_percent", d.Risk.DefaultStopLossPercent)
	v.SetDefault("risk.default_take_profit_percent", d.Risk.DefaultTakeProfitPercent)
	v.SetDefault("risk.max_asset_exposure_percent", d.Risk.MaxAssetExposurePercent)
	v.SetDefault("risk.max_correlated_positions", d.Risk.MaxCorrelatedPositions)
	v.SetDefault("risk.correlation_threshold", d.Risk.CorrelationThreshold)

	v.SetDefault("exit.emergency_enabled", d.Exit.EmergencyEnabled)
	v.SetDefault("exit.emergency_loss_percent", d.Exit.EmergencyLossPercent)
	v.SetDefault("exit.time_exit_enabled", d.Exit.TimeExitEnabled)
	v.SetDefault("exit.max_holding_time", d.Exit.MaxHoldingTime)
	v.SetDefault("exit.min_profit_for_time_exit", d.Exit.MinProfitForTimeExit)
	v.SetDefault("exit.breakeven_enabled", d.Exit.BreakevenEnabled)
	v.SetDefault("exit.breakeven_activation_percent", d.Exit.BreakevenActivation)
	v.SetDefault("exit.stepped_trailing_enabled", d.Exit.SteppedTrailingEnabled)
	v.SetDefault("exit.trailing_enabled", d.Exit.TrailingEnabled)
	v.SetDefault("exit.trailing_activation_percent", d.Exit.TrailingActivationPercent)
	v.SetDefault("exit.trailing_distance_percent", d.Exit.TrailingDistancePercent)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.file", d.Logging.File)
}

// Validate checks configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Execution.InitialBalance <= 0 {
		return fmt.Errorf("execution.initial_balance must be positive")
	}
	if c.Execution.MakerFeePercent < 0 || c.Execution.TakerFeePercent < 0 {
		return fmt.Errorf("fee percentages must be non-negative")
	}
	if c.Execution.SlippagePercent < 0 {
		return fmt.Errorf("execution.slippage_percent must be non-negative")
	}
	if c.Risk.MaxPositionSizePercent <= 0 || c.Risk.MaxPositionSizePercent > 100 {
		return fmt.Errorf("risk.max_position_size_percent must be in (0, 100]")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive")
	}
	if c.Risk.MaxAssetExposurePercent <= 0 || c.Risk.MaxAssetExposurePercent > 100 {
		return fmt.Errorf("risk.max_asset_exposure_percent must be in (0, 100]")
	}
	if c.Risk.CorrelationThreshold < 0 || c.Risk.CorrelationThreshold > 1 {
		return fmt.Errorf("risk.correlation_threshold must be in [0, 1]")
	}
	if c.Exit.EmergencyLossPercent <= 0 {
		return fmt.Errorf("exit.emergency_loss_percent must be positive")
	}
	for i, step := range c.Exit.TrailingSteps {
		if step.ProfitPercent <= 0 {
			return fmt.Errorf("exit.trailing_steps[%d].profit_percent must be positive", i)
		}
		if i > 0 && step.ProfitPercent <= c.Exit.TrailingSteps[i-1].ProfitPercent {
			return fmt.Errorf("exit.trailing_steps must be sorted by ascending profit_percent")
		}
	}
	return nil
}
