package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesConfig is the on-disk YAML shape for the per-rule configuration
// surface enumerated in SPEC_FULL.md §9. One file configures every account
// the daemon monitors; per-instrument overrides are nested where the spec
// calls for them (RULE-002 limits, RULE-009 sessions).
type RulesConfig struct {
	Accounts []int64 `yaml:"accounts"`

	MaxContracts             MaxContractsConfig             `yaml:"max_contracts"`
	MaxContractsPerInstrument MaxContractsPerInstrumentConfig `yaml:"max_contracts_per_instrument"`
	DailyRealizedLoss        DailyRealizedLossConfig        `yaml:"daily_realized_loss"`
	DailyUnrealizedLoss      DailyUnrealizedLossConfig      `yaml:"daily_unrealized_loss"`
	MaxUnrealizedProfit      MaxUnrealizedProfitConfig      `yaml:"max_unrealized_profit"`
	TradeFrequencyLimit      TradeFrequencyLimitConfig      `yaml:"trade_frequency_limit"`
	NoStopLossGrace          NoStopLossGraceConfig          `yaml:"no_stop_loss_grace"`
	SessionBlock             SessionBlockConfig             `yaml:"session_block_outside_hours"`
	AuthLossGuard            AuthLossGuardConfig            `yaml:"auth_loss_guard"`
	SymbolBlocks              SymbolBlocksConfig             `yaml:"symbol_blocks"`
	TradeManagement          TradeManagementConfig          `yaml:"trade_management"`
}

type MaxContractsConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

type MaxContractsPerInstrumentConfig struct {
	Enabled             bool           `yaml:"enabled"`
	Limits              map[string]int `yaml:"limits"`
	Enforcement         string         `yaml:"enforcement"` // "reduce_to_limit" | "close_all"
	UnknownSymbolAction string         `yaml:"unknown_symbol_action"` // "block" | "allow_with_limit:N" | "allow_unlimited"
}

type DailyRealizedLossConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Limit             float64 `yaml:"limit"`
	ResetTime         string  `yaml:"reset_time"` // "HH:MM"
	Timezone          string  `yaml:"timezone"`
	LockoutUntilReset bool    `yaml:"lockout_until_reset"`
}

type DailyUnrealizedLossConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Scope             string  `yaml:"scope"` // "total" | "per_position"
	LossLimit         float64 `yaml:"loss_limit"`
	LockoutUntilReset bool    `yaml:"lockout_until_reset"`
	ResetTime         string  `yaml:"reset_time"`
	Timezone          string  `yaml:"timezone"`
}

type MaxUnrealizedProfitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Mode              string  `yaml:"mode"`  // "profit_target" | "breakeven"
	Scope             string  `yaml:"scope"` // "total" | "per_position"
	Target            float64 `yaml:"target"`
	LockoutUntilReset bool    `yaml:"lockout_until_reset"`
	ResetTime         string  `yaml:"reset_time"`
	Timezone          string  `yaml:"timezone"`
}

type TradeFrequencyLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	MaxPerMinute      int  `yaml:"max_per_minute"`
	MaxPerHour        int  `yaml:"max_per_hour"`
	MaxPerSession     int  `yaml:"max_per_session"`
	CooldownMinute    int  `yaml:"cooldown_seconds_minute"`
	CooldownHour      int  `yaml:"cooldown_seconds_hour"`
	CooldownSession   int  `yaml:"cooldown_seconds_session"`
}

type NoStopLossGraceConfig struct {
	Enabled           bool `yaml:"enabled"`
	GracePeriodSec    int  `yaml:"grace_period_seconds"`
	LockoutDurationSec int `yaml:"lockout_duration_seconds"`
}

type InstrumentSession struct {
	Symbol string `yaml:"symbol"`
	Start  string `yaml:"start"` // "HH:MM"
	End    string `yaml:"end"`   // "HH:MM"
}

type SessionBlockConfig struct {
	Enabled          bool                `yaml:"enabled"`
	Start            string              `yaml:"start"`
	End              string              `yaml:"end"`
	Timezone         string              `yaml:"timezone"`
	InstrumentHours  []InstrumentSession `yaml:"instrument_hours"`
	Holidays         []string            `yaml:"holidays"` // "YYYY-MM-DD"
	AutoCloseAtEnd   bool                `yaml:"auto_close_at_end"`
}

type AuthLossGuardConfig struct {
	Enabled             bool `yaml:"enabled"`
	AutoUnlockOnRestore bool `yaml:"auto_unlock_on_restore"`
	CheckOnStartup      bool `yaml:"check_on_startup"`
}

type SymbolBlocksConfig struct {
	Enabled        bool     `yaml:"enabled"`
	BlockedSymbols []string `yaml:"blocked_symbols"`
}

type TradeManagementConfig struct {
	Enabled              bool    `yaml:"enabled"`
	ProfitTriggerTicks   float64 `yaml:"profit_trigger_ticks"`
	OffsetTicks          float64 `yaml:"offset_ticks"`
	RespectManualStops   bool    `yaml:"respect_manual_stops"`
	TrailingActive       bool    `yaml:"trailing_active"`
	TrailDistanceTicks   float64 `yaml:"trail_distance_ticks"`
}

// LoadRulesConfig reads and parses the YAML rule configuration file.
func LoadRulesConfig(path string) (*RulesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules config %s: %w", path, err)
	}

	var rc RulesConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parsing rules config %s: %w", path, err)
	}

	return &rc, nil
}
