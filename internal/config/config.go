// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables
// (.env file), CLI flags, and defaults. CLI flags take precedence over
// environment variables, which take precedence over defaults.
//
// Configuration Loading Order:
// 1. Load from .env file (if exists)
// 2. Load from environment variables
// 3. Apply CLI flag overrides (highest priority)
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// CLIArgs is the parsed daemon CLI surface (spec §6):
// --config, --log-dir, --dry-run, --single-account, --reset-now.
type CLIArgs struct {
	ConfigPath    string
	LogDir        string
	DryRun        bool
	SingleAccount int64 // 0 ⇒ not set, monitor every configured account
	ResetNow      bool
}

// ParseArgs parses the daemon's CLI flags from argv (excluding argv[0]).
func ParseArgs(argv []string) (CLIArgs, error) {
	fs := flag.NewFlagSet("riskd", flag.ContinueOnError)
	var a CLIArgs
	fs.StringVar(&a.ConfigPath, "config", "", "path to the rule configuration YAML file")
	fs.StringVar(&a.LogDir, "log-dir", "", "directory for rotated log files (empty = stderr only)")
	fs.BoolVar(&a.DryRun, "dry-run", false, "log enforcement actions instead of executing them")
	fs.Int64Var(&a.SingleAccount, "single-account", 0, "restrict monitoring to a single account id")
	fs.BoolVar(&a.ResetNow, "reset-now", false, "force the daily P&L/session reset immediately on startup")
	if err := fs.Parse(argv); err != nil {
		return CLIArgs{}, err
	}
	return a, nil
}

// Config holds application configuration resolved from .env / environment
// variables / CLI flags, in that increasing order of precedence.
type Config struct {
	DataDir   string // base directory for persistence, token store, logs
	LogDir    string
	LogLevel  string
	DevMode   bool

	RulesConfigPath string // YAML file with per-rule thresholds (§9)

	DryRun        bool
	SingleAccount int64 // 0 ⇒ unset
	ResetNow      bool

	BrokerageBaseURL  string
	BrokerageUserName string
	BrokerageAPIKey   string
	BrokerageTimezone string // IANA timezone for session/reset boundaries

	UserHubURL   string // brokerage push-stream endpoint for trades/positions/orders/account
	MarketHubURL string // brokerage push-stream endpoint for quotes

	EncryptionKeySalt string // required unless TokenMemoryOnly
	TokenMemoryOnly   bool

	StatusAPIAddr string // e.g. "127.0.0.1:8090"; empty disables the status API

	BackupEnabled           bool
	BackupBucket            string
	BackupRegion            string
	BackupR2AccountID       string
	BackupR2AccessKeyID     string
	BackupR2SecretAccessKey string
	BackupRetentionDays     int
}

// Load reads configuration from .env / environment variables, then applies
// CLI overrides, validates, and returns the resolved Config.
func Load(args CLIArgs) (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("RISKD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogDir:   getEnv("RISKD_LOG_DIR", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		RulesConfigPath: getEnv("RISKD_RULES_CONFIG", "./rules.yaml"),

		BrokerageBaseURL:  getEnv("BROKERAGE_BASE_URL", ""),
		BrokerageUserName: getEnv("BROKERAGE_USERNAME", ""),
		BrokerageAPIKey:   getEnv("BROKERAGE_API_KEY", ""),
		BrokerageTimezone: getEnv("BROKERAGE_TIMEZONE", "America/New_York"),

		UserHubURL:   getEnv("BROKERAGE_USER_HUB_URL", ""),
		MarketHubURL: getEnv("BROKERAGE_MARKET_HUB_URL", ""),

		EncryptionKeySalt: getEnv("ENCRYPTION_KEY_SALT", ""),
		TokenMemoryOnly:   getEnvAsBool("TOKEN_MEMORY_ONLY", false),

		StatusAPIAddr: getEnv("RISKD_STATUS_ADDR", "127.0.0.1:8090"),

		BackupEnabled:           getEnvAsBool("BACKUP_ENABLED", false),
		BackupBucket:            getEnv("BACKUP_BUCKET", ""),
		BackupRegion:            getEnv("BACKUP_REGION", "auto"),
		BackupR2AccountID:       getEnv("BACKUP_R2_ACCOUNT_ID", ""),
		BackupR2AccessKeyID:     getEnv("BACKUP_R2_ACCESS_KEY_ID", ""),
		BackupR2SecretAccessKey: getEnv("BACKUP_R2_SECRET_ACCESS_KEY", ""),
		BackupRetentionDays:     getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	// CLI flags override environment-derived values.
	if args.ConfigPath != "" {
		cfg.RulesConfigPath = args.ConfigPath
	}
	if args.LogDir != "" {
		cfg.LogDir = args.LogDir
	}
	cfg.DryRun = args.DryRun || cfg.DryRun
	if args.SingleAccount != 0 {
		cfg.SingleAccount = args.SingleAccount
	}
	cfg.ResetNow = args.ResetNow || cfg.ResetNow

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required configuration is present.
func (c *Config) Validate() error {
	if !c.TokenMemoryOnly && c.EncryptionKeySalt == "" {
		return fmt.Errorf("ENCRYPTION_KEY_SALT is required unless TOKEN_MEMORY_ONLY=true")
	}
	if c.BrokerageBaseURL == "" {
		return fmt.Errorf("BROKERAGE_BASE_URL is required")
	}
	if c.UserHubURL == "" {
		return fmt.Errorf("BROKERAGE_USER_HUB_URL is required")
	}
	if c.MarketHubURL == "" {
		return fmt.Errorf("BROKERAGE_MARKET_HUB_URL is required")
	}
	if c.BackupEnabled && (c.BackupR2AccountID == "" || c.BackupR2AccessKeyID == "" || c.BackupR2SecretAccessKey == "" || c.BackupBucket == "") {
		return fmt.Errorf("BACKUP_R2_ACCOUNT_ID, BACKUP_R2_ACCESS_KEY_ID, BACKUP_R2_SECRET_ACCESS_KEY, and BACKUP_BUCKET are required when BACKUP_ENABLED=true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
