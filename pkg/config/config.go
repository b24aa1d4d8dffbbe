package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the signal trader.
type Config struct {
	Port string

	// KuCoin credentials
	KucoinAPIKey     string
	KucoinAPISecret  string
	KucoinPassphrase string

	// Webhook
	WebhookToken string

	// Trading
	TradingSymbol string
	Policy        Policy

	// Database
	DBPath string

	// Operator API
	JWTSecret            string
	OperatorUser         string
	OperatorPasswordHash string // bcrypt hash

	// Reconciliation
	ReconcileInterval time.Duration
}

// Policy groups the tunable trading parameters. The sizing buffer and the
// asset-selection rule are deliberately configuration, not constants.
type Policy struct {
	RiskFraction  float64 `yaml:"risk_fraction"`   // fraction of free balance committed per trade
	FeeBuffer     float64 `yaml:"fee_buffer"`      // balance haircut to absorb fees/slippage
	TakeProfitPct float64 `yaml:"take_profit_pct"` // TP distance from entry
	StopLossPct   float64 `yaml:"stop_loss_pct"`   // SL distance from entry

	// Retry budgets. Order submission is retried conservatively to avoid
	// duplicate fills; reads tolerate a higher ceiling.
	MaxReadAttempts   int           `yaml:"max_read_attempts"`
	MaxSubmitAttempts int           `yaml:"max_submit_attempts"`
	BaseBackoffMS     int           `yaml:"base_backoff_ms"`
	BaseBackoff       time.Duration `yaml:"-"`
}

// DefaultPolicy returns the stock trading policy.
func DefaultPolicy() Policy {
	return Policy{
		RiskFraction:      0.9,
		FeeBuffer:         0.001,
		TakeProfitPct:     0.05,
		StopLossPct:       0.10,
		MaxReadAttempts:   5,
		MaxSubmitAttempts: 3,
		BaseBackoff:       time.Second,
	}
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		KucoinAPIKey:         os.Getenv("KUCOIN_API_KEY"),
		KucoinAPISecret:      os.Getenv("KUCOIN_SECRET"),
		KucoinPassphrase:     os.Getenv("KUCOIN_PASSPHRASE"),
		WebhookToken:         os.Getenv("WEBHOOK_TOKEN"),
		TradingSymbol:        getEnv("TRADING_SYMBOL", "DOGE/USDT"),
		DBPath:               getEnv("DB_PATH", "./data/trader.db"),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		OperatorUser:         getEnv("OPERATOR_USER", "admin"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
		ReconcileInterval:    time.Duration(getEnvInt("RECONCILE_INTERVAL_SEC", 300)) * time.Second,
	}

	pol := DefaultPolicy()
	pol.RiskFraction = getEnvFloat("RISK_FRACTION", pol.RiskFraction)
	pol.FeeBuffer = getEnvFloat("FEE_BUFFER", pol.FeeBuffer)
	pol.TakeProfitPct = getEnvFloat("TAKE_PROFIT_PCT", pol.TakeProfitPct)
	pol.StopLossPct = getEnvFloat("STOP_LOSS_PCT", pol.StopLossPct)
	pol.MaxReadAttempts = getEnvInt("MAX_READ_ATTEMPTS", pol.MaxReadAttempts)
	pol.MaxSubmitAttempts = getEnvInt("MAX_RETRY_ATTEMPTS", pol.MaxSubmitAttempts)
	pol.BaseBackoff = time.Duration(getEnvInt("BASE_BACKOFF_MS", int(pol.BaseBackoff/time.Millisecond))) * time.Millisecond

	// Optional YAML policy file overrides the env-derived policy.
	if path := os.Getenv("POLICY_FILE"); path != "" {
		loaded, err := LoadPolicy(path, pol)
		if err != nil {
			return nil, fmt.Errorf("load policy file %s: %w", path, err)
		}
		pol = loaded
	}
	if err := validatePolicy(pol); err != nil {
		return nil, err
	}
	cfg.Policy = pol

	return cfg, nil
}

// LoadPolicy reads a YAML policy file over the given defaults.
func LoadPolicy(path string, defaults Policy) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	pol := defaults
	pol.BaseBackoffMS = 0
	if err := yaml.Unmarshal(raw, &pol); err != nil {
		return Policy{}, fmt.Errorf("parse yaml: %w", err)
	}
	if pol.BaseBackoffMS > 0 {
		pol.BaseBackoff = time.Duration(pol.BaseBackoffMS) * time.Millisecond
	}
	return pol, nil
}

func validatePolicy(p Policy) error {
	if p.RiskFraction <= 0 || p.RiskFraction > 1 {
		return fmt.Errorf("risk_fraction must be in (0, 1], got %v", p.RiskFraction)
	}
	if p.FeeBuffer < 0 || p.FeeBuffer >= 1 {
		return fmt.Errorf("fee_buffer must be in [0, 1), got %v", p.FeeBuffer)
	}
	if p.TakeProfitPct <= 0 || p.StopLossPct <= 0 {
		return fmt.Errorf("take_profit_pct and stop_loss_pct must be positive")
	}
	if p.MaxReadAttempts < 1 || p.MaxSubmitAttempts < 1 {
		return fmt.Errorf("retry attempt ceilings must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
