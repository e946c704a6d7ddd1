package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the operator-tunable billing policy. It is reloaded
// from billing.yml without a restart.
type BillingConfig struct {
	FreeCredit FreeCreditConfig `mapstructure:"freeCredit"`
	Suspension SuspensionConfig `mapstructure:"suspension"`
}

type FreeCreditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Amount  string `mapstructure:"amount"`
	Detail  string `mapstructure:"detail"`
}

type SuspensionConfig struct {
	Threshold      string        `mapstructure:"threshold"`
	NotifyCooldown time.Duration `mapstructure:"notifyCooldown"`
}

// CreditAmount returns the configured grant, zero when unset or malformed.
func (c FreeCreditConfig) CreditAmount() decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil {
		return decimal.Zero
	}
	return amount
}

func (c SuspensionConfig) ThresholdAmount() decimal.Decimal {
	threshold, err := decimal.NewFromString(strings.TrimSpace(c.Threshold))
	if err != nil {
		return decimal.Zero
	}
	return threshold
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		FreeCredit: FreeCreditConfig{
			Enabled: false,
			Amount:  "0",
			Detail:  "Welcome credit",
		},
		Suspension: SuspensionConfig{
			Threshold:      "0",
			NotifyCooldown: time.Hour,
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	return newBillingConfigHolder(log,
		"/var/lib/computeledger/config", // Volume-mounted config
		"/etc/computeledger",            // System config
		".",                             // Current directory (dev mode)
	)
}

func newBillingConfigHolder(log *zap.Logger, paths ...string) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("COMPUTELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.freeCredit.enabled", defaults.FreeCredit.Enabled)
	v.SetDefault("billing.freeCredit.amount", defaults.FreeCredit.Amount)
	v.SetDefault("billing.freeCredit.detail", defaults.FreeCredit.Detail)
	v.SetDefault("billing.suspension.threshold", defaults.Suspension.Threshold)
	v.SetDefault("billing.suspension.notifyCooldown", defaults.Suspension.NotifyCooldown)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.FreeCredit.Enabled {
		amount, err := decimal.NewFromString(strings.TrimSpace(cfg.FreeCredit.Amount))
		if err != nil {
			return errors.New("billing.freeCredit.amount must be a decimal")
		}
		if amount.IsNegative() {
			return errors.New("billing.freeCredit.amount cannot be negative")
		}
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(cfg.Suspension.Threshold)); err != nil {
		return errors.New("billing.suspension.threshold must be a decimal")
	}
	if cfg.Suspension.NotifyCooldown < 0 {
		return errors.New("billing.suspension.notifyCooldown cannot be negative")
	}
	return nil
}
