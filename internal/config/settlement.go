package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SettlementConfig carries the commercial rules that operators tune without
// a redeploy: tier price bounds, the happy-hour slot and payout shares.
type SettlementConfig struct {
	Pricing PricingConfig `mapstructure:"pricing"`
	Payout  PayoutConfig  `mapstructure:"payout"`
}

type PricingConfig struct {
	HappyHourPrice   int64                 `mapstructure:"happyHourPrice"`
	HappyHourWeekday string                `mapstructure:"happyHourWeekday"`
	HappyHourHour    int                   `mapstructure:"happyHourHour"`
	HappyHourMinute  int                   `mapstructure:"happyHourMinute"`
	Bounds           map[string]PriceBound `mapstructure:"bounds"`
}

type PriceBound struct {
	Min int64 `mapstructure:"min"`
	Max int64 `mapstructure:"max"`
}

type PayoutConfig struct {
	DelayDays int `mapstructure:"delayDays"`
	// ShareBasisPoints maps a subscription tier to the artist share of
	// confirmed revenue, in basis points.
	ShareBasisPoints map[string]int64 `mapstructure:"shareBasisPoints"`
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		Pricing: PricingConfig{
			HappyHourPrice:   499,
			HappyHourWeekday: "wednesday",
			HappyHourHour:    20,
			HappyHourMinute:  0,
			Bounds: map[string]PriceBound{
				"starter": {Min: 500, Max: 1200},
				"pro":     {Min: 800, Max: 1800},
				"elite":   {Min: 1200, Max: 2500},
			},
		},
		Payout: PayoutConfig{
			DelayDays: 21,
			ShareBasisPoints: map[string]int64{
				"starter": 5000,
				"pro":     6000,
				"elite":   7000,
			},
		},
	}
}

// Weekday parses HappyHourWeekday.
func (c PricingConfig) Weekday() (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(c.HappyHourWeekday)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", c.HappyHourWeekday)
}

type SettlementConfigHolder struct {
	current atomic.Value // holds SettlementConfig
}

// NewStaticSettlementConfigHolder wraps a fixed config, mostly for tests and
// one-shot commands.
func NewStaticSettlementConfigHolder(cfg SettlementConfig) *SettlementConfigHolder {
	holder := &SettlementConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSettlementConfigHolder() (*SettlementConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/stagepass")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STAGEPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettlementConfig()
	v.SetDefault("settlement.pricing.happyHourPrice", defaults.Pricing.HappyHourPrice)
	v.SetDefault("settlement.pricing.happyHourWeekday", defaults.Pricing.HappyHourWeekday)
	v.SetDefault("settlement.pricing.happyHourHour", defaults.Pricing.HappyHourHour)
	v.SetDefault("settlement.pricing.happyHourMinute", defaults.Pricing.HappyHourMinute)
	v.SetDefault("settlement.pricing.bounds", defaults.Pricing.Bounds)
	v.SetDefault("settlement.payout.delayDays", defaults.Payout.DelayDays)
	v.SetDefault("settlement.payout.shareBasisPoints", defaults.Payout.ShareBasisPoints)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg SettlementConfig
	if err := v.UnmarshalKey("settlement", &cfg); err != nil {
		return nil, err
	}
	if err := validateSettlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSettlementConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SettlementConfig
		if err := v.UnmarshalKey("settlement", &updated); err != nil {
			zap.L().Warn("settlement config reload failed", zap.Error(err))
			return
		}
		if err := validateSettlementConfig(updated); err != nil {
			zap.L().Warn("settlement config invalid, ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("settlement config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SettlementConfigHolder) Get() SettlementConfig {
	return h.current.Load().(SettlementConfig)
}

func validateSettlementConfig(cfg SettlementConfig) error {
	if cfg.Pricing.HappyHourPrice <= 0 {
		return errors.New("settlement.pricing.happyHourPrice must be positive")
	}
	if _, err := cfg.Pricing.Weekday(); err != nil {
		return fmt.Errorf("settlement.pricing.happyHourWeekday: %w", err)
	}
	if cfg.Pricing.HappyHourHour < 0 || cfg.Pricing.HappyHourHour > 23 {
		return errors.New("settlement.pricing.happyHourHour out of range")
	}
	if cfg.Pricing.HappyHourMinute < 0 || cfg.Pricing.HappyHourMinute > 59 {
		return errors.New("settlement.pricing.happyHourMinute out of range")
	}
	if len(cfg.Pricing.Bounds) == 0 {
		return errors.New("settlement.pricing.bounds cannot be empty")
	}
	for tier, bound := range cfg.Pricing.Bounds {
		if bound.Min <= 0 || bound.Max < bound.Min {
			return fmt.Errorf("settlement.pricing.bounds.%s is invalid", tier)
		}
	}
	if cfg.Payout.DelayDays <= 0 {
		return errors.New("settlement.payout.delayDays must be positive")
	}
	if len(cfg.Payout.ShareBasisPoints) == 0 {
		return errors.New("settlement.payout.shareBasisPoints cannot be empty")
	}
	for tier, share := range cfg.Payout.ShareBasisPoints {
		if share <= 0 || share > 10000 {
			return fmt.Errorf("settlement.payout.shareBasisPoints.%s is invalid", tier)
		}
	}
	return nil
}
