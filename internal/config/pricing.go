package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/recyclesim/internal/pricing"
	"github.com/spf13/viper"
)

// PricingConfig is the on-disk shape of pricing.yml:
//
//	pricing:
//	  version: "2026-10"
//	  prices:
//	    plastic: 2
//	    glass: 3
type PricingConfig struct {
	Version string            `mapstructure:"version"`
	Prices  map[string]string `mapstructure:"prices"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Version: "default",
		Prices: map[string]string{
			"plastic":  "2",
			"glass":    "3",
			"aluminum": "5",
			"paper":    "1",
		},
	}
}

// PricingHolder keeps the active pricing table and swaps it atomically when
// pricing.yml changes on disk.
type PricingHolder struct {
	current atomic.Value // holds pricing.Table
}

func NewPricingHolder(cfg Config) (*PricingHolder, error) {
	v := viper.New()

	if cfg.PricingFile != "" {
		v.SetConfigFile(cfg.PricingFile)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/recyclesim/config")
		v.AddConfigPath("/etc/recyclesim")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RECYCLESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
		defaults := DefaultPricingConfig()
		v.SetDefault("pricing.version", defaults.Version)
		v.SetDefault("pricing.prices", defaults.Prices)
	}

	table, err := loadPricingTable(v)
	if err != nil {
		return nil, err
	}

	holder := &PricingHolder{}
	holder.current.Store(table)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := loadPricingTable(v)
			if err != nil {
				log.Printf("[pricing-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[pricing-config] reloaded version %s from %s", updated.Version(), e.Name)
		})
	}

	return holder, nil
}

// NewStaticPricingHolder wraps a fixed table. Used by tests and tools that
// do not read pricing.yml.
func NewStaticPricingHolder(table pricing.Table) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(table)
	return holder
}

func (h *PricingHolder) Current() pricing.Table {
	return h.current.Load().(pricing.Table)
}

func loadPricingTable(v *viper.Viper) (pricing.Table, error) {
	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return pricing.Table{}, err
	}
	return pricing.NewTable(cfg.Version, cfg.Prices)
}
