package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PaymentDefaults is the system-wide policy used when a tenant has none.
type PaymentDefaults struct {
	Recipient        string `mapstructure:"recipient"`
	MinConfirmations uint64 `mapstructure:"minConfirmations"`
}

func DefaultPaymentDefaults(cfg Config) PaymentDefaults {
	return PaymentDefaults{
		Recipient:        cfg.Payment.DefaultRecipient,
		MinConfirmations: cfg.Payment.DefaultMinConfirmations,
	}
}

type PaymentDefaultsHolder struct {
	current atomic.Value // holds PaymentDefaults
}

// NewStaticPaymentDefaultsHolder returns a holder that never reloads.
func NewStaticPaymentDefaultsHolder(defaults PaymentDefaults) *PaymentDefaultsHolder {
	holder := &PaymentDefaultsHolder{}
	holder.current.Store(defaults)
	return holder
}

// NewPaymentDefaultsHolder reads payments.yml when present and watches it for changes.
// Env values from Config are used when the file is missing.
func NewPaymentDefaultsHolder(cfg Config, log *zap.Logger) (*PaymentDefaultsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("payment.defaults")

	v := viper.New()
	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tugas/config")
	v.AddConfigPath("/etc/tugas")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TUGAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentDefaults(cfg)
	v.SetDefault("payments.recipient", defaults.Recipient)
	v.SetDefault("payments.minConfirmations", defaults.MinConfirmations)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var current PaymentDefaults
	if err := v.UnmarshalKey("payments", &current); err != nil {
		return nil, err
	}
	if err := validatePaymentDefaults(current); err != nil {
		return nil, err
	}

	holder := NewStaticPaymentDefaultsHolder(current)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PaymentDefaults
		if err := v.UnmarshalKey("payments", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validatePaymentDefaults(updated); err != nil {
			log.Warn("invalid payment defaults ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("payment defaults reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PaymentDefaultsHolder) Get() PaymentDefaults {
	return h.current.Load().(PaymentDefaults)
}

func validatePaymentDefaults(cfg PaymentDefaults) error {
	if strings.TrimSpace(cfg.Recipient) != cfg.Recipient {
		return errors.New("payments.recipient must not contain surrounding whitespace")
	}
	if cfg.MinConfirmations > 100000 {
		return errors.New("payments.minConfirmations is out of range")
	}
	return nil
}
