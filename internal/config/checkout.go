package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CheckoutPolicy carries the tunable bounds of the checkout and reconciliation flows.
type CheckoutPolicy struct {
	OrderNumberAttempts   int               `mapstructure:"orderNumberAttempts"`
	GatewayTimeout        time.Duration     `mapstructure:"gatewayTimeout"`
	InitializeRateLimit   int               `mapstructure:"initializeRateLimit"`
	InitializeRateWindow  time.Duration     `mapstructure:"initializeRateWindow"`
	MaxItemQuantity       int               `mapstructure:"maxItemQuantity"`
	MaxCartLines          int               `mapstructure:"maxCartLines"`
	ShippingFees          map[string]string `mapstructure:"shippingFees"`
	PendingReverifyAfter  time.Duration     `mapstructure:"pendingReverifyAfter"`
	PendingReverifyWindow time.Duration     `mapstructure:"pendingReverifyWindow"`
}

func DefaultCheckoutPolicy() CheckoutPolicy {
	return CheckoutPolicy{
		OrderNumberAttempts:   5,
		GatewayTimeout:        20 * time.Second,
		InitializeRateLimit:   5,
		InitializeRateWindow:  time.Minute,
		MaxItemQuantity:       20,
		MaxCartLines:          50,
		ShippingFees:          map[string]string{},
		PendingReverifyAfter:  10 * time.Minute,
		PendingReverifyWindow: 24 * time.Hour,
	}
}

// ShippingFee returns the flat shipping fee for currency, zero when none is configured.
func (p CheckoutPolicy) ShippingFee(currency string) decimal.Decimal {
	raw, ok := p.ShippingFees[strings.ToLower(strings.TrimSpace(currency))]
	if !ok {
		raw, ok = p.ShippingFees[strings.ToUpper(strings.TrimSpace(currency))]
	}
	if !ok {
		return decimal.Zero
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return fee
}

type CheckoutPolicyHolder struct {
	current atomic.Value // holds CheckoutPolicy
}

// NewStaticCheckoutPolicy returns a holder that never reloads.
func NewStaticCheckoutPolicy(policy CheckoutPolicy) *CheckoutPolicyHolder {
	holder := &CheckoutPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewCheckoutPolicyHolder(log *zap.Logger) (*CheckoutPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/storefront")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutPolicy()
	v.SetDefault("checkout.orderNumberAttempts", defaults.OrderNumberAttempts)
	v.SetDefault("checkout.gatewayTimeout", defaults.GatewayTimeout)
	v.SetDefault("checkout.initializeRateLimit", defaults.InitializeRateLimit)
	v.SetDefault("checkout.initializeRateWindow", defaults.InitializeRateWindow)
	v.SetDefault("checkout.maxItemQuantity", defaults.MaxItemQuantity)
	v.SetDefault("checkout.maxCartLines", defaults.MaxCartLines)
	v.SetDefault("checkout.shippingFees", defaults.ShippingFees)
	v.SetDefault("checkout.pendingReverifyAfter", defaults.PendingReverifyAfter)
	v.SetDefault("checkout.pendingReverifyWindow", defaults.PendingReverifyWindow)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy CheckoutPolicy
	if err := v.UnmarshalKey("checkout", &policy); err != nil {
		return nil, err
	}
	if err := validateCheckoutPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticCheckoutPolicy(policy)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.checkout")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CheckoutPolicy
		if err := v.UnmarshalKey("checkout", &updated); err != nil {
			log.Warn("checkout policy reload failed", zap.Error(err))
			return
		}
		if err := validateCheckoutPolicy(updated); err != nil {
			log.Warn("invalid checkout policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("checkout policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *CheckoutPolicyHolder) Get() CheckoutPolicy {
	if h == nil {
		return DefaultCheckoutPolicy()
	}
	policy, ok := h.current.Load().(CheckoutPolicy)
	if !ok {
		return DefaultCheckoutPolicy()
	}
	return policy
}

func validateCheckoutPolicy(p CheckoutPolicy) error {
	if p.OrderNumberAttempts <= 0 {
		return errors.New("checkout.orderNumberAttempts must be positive")
	}
	if p.GatewayTimeout <= 0 {
		return errors.New("checkout.gatewayTimeout must be positive")
	}
	if p.InitializeRateLimit <= 0 || p.InitializeRateWindow <= 0 {
		return errors.New("checkout.initializeRateLimit and initializeRateWindow must be positive")
	}
	if p.MaxItemQuantity <= 0 || p.MaxCartLines <= 0 {
		return errors.New("checkout.maxItemQuantity and maxCartLines must be positive")
	}
	for currency, raw := range p.ShippingFees {
		fee, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("checkout.shippingFees.%s: %w", currency, err)
		}
		if fee.IsNegative() {
			return fmt.Errorf("checkout.shippingFees.%s must not be negative", currency)
		}
	}
	return nil
}
