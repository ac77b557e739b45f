package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	SettlementModeDestinationCharge = "destination_charge"
	SettlementModeSeparateTransfer  = "separate_transfer"
)

// SettlementPolicy controls how event payouts are computed and routed.
// It is loaded from a volume-mounted yml file so operators can adjust
// fee policy without a redeploy.
type SettlementPolicy struct {
	Mode                  string `mapstructure:"mode"`
	PlatformFeeBps        int    `mapstructure:"platformFeeBps"`
	DefaultDestinationAcc string `mapstructure:"defaultDestinationAccount"`
	TransferGroupPrefix   string `mapstructure:"transferGroupPrefix"`
}

func DefaultSettlementPolicy() SettlementPolicy {
	return SettlementPolicy{
		Mode:                SettlementModeDestinationCharge,
		PlatformFeeBps:      1000,
		TransferGroupPrefix: "event",
	}
}

// SettlementPolicyHolder exposes the current policy and follows file changes.
type SettlementPolicyHolder struct {
	current atomic.Value // holds SettlementPolicy
}

func NewSettlementPolicyHolder(cfg Config, log *zap.Logger) (*SettlementPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	if path := strings.TrimSpace(cfg.SettlementPolicyPath); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("/etc/attendly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ATTENDLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &SettlementPolicyHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultSettlementPolicy())
		return holder, nil
	}

	policy, err := unmarshalPolicy(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.OnConfigChange(func(_ fsnotify.Event) {
		updated, err := unmarshalPolicy(v)
		if err != nil {
			log.Warn("settlement policy reload failed", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settlement policy reloaded", zap.String("mode", updated.Mode))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *SettlementPolicyHolder) Current() SettlementPolicy {
	if h == nil {
		return DefaultSettlementPolicy()
	}
	if policy, ok := h.current.Load().(SettlementPolicy); ok {
		return policy
	}
	return DefaultSettlementPolicy()
}

// Store replaces the active policy. Intended for tests.
func (h *SettlementPolicyHolder) Store(policy SettlementPolicy) {
	h.current.Store(normalizePolicy(policy))
}

func unmarshalPolicy(v *viper.Viper) (SettlementPolicy, error) {
	policy := DefaultSettlementPolicy()
	if err := v.UnmarshalKey("settlement", &policy); err != nil {
		return SettlementPolicy{}, err
	}
	return normalizePolicy(policy), nil
}

func normalizePolicy(policy SettlementPolicy) SettlementPolicy {
	switch strings.ToLower(strings.TrimSpace(policy.Mode)) {
	case SettlementModeSeparateTransfer:
		policy.Mode = SettlementModeSeparateTransfer
	default:
		policy.Mode = SettlementModeDestinationCharge
	}
	if policy.PlatformFeeBps < 0 {
		policy.PlatformFeeBps = 0
	}
	if strings.TrimSpace(policy.TransferGroupPrefix) == "" {
		policy.TransferGroupPrefix = "event"
	}
	return policy
}
