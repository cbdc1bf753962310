package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ArchivePolicy controls operator-facing behavior of the fiscal archive
// batch operation. It is deliberately separate from the env Config so
// self-hosted deployments can tune it without restarting.
type ArchivePolicy struct {
	// RequireConfirmation forces the CLI to prompt before archiving
	// unless --force is given.
	RequireConfirmation bool `mapstructure:"requireConfirmation"`
	// Currency is the display currency of printed financial summaries.
	Currency string `mapstructure:"currency"`
	// DefaultNotes is stamped on archives created without explicit notes.
	DefaultNotes string `mapstructure:"defaultNotes"`
}

func DefaultArchivePolicy() ArchivePolicy {
	return ArchivePolicy{
		RequireConfirmation: true,
		Currency:            "CAD",
		DefaultNotes:        "Archive created automatically",
	}
}

// ArchivePolicyHolder exposes the current policy and follows file changes.
type ArchivePolicyHolder struct {
	current atomic.Value // holds ArchivePolicy
}

func NewArchivePolicyHolder() (*ArchivePolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("archive")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/atelier")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ATELIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &ArchivePolicyHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultArchivePolicy()
		v.SetDefault("archive.requireConfirmation", defaults.RequireConfirmation)
		v.SetDefault("archive.currency", defaults.Currency)
		v.SetDefault("archive.defaultNotes", defaults.DefaultNotes)
	}

	policy, err := unmarshalArchivePolicy(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.OnConfigChange(func(_ fsnotify.Event) {
		updated, err := unmarshalArchivePolicy(v)
		if err != nil {
			zap.L().Warn("ignoring invalid archive policy update", zap.Error(err))
			return
		}
		holder.current.Store(updated)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *ArchivePolicyHolder) Current() ArchivePolicy {
	if policy, ok := h.current.Load().(ArchivePolicy); ok {
		return policy
	}
	return DefaultArchivePolicy()
}

func unmarshalArchivePolicy(v *viper.Viper) (ArchivePolicy, error) {
	var policy ArchivePolicy
	if err := v.UnmarshalKey("archive", &policy); err != nil {
		return ArchivePolicy{}, err
	}
	if policy.Currency == "" {
		policy.Currency = DefaultArchivePolicy().Currency
	}
	return policy, nil
}
