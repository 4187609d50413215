package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RoutingRule selects which webhook outcomes produce a notification.
// An empty Statuses list matches every status.
type RoutingRule struct {
	EventType  string   `mapstructure:"event_type"`
	Statuses   []string `mapstructure:"statuses"`
	Recipients []string `mapstructure:"recipients"`
}

type RoutingConfig struct {
	Rules []RoutingRule `mapstructure:"rules"`
}

var defaultNotifyStatuses = []string{"finished", "partially_paid", "failed", "refunded", "expired"}

func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Rules: []RoutingRule{
			{EventType: "payment", Statuses: defaultNotifyStatuses},
			{EventType: "invoice", Statuses: defaultNotifyStatuses},
			{EventType: "withdrawal"},
		},
	}
}

// Match returns the first rule for eventType whose statuses include status.
func (c RoutingConfig) Match(eventType, status string) (RoutingRule, bool) {
	for _, rule := range c.Rules {
		if !strings.EqualFold(rule.EventType, eventType) {
			continue
		}
		if len(rule.Statuses) == 0 {
			return rule, true
		}
		for _, s := range rule.Statuses {
			if strings.EqualFold(s, status) {
				return rule, true
			}
		}
	}
	return RoutingRule{}, false
}

type RoutingConfigHolder struct {
	current atomic.Value // holds RoutingConfig
}

// NewStaticRoutingHolder wraps a fixed routing config.
func NewStaticRoutingHolder(cfg RoutingConfig) *RoutingConfigHolder {
	holder := &RoutingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewRoutingConfigHolder loads notifications.yml from path (or the default
// search paths when path is empty) and watches it for changes.
func NewRoutingConfigHolder(path string, log *zap.Logger) (*RoutingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.routing")

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("notifications")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/cryptopay")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && isMissingFile(err)) {
			return nil, fmt.Errorf("read routing config: %w", err)
		}
		log.Info("routing config not found, using defaults")
		return NewStaticRoutingHolder(DefaultRoutingConfig()), nil
	}

	cfg, err := decodeRouting(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticRoutingHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRouting(v)
		if err != nil {
			log.Warn("routing config reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("routing config reloaded", zap.String("file", filepath.Base(e.Name)))
	})

	return holder, nil
}

func (h *RoutingConfigHolder) Get() RoutingConfig {
	return h.current.Load().(RoutingConfig)
}

func decodeRouting(v *viper.Viper) (RoutingConfig, error) {
	var cfg RoutingConfig
	if err := v.UnmarshalKey("notifications", &cfg); err != nil {
		return RoutingConfig{}, err
	}
	if err := validateRoutingConfig(cfg); err != nil {
		return RoutingConfig{}, err
	}
	return cfg, nil
}

func validateRoutingConfig(cfg RoutingConfig) error {
	if len(cfg.Rules) == 0 {
		return errors.New("notifications.rules cannot be empty")
	}
	for i, rule := range cfg.Rules {
		if strings.TrimSpace(rule.EventType) == "" {
			return fmt.Errorf("notifications.rules[%d].event_type is required", i)
		}
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file")
}
