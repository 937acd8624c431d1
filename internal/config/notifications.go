package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// NotificationConfig gates outbound mail after a response import. A batch
// snapshots these flags once at its start; individual archives in the same
// batch never see a mixed view.
type NotificationConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	NotifyPerformers bool `mapstructure:"notifyPerformers"`
	NotifyClient     bool `mapstructure:"notifyClient"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		Enabled:          false,
		NotifyPerformers: true,
		NotifyClient:     true,
	}
}

// NotificationConfigHolder exposes the current notification flags. The file
// is watched so an operator can toggle mail without a restart.
type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

func NewNotificationConfigHolder() (*NotificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notifications")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/agibilita")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AGIBILITA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultNotificationConfig()
		v.SetDefault("notifications.enabled", defaults.Enabled)
		v.SetDefault("notifications.notifyPerformers", defaults.NotifyPerformers)
		v.SetDefault("notifications.notifyClient", defaults.NotifyClient)
	}

	var cfg NotificationConfig
	if err := v.UnmarshalKey("notifications", &cfg); err != nil {
		return nil, err
	}

	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated NotificationConfig
		if err := v.UnmarshalKey("notifications", &updated); err != nil {
			log.Printf("[notification-config] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[notification-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	return h.current.Load().(NotificationConfig)
}

// NewStaticNotificationConfigHolder returns a holder pinned to the given
// flags, for tests and one-off batch runs.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}
