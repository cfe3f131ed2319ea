package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SnapshotStaleAfter is the operational contract for the snapshot
// file: external monitors treat a record older than this as stale, so
// the publish interval must stay under it.
const SnapshotStaleAfter = 10 * time.Second

// Config is the full service configuration, populated from the YAML
// config file with environment overrides (CAMERA_SOURCE overrides
// camera.source, and so on).
type Config struct {
	Camera        CameraConfig        `mapstructure:"camera"`
	AI            AIConfig            `mapstructure:"ai"`
	System        SystemConfig        `mapstructure:"system"`
	RateLimiting  RateLimitingConfig  `mapstructure:"rate_limiting"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Web           WebConfig           `mapstructure:"web"`
}

// CameraConfig describes the capture sources and session recovery
// behaviour.
type CameraConfig struct {
	Source                 string        `mapstructure:"source"`
	FallbackSources        []string      `mapstructure:"fallback_sources"`
	ReadTimeout            time.Duration `mapstructure:"read_timeout"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	ReconnectAttempts      int           `mapstructure:"reconnect_attempts"`
	ReconnectBaseDelay     time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay      time.Duration `mapstructure:"reconnect_max_delay"`
}

// AIConfig holds the detection policy and the detector backend wiring.
type AIConfig struct {
	Backend             string   `mapstructure:"backend"` // "dnn" or "http"
	ModelPath           string   `mapstructure:"model_path"`
	ModelConfigPath     string   `mapstructure:"model_config_path"`
	ServerURL           string   `mapstructure:"server_url"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
	NMSThreshold        float64  `mapstructure:"nms_threshold"`
	Classes             []string `mapstructure:"classes"`
}

// SystemConfig holds loop cadences and paths.
type SystemConfig struct {
	DetectionInterval time.Duration `mapstructure:"detection_interval"`
	SnapshotInterval  time.Duration `mapstructure:"snapshot_interval"`
	SnapshotPath      string        `mapstructure:"snapshot_path"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	Debug             bool          `mapstructure:"debug"`
}

// RateLimitingConfig holds the alert eligibility parameters.
type RateLimitingConfig struct {
	MinAlertInterval time.Duration `mapstructure:"min_alert_interval"`
	MaxAlertsPerHour int           `mapstructure:"max_alerts_per_hour"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
}

// StorageConfig holds event store paths, retention and image caps.
type StorageConfig struct {
	DatabasePath                string  `mapstructure:"database_path"`
	ImageDirectory              string  `mapstructure:"image_directory"`
	DetectionImageRetentionDays int     `mapstructure:"detection_image_retention_days"`
	LogRetentionDays            int     `mapstructure:"log_retention_days"`
	MaxImageSizeMB              float64 `mapstructure:"max_image_size_mb"`
}

// NotificationsConfig selects and configures alert channels.
type NotificationsConfig struct {
	DispatchTimeout time.Duration      `mapstructure:"dispatch_timeout"`
	ChannelTimeout  time.Duration      `mapstructure:"channel_timeout"`
	Audio           AudioChannelConfig `mapstructure:"audio"`
	Email           EmailChannelConfig `mapstructure:"email"`
	SMS             SMSChannelConfig   `mapstructure:"sms"`
	Push            PushChannelConfig  `mapstructure:"push"`
	MQTT            MQTTChannelConfig  `mapstructure:"mqtt"`
	Log             LogChannelConfig   `mapstructure:"log"`
}

type AudioChannelConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Player    string `mapstructure:"player"`
	SoundFile string `mapstructure:"sound_file"`
}

type EmailChannelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
}

type SMSChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	To         string `mapstructure:"to"`
}

type PushChannelConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MQTTChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	QoS      int    `mapstructure:"qos"`
}

type LogChannelConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WebConfig holds the status/push HTTP surface settings.
type WebConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// setDefaults registers every recognized key. Keys with no meaningful
// default get their zero value: viper only honours environment
// overrides for keys it already knows about, so an unregistered key
// would silently ignore its env var.
func setDefaults(v *viper.Viper) {
	v.SetDefault("camera.source", "0")
	v.SetDefault("camera.fallback_sources", []string{})
	v.SetDefault("camera.read_timeout", 2*time.Second)
	v.SetDefault("camera.max_consecutive_failures", 5)
	v.SetDefault("camera.reconnect_attempts", 5)
	v.SetDefault("camera.reconnect_base_delay", time.Second)
	v.SetDefault("camera.reconnect_max_delay", 30*time.Second)

	v.SetDefault("ai.backend", "dnn")
	v.SetDefault("ai.model_path", "")
	v.SetDefault("ai.model_config_path", "")
	v.SetDefault("ai.server_url", "")
	v.SetDefault("ai.confidence_threshold", 0.6)
	v.SetDefault("ai.nms_threshold", 0.45)
	v.SetDefault("ai.classes", []string{"hawk", "eagle", "falcon", "owl", "bird"})

	v.SetDefault("system.detection_interval", time.Second)
	v.SetDefault("system.snapshot_interval", 3*time.Second)
	v.SetDefault("system.snapshot_path", "data/snapshot.jpg")
	v.SetDefault("system.sweep_interval", 24*time.Hour)
	v.SetDefault("system.shutdown_grace", 5*time.Second)
	v.SetDefault("system.debug", false)

	v.SetDefault("rate_limiting.min_alert_interval", 30*time.Second)
	v.SetDefault("rate_limiting.max_alerts_per_hour", 10)
	v.SetDefault("rate_limiting.cooldown_period", 5*time.Minute)

	v.SetDefault("storage.database_path", "data/skywarden.db")
	v.SetDefault("storage.image_directory", "data/images")
	v.SetDefault("storage.detection_image_retention_days", 7)
	v.SetDefault("storage.log_retention_days", 30)
	v.SetDefault("storage.max_image_size_mb", 2.0)

	v.SetDefault("notifications.dispatch_timeout", 15*time.Second)
	v.SetDefault("notifications.channel_timeout", 10*time.Second)
	v.SetDefault("notifications.audio.enabled", false)
	v.SetDefault("notifications.audio.player", "aplay")
	v.SetDefault("notifications.audio.sound_file", "")
	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.api_url", "")
	v.SetDefault("notifications.email.api_key", "")
	v.SetDefault("notifications.email.from", "")
	v.SetDefault("notifications.email.to", "")
	v.SetDefault("notifications.sms.enabled", false)
	v.SetDefault("notifications.sms.gateway_url", "")
	v.SetDefault("notifications.sms.api_key", "")
	v.SetDefault("notifications.sms.to", "")
	v.SetDefault("notifications.push.enabled", false)
	v.SetDefault("notifications.mqtt.enabled", false)
	v.SetDefault("notifications.mqtt.broker", "")
	v.SetDefault("notifications.mqtt.topic", "skywarden/alerts")
	v.SetDefault("notifications.mqtt.client_id", "skywarden")
	v.SetDefault("notifications.mqtt.qos", 1)
	v.SetDefault("notifications.log.enabled", true)

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.listen_addr", ":8080")
}

// Load reads the configuration file at path (optional; defaults apply
// when empty or missing) after loading a local .env, and validates the
// result. Invalid configuration is the only load-time fatal.
func Load(path string) (*Config, error) {
	// A missing .env is fine; it only exists on dev machines.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// Validate checks value ranges that would otherwise surface as
// confusing runtime behaviour.
func (c *Config) Validate() error {
	if c.Camera.Source == "" {
		return errors.New("camera.source is required")
	}
	if c.AI.ConfidenceThreshold < 0 || c.AI.ConfidenceThreshold > 1 {
		return errors.Errorf("ai.confidence_threshold out of range: %v", c.AI.ConfidenceThreshold)
	}
	if c.AI.NMSThreshold < 0 || c.AI.NMSThreshold > 1 {
		return errors.Errorf("ai.nms_threshold out of range: %v", c.AI.NMSThreshold)
	}
	if len(c.AI.Classes) == 0 {
		return errors.New("ai.classes must name at least one class")
	}
	if c.AI.Backend != "dnn" && c.AI.Backend != "http" {
		return errors.Errorf("ai.backend must be dnn or http, got %q", c.AI.Backend)
	}
	if c.System.DetectionInterval <= 0 {
		return errors.New("system.detection_interval must be positive")
	}
	if c.System.SnapshotInterval <= 0 {
		return errors.New("system.snapshot_interval must be positive")
	}
	if c.System.SnapshotInterval >= SnapshotStaleAfter {
		return errors.Errorf("system.snapshot_interval %v breaks the %v snapshot staleness contract",
			c.System.SnapshotInterval, SnapshotStaleAfter)
	}
	if c.Notifications.DispatchTimeout <= 0 || c.Notifications.ChannelTimeout <= 0 {
		return errors.New("notification timeouts must be positive")
	}
	if c.Notifications.ChannelTimeout > c.Notifications.DispatchTimeout {
		return errors.Errorf("notifications.channel_timeout %v exceeds the dispatch ceiling %v",
			c.Notifications.ChannelTimeout, c.Notifications.DispatchTimeout)
	}
	if c.RateLimiting.MaxAlertsPerHour <= 0 {
		return errors.New("rate_limiting.max_alerts_per_hour must be positive")
	}
	if c.RateLimiting.MinAlertInterval < 0 || c.RateLimiting.CooldownPeriod < 0 {
		return errors.New("rate_limiting intervals must not be negative")
	}
	if c.Storage.DetectionImageRetentionDays <= 0 || c.Storage.LogRetentionDays <= 0 {
		return errors.New("storage retention days must be positive")
	}
	if c.Storage.MaxImageSizeMB <= 0 {
		return errors.New("storage.max_image_size_mb must be positive")
	}
	return nil
}

// MaxImageBytes converts the configured image cap to bytes.
func (c *StorageConfig) MaxImageBytes() int64 {
	return int64(c.MaxImageSizeMB * 1024 * 1024)
}
