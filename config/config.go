package config

import (
	"os"

	"github.com/pkg/errors"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	LiveTrack LiveTrackConfig `yaml:"livetrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LedgerTopicName         string `yaml:"ledger_topic_name"`
	SensorReadingsTopicName string `yaml:"sensor_readings_topic_name"`
	ConsumerGroup           string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces every key this service writes.
	Prefix string `yaml:"prefix"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LiveTrackConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	SwaggerPath string `yaml:"swagger_path"`
	LogLevel    string `yaml:"log_level"`
	JWTSecret   string `yaml:"jwt_secret"`

	DefaultIntervalSeconds      int `yaml:"default_interval_seconds"`
	MinIntervalSeconds          int `yaml:"min_interval_seconds"`
	StaleAfterSeconds           int `yaml:"stale_after_seconds"`
	HousekeepingIntervalSeconds int `yaml:"housekeeping_interval_seconds"`
	HealthIntervalSeconds       int `yaml:"health_interval_seconds"`
	UpstreamTimeoutSeconds      int `yaml:"upstream_timeout_seconds"`
	ShutdownGraceSeconds        int `yaml:"shutdown_grace_seconds"`

	RegulatoryRole  string   `yaml:"regulatory_role"`
	PrivilegedRoles []string `yaml:"privileged_roles"`

	StartRateLimitPerMinute int `yaml:"start_rate_limit_per_minute"`

	NotificationsPerRecipient int    `yaml:"notifications_per_recipient"`
	NotificationsGlobal       int    `yaml:"notifications_global"`
	NotificationTTLHours      int    `yaml:"notification_ttl_hours"`
	NotificationStore         string `yaml:"notification_store"` // "redis" | "memory"

	// Geocoding: "nominatim" uses GeocoderBaseURL, anything else the fake.
	GeocoderMode      string `yaml:"geocoder_mode"`
	GeocoderBaseURL   string `yaml:"geocoder_base_url"`
	GeocoderUserAgent string `yaml:"geocoder_user_agent"`
	GeocodeCacheHours int    `yaml:"geocode_cache_hours"`

	WSQueueSize int `yaml:"ws_queue_size"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal YAML")
	}

	return &config, nil
}
