package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smukkama/home-monitor/internal/aggregation"
)

type Config struct {
	Monitor   MonitorConfig
	State     StateConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Airthings AirthingsConfig
	Ntfy      NtfyConfig
	MQTT      MQTTConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	Log       LogConfig
}

type MonitorConfig struct {
	InventoryPath string
	PollInterval  time.Duration
	// FreshnessWindow overrides FreshnessMultiplier x PollInterval when set.
	FreshnessWindow     time.Duration
	FreshnessMultiplier float64
	ReminderInterval    time.Duration
	RecoveryNotify      bool
	RecoveryAfterCycles int
	DigestWeekday       string
	DigestTime          string
	DigestTimezone      string
	DigestExportDir     string
}

// Freshness returns the default freshness window for devices.
func (m MonitorConfig) Freshness() time.Duration {
	if m.FreshnessWindow > 0 {
		return m.FreshnessWindow
	}
	mult := m.FreshnessMultiplier
	if mult <= 0 {
		mult = 3
	}
	return time.Duration(float64(m.PollInterval) * mult)
}

// DigestSchedule parses the digest weekday, time and timezone.
func (m MonitorConfig) DigestSchedule() (aggregation.Schedule, error) {
	loc := time.Local
	if m.DigestTimezone != "" {
		var err error
		loc, err = time.LoadLocation(m.DigestTimezone)
		if err != nil {
			return aggregation.Schedule{}, fmt.Errorf("invalid DIGEST_TIMEZONE: %w", err)
		}
	}
	return aggregation.ParseSchedule(m.DigestWeekday, m.DigestTime, loc)
}

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type StateConfig struct {
	Backend       string
	FilePath      string
	LockPath      string
	LockTTL       time.Duration
	MigrationsDir string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	StateKey string
	LockKey  string
}

type KafkaConfig struct {
	Brokers            []string
	TopicNotifications string
	GroupID            string
	NumPartitions      int
}

type AirthingsConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
	Timeout      time.Duration
	RetryCount   int
}

type NtfyConfig struct {
	Server string
	Topic  string
	Token  string
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

const (
	TransportNtfy  = "ntfy"
	TransportKafka = "kafka"
	TransportMQTT  = "mqtt"
	TransportEmail = "email"
	TransportLog   = "log"
)

type NotifyConfig struct {
	Transport string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Monitor: MonitorConfig{
			InventoryPath:       getEnv("INVENTORY_PATH", "inventory.json"),
			PollInterval:        getEnvAsDuration("POLL_INTERVAL", time.Hour),
			FreshnessWindow:     getEnvAsDuration("FRESHNESS_WINDOW", 0),
			FreshnessMultiplier: getEnvAsFloat("FRESHNESS_MULTIPLIER", 3),
			ReminderInterval:    getEnvAsDuration("REMINDER_INTERVAL", 24*time.Hour),
			RecoveryNotify:      getEnvAsBool("RECOVERY_NOTIFY", true),
			RecoveryAfterCycles: getEnvAsInt("RECOVERY_AFTER_CYCLES", 1),
			DigestWeekday:       getEnv("DIGEST_WEEKDAY", "Sunday"),
			DigestTime:          getEnv("DIGEST_TIME", "17:00"),
			DigestTimezone:      getEnv("DIGEST_TIMEZONE", ""),
			DigestExportDir:     getEnv("DIGEST_EXPORT_DIR", ""),
		},
		State: StateConfig{
			Backend:       getEnv("STATE_BACKEND", BackendFile),
			FilePath:      getEnv("STATE_FILE", "monitor_state.json"),
			LockPath:      getEnv("STATE_LOCK_FILE", "monitor.lock"),
			LockTTL:       getEnvAsDuration("STATE_LOCK_TTL", 10*time.Minute),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "monitor_user"),
			Password: getEnv("DB_PASSWORD", "monitor_pass"),
			DBName:   getEnv("DB_NAME", "home_monitor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			StateKey: getEnv("REDIS_STATE_KEY", "home_monitor:state"),
			LockKey:  getEnv("REDIS_LOCK_KEY", "home_monitor:lock"),
		},
		Kafka: KafkaConfig{
			Brokers:            splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "home_monitor.notifications"),
			GroupID:            getEnv("KAFKA_GROUP_ID", "notification-group"),
			NumPartitions:      getEnvAsInt("KAFKA_NUM_PARTITIONS", 1),
		},
		Airthings: AirthingsConfig{
			ClientID:     getEnv("AIRTHINGS_CLIENT_ID", ""),
			ClientSecret: getEnv("AIRTHINGS_CLIENT_SECRET", ""),
			TokenURL:     getEnv("AIRTHINGS_TOKEN_URL", ""),
			BaseURL:      getEnv("AIRTHINGS_BASE_URL", ""),
			Timeout:      getEnvAsDuration("AIRTHINGS_TIMEOUT", 15*time.Second),
			RetryCount:   getEnvAsInt("AIRTHINGS_RETRY_COUNT", 2),
		},
		Ntfy: NtfyConfig{
			Server: getEnv("NTFY_SERVER", "https://ntfy.sh"),
			Topic:  getEnv("NTFY_TOPIC", ""),
			Token:  getEnv("NTFY_TOKEN", ""),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID: getEnv("MQTT_CLIENT_ID", "home-monitor"),
			Topic:    getEnv("MQTT_TOPIC", "home_monitor/notifications"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
			QoS:      getEnvAsInt("MQTT_QOS", 1),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "home-monitor@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
		Notify: NotifyConfig{
			Transport: getEnv("NOTIFY_TRANSPORT", TransportNtfy),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.FreshnessWindow < 0 {
		return fmt.Errorf("FRESHNESS_WINDOW must not be negative")
	}
	if c.Monitor.ReminderInterval < 0 {
		return fmt.Errorf("REMINDER_INTERVAL must not be negative")
	}
	if _, err := c.Monitor.DigestSchedule(); err != nil {
		return err
	}

	switch c.State.Backend {
	case BackendFile, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.State.Backend)
	}

	switch c.Notify.Transport {
	case TransportNtfy, TransportKafka, TransportMQTT, TransportEmail, TransportLog:
	default:
		return fmt.Errorf("unknown NOTIFY_TRANSPORT %q", c.Notify.Transport)
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
