package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Monitor.PollInterval)
	assert.Equal(t, 3*time.Hour, cfg.Monitor.Freshness())
	assert.Equal(t, 24*time.Hour, cfg.Monitor.ReminderInterval)
	assert.True(t, cfg.Monitor.RecoveryNotify)
	assert.Equal(t, 1, cfg.Monitor.RecoveryAfterCycles)
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, TransportNtfy, cfg.Notify.Transport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)

	sched, err := cfg.Monitor.DigestSchedule()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, sched.Weekday)
	assert.Equal(t, 17, sched.Hour)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POLL_INTERVAL", "30m")
	t.Setenv("FRESHNESS_MULTIPLIER", "4")
	t.Setenv("RECOVERY_NOTIFY", "false")
	t.Setenv("RECOVERY_AFTER_CYCLES", "3")
	t.Setenv("DIGEST_WEEKDAY", "mon")
	t.Setenv("DIGEST_TIME", "08:30")
	t.Setenv("DIGEST_TIMEZONE", "UTC")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("NOTIFY_TRANSPORT", "mqtt")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Monitor.Freshness())
	assert.False(t, cfg.Monitor.RecoveryNotify)
	assert.Equal(t, 3, cfg.Monitor.RecoveryAfterCycles)
	assert.Equal(t, BackendRedis, cfg.State.Backend)
	assert.Equal(t, TransportMQTT, cfg.Notify.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	sched, err := cfg.Monitor.DigestSchedule()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, sched.Weekday)
	assert.Equal(t, 8, sched.Hour)
	assert.Equal(t, 30, sched.Minute)
	assert.Equal(t, time.UTC, sched.Location)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FRESHNESS_WINDOW=5h\nNTFY_TOPIC=cabin_temp\n"), 0o600))
	// godotenv sets process variables directly.
	t.Cleanup(func() {
		os.Unsetenv("FRESHNESS_WINDOW")
		os.Unsetenv("NTFY_TOPIC")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Hour, cfg.Monitor.Freshness())
	assert.Equal(t, "cabin_temp", cfg.Ntfy.Topic)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Monitor: MonitorConfig{PollInterval: time.Hour, DigestWeekday: "Sunday", DigestTime: "17:00"},
			State:   StateConfig{Backend: BackendFile},
			Notify:  NotifyConfig{Transport: TransportLog},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"zero poll":        func(c *Config) { c.Monitor.PollInterval = 0 },
		"bad weekday":      func(c *Config) { c.Monitor.DigestWeekday = "Funday" },
		"bad time":         func(c *Config) { c.Monitor.DigestTime = "25:00" },
		"bad timezone":     func(c *Config) { c.Monitor.DigestTimezone = "Mars/Olympus" },
		"unknown backend":  func(c *Config) { c.State.Backend = "sqlite" },
		"unknown transport": func(c *Config) { c.Notify.Transport = "sms" },
		"bad qos":          func(c *Config) { c.MQTT.QoS = 3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "nope")
	assert.Equal(t, 7, getEnvAsInt("CFG_TEST_INT", 7))
	t.Setenv("CFG_TEST_BOOL", "1")
	assert.True(t, getEnvAsBool("CFG_TEST_BOOL", false))
	t.Setenv("CFG_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, getEnvAsFloat("CFG_TEST_FLOAT", 0))
	t.Setenv("CFG_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("CFG_TEST_DUR", 0))
}
