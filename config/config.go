package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Plant     PlantConfig     `yaml:"plant"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Cleaner   CleanerConfig   `yaml:"cleaner"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "kafka" or "mqtt"
	Kafka               KafkaConfig   `yaml:"kafka"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
	OrdersTopic         string        `yaml:"orders_topic"`
	EventsTopic         string        `yaml:"events_topic"`
	CommandsTopic       string        `yaml:"commands_topic"`
	ReportsTopic        string        `yaml:"reports_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	StationID           string        `yaml:"station_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type DispatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	// AutoActivate releases orders created over the API or messaging for
	// dispatching right away.
	AutoActivate bool `yaml:"auto_activate"`
}

type PlantConfig struct {
	ModelPath string `yaml:"model_path"`
}

type FleetConfig struct {
	Backend       string        `yaml:"backend"` // "loopback" or "driverlink"
	StepInterval  time.Duration `yaml:"step_interval"`
	EnergyPerStep float64       `yaml:"energy_per_step"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

type CleanerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule"` // cron spec
	Retention time.Duration `yaml:"retention"`
	// OutboxRetention bounds how long sent outbox rows are kept.
	OutboxRetention time.Duration `yaml:"outbox_retention"`
}

type ArchiveConfig struct {
	Driver string          `yaml:"driver"` // "fs", "s3" or "" to disable
	Path   string          `yaml:"path"`
	S3     S3ArchiveConfig `yaml:"s3"`
}

type S3ArchiveConfig struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "fleetkernel.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "fleetkernel",
				User:     "fleetkernel",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8085,
			SessionSecret: "change-me-in-production",
		},
		Messaging: MessagingConfig{
			Backend: "kafka",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "fleetkernel",
			},
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "fleetkernel",
			},
			OrdersTopic:         "fleet.orders",
			EventsTopic:         "fleet.events",
			CommandsTopic:       "fleet.commands",
			ReportsTopic:        "fleet.reports",
			OutboxDrainInterval: 5 * time.Second,
			StationID:           "kernel",
		},
		Dispatch: DispatchConfig{
			Interval:     2 * time.Second,
			AutoActivate: true,
		},
		Plant: PlantConfig{
			ModelPath: "plant.yaml",
		},
		Fleet: FleetConfig{
			Backend:       "loopback",
			StepInterval:  500 * time.Millisecond,
			EnergyPerStep: 0.5,
			StaleAfter:    30 * time.Second,
		},
		Cleaner: CleanerConfig{
			Enabled:         true,
			Schedule:        "*/5 * * * *",
			Retention:       24 * time.Hour,
			OutboxRetention: 72 * time.Hour,
		},
		Archive: ArchiveConfig{
			Driver: "fs",
			Path:   "archive",
		},
	}
}

// Load reads .env (if present) into the environment, then the YAML file at
// path over the defaults, then applies FLEETKERNEL_* overrides. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

// applyEnv overrides selected keys from FLEETKERNEL_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup("FLEETKERNEL_" + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup("FLEETKERNEL_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("DB_DRIVER", &c.Database.Driver)
	str("SQLITE_PATH", &c.Database.SQLite.Path)
	str("POSTGRES_HOST", &c.Database.Postgres.Host)
	num("POSTGRES_PORT", &c.Database.Postgres.Port)
	str("POSTGRES_DB", &c.Database.Postgres.Database)
	str("POSTGRES_USER", &c.Database.Postgres.User)
	str("POSTGRES_PASSWORD", &c.Database.Postgres.Password)
	str("REDIS_ADDRESS", &c.Redis.Address)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("WEB_PORT", &c.Web.Port)
	str("SESSION_SECRET", &c.Web.SessionSecret)
	str("MESSAGING_BACKEND", &c.Messaging.Backend)
	str("STATION_ID", &c.Messaging.StationID)
	str("PLANT_MODEL", &c.Plant.ModelPath)
	str("FLEET_BACKEND", &c.Fleet.Backend)
	str("ARCHIVE_DRIVER", &c.Archive.Driver)
	str("ARCHIVE_BUCKET", &c.Archive.S3.Bucket)
	if v, ok := lookup("FLEETKERNEL_KAFKA_BROKERS"); ok && v != "" {
		c.Messaging.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }
