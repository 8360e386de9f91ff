package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RESTO_DATABASE_HOST.
// Keys come from field names only; explicit envconfig tags would also match
// unprefixed variables such as USER or HOST.
const EnvPrefix = "RESTO"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Restaurant RestaurantConfig `yaml:"restaurant"`
	Booking    BookingConfig    `yaml:"booking"`
	Worker     WorkerConfig     `yaml:"worker"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Name     string     `yaml:"name"`
	SSLMode  string     `yaml:"ssl_mode" split_words:"true"`
	Pool     PoolConfig `yaml:"pool"`

	// AutoMigrate applies pending migrations when a process starts.
	AutoMigrate bool `yaml:"auto_migrate" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type PoolConfig struct {
	MaxIdle              int `yaml:"max_idle" split_words:"true"`
	IdleTimeoutSeconds   int `yaml:"idle_timeout_seconds" split_words:"true"`
	EvictIntervalSeconds int `yaml:"evict_interval_seconds" split_words:"true"`
}

type StoreConfig struct {
	// Driver is postgres or memory.
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic" split_words:"true"`
	GroupID            string   `yaml:"group_id" split_words:"true"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type RestaurantConfig struct {
	Timezone string        `yaml:"timezone"`
	Tables   []TableConfig `yaml:"tables" ignored:"true"`
	Hours    []HoursConfig `yaml:"hours" ignored:"true"`
}

// TableConfig seeds one table of the dining room.
type TableConfig struct {
	Number   int  `yaml:"number"`
	Capacity int  `yaml:"capacity"`
	Disabled bool `yaml:"disabled"`
}

// HoursConfig seeds the default hours for one weekday. Open and Close are
// local wall-clock times in HH:MM.
type HoursConfig struct {
	Weekday string `yaml:"weekday"`
	Open    string `yaml:"open"`
	Close   string `yaml:"close"`
	Closed  bool   `yaml:"closed"`
}

// Location resolves the restaurant's configured time zone.
func (r RestaurantConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

type BookingConfig struct {
	MinLeadMinutes        int `yaml:"min_lead_minutes" split_words:"true"`
	MaxAdvanceDays        int `yaml:"max_advance_days" split_words:"true"`
	OfferWindowMinutes    int `yaml:"offer_window_minutes" split_words:"true"`
	NoShowGraceMinutes    int `yaml:"no_show_grace_minutes" split_words:"true"`
	ReminderLeadMinutes   int `yaml:"reminder_lead_minutes" split_words:"true"`
	CodeMaxAttempts       int `yaml:"code_max_attempts" split_words:"true"`
	ConflictRetries       int `yaml:"conflict_retries" split_words:"true"`
	SlotsCacheTTLSeconds  int `yaml:"slots_cache_ttl_seconds" split_words:"true"`
	NotificationQueueSize int `yaml:"notification_queue_size" split_words:"true"`
}

type WorkerConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" split_words:"true"`
	LockTTLSeconds       int `yaml:"lock_ttl_seconds" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads the YAML file at path, applies RESTO_* environment
// overrides and fills defaults. A missing file is not an error, so the
// service can run from the environment alone.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.HTTP.Address, ":8080")
	setDefault(&c.Database.Host, "localhost")
	setDefault(&c.Database.Port, 5432)
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.Pool.MaxIdle, 10)
	setDefault(&c.Database.Pool.IdleTimeoutSeconds, 300)
	setDefault(&c.Database.Pool.EvictIntervalSeconds, 30)
	setDefault(&c.Store.Driver, StoreDriverPostgres)
	setDefault(&c.Kafka.NotificationsTopic, "restaurant.notifications")
	setDefault(&c.Kafka.GroupID, "restobooking-notifier")
	setDefault(&c.SMTP.Port, 587)
	setDefault(&c.Restaurant.Timezone, "UTC")
	setDefault(&c.Booking.MinLeadMinutes, 60)
	setDefault(&c.Booking.MaxAdvanceDays, 31)
	setDefault(&c.Booking.OfferWindowMinutes, 15)
	setDefault(&c.Booking.NoShowGraceMinutes, 15)
	setDefault(&c.Booking.ReminderLeadMinutes, 120)
	setDefault(&c.Booking.CodeMaxAttempts, 10)
	setDefault(&c.Booking.ConflictRetries, 3)
	setDefault(&c.Booking.SlotsCacheTTLSeconds, 60)
	setDefault(&c.Booking.NotificationQueueSize, 256)
	setDefault(&c.Worker.SweepIntervalSeconds, 60)
	setDefault(&c.Worker.LockTTLSeconds, 50)
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "json")
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if _, err := c.Restaurant.Location(); err != nil {
		return err
	}
	return nil
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

func (b BookingConfig) MinLead() time.Duration {
	return time.Duration(b.MinLeadMinutes) * time.Minute
}

func (b BookingConfig) MaxAdvance() time.Duration {
	return time.Duration(b.MaxAdvanceDays) * 24 * time.Hour
}

func (b BookingConfig) OfferWindow() time.Duration {
	return time.Duration(b.OfferWindowMinutes) * time.Minute
}

func (b BookingConfig) NoShowGrace() time.Duration {
	return time.Duration(b.NoShowGraceMinutes) * time.Minute
}

func (b BookingConfig) ReminderLead() time.Duration {
	return time.Duration(b.ReminderLeadMinutes) * time.Minute
}

func (b BookingConfig) SlotsCacheTTL() time.Duration {
	return time.Duration(b.SlotsCacheTTLSeconds) * time.Second
}
