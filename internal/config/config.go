package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is shared by all four services; deployment picks the database,
// ports and listener specifics through environment variables.
type Config struct {
	App        App        `yaml:"app"`
	Log        Log        `yaml:"log"`
	HTTP       HTTP       `yaml:"http"`
	Metrics    Metrics    `yaml:"metrics"`
	Postgres   Postgres   `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Orders     Orders     `yaml:"orders"`
	Relay      Relay      `yaml:"relay"`
	Expiration Expiration `yaml:"expiration"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"ticketing"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
}

type Metrics struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR" env-default:":9090"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"ticketing"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	TopicPrefix string   `yaml:"topic_prefix" env:"KAFKA_TOPIC_PREFIX" env-default:"ticketing"`
}

type Orders struct {
	// ExpirationWindow is how long an unpaid order holds its ticket.
	ExpirationWindow time.Duration `yaml:"expiration_window" env:"ORDER_EXPIRATION_WINDOW" env-default:"15m"`
}

type Relay struct {
	Interval  time.Duration `yaml:"interval" env:"RELAY_INTERVAL" env-default:"1s"`
	BatchSize int           `yaml:"batch_size" env:"RELAY_BATCH_SIZE" env-default:"50"`
}

type Expiration struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"EXPIRATION_POLL_INTERVAL" env-default:"1s"`
	ScheduleKey  string        `yaml:"schedule_key" env:"EXPIRATION_SCHEDULE_KEY" env-default:"expiration:schedule"`
	BatchSize    int64         `yaml:"batch_size" env:"EXPIRATION_BATCH_SIZE" env-default:"100"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fall back to env vars when the file is absent
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// env vars override the file
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	return cfg, nil
}
