package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/directory/postgres"
	"github.com/MrEthical07/goCred/httpapi"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/logging"
	"github.com/MrEthical07/goCred/notify"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GOCRED_"

// Notifier drivers.
const (
	driverLog  = "log"
	driverSMTP = "smtp"
	driverAMQP = "amqp"
)

// Config is the service configuration. Values come from the YAML file,
// then the environment (prefix GOCRED_), which wins.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Log      logging.Config `yaml:"log" envPrefix:"LOG_"`
	Engine   goCred.Config  `yaml:"engine"`
	HTTP     httpapi.Config `yaml:"http" envPrefix:"HTTP_"`
	Session  SessionKeys    `yaml:"session" envPrefix:"SESSION_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	Notify   NotifyConfig   `yaml:"notify" envPrefix:"NOTIFY_"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// SessionKeys locates signing material. Secret is an HS256 key given
// inline; the files hold PEM keys or a raw HS256 secret.
type SessionKeys struct {
	Secret         string `yaml:"-" env:"SECRET"`
	PrivateKeyFile string `yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	PublicKeyFile  string `yaml:"public_key_file" env:"PUBLIC_KEY_FILE"`
}

type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Empty runs the in-memory backend.
	URL string `yaml:"-" env:"URL"`
}

type PostgresConfig struct {
	// DSN selects the Postgres directory. Empty uses an in-memory directory.
	DSN  string              `yaml:"-" env:"DSN"`
	Pool postgres.PoolConfig `yaml:"pool" envPrefix:"POOL_"`
}

type NotifyConfig struct {
	Driver       string            `yaml:"driver" env:"DRIVER"`
	Product      string            `yaml:"product" env:"PRODUCT"`
	TemplatesDir string            `yaml:"templates_dir" env:"TEMPLATES_DIR"`
	SMTP         notify.SMTPConfig `yaml:"smtp" envPrefix:"SMTP_"`
	AMQP         notify.AMQPConfig `yaml:"amqp" envPrefix:"AMQP_"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:    logging.Config{Env: "dev", Level: "info", Service: "gocred"},
		Engine: goCred.DefaultConfig(),
		HTTP:   httpapi.DefaultConfig(),
		Notify: NotifyConfig{Driver: driverLog, Product: "goCred"},
	}
}

// loadConfig reads path (optional), then envFile (optional, ignored when
// missing), then the process environment.
func loadConfig(path, envFile string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.applySessionKeys(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applySessionKeys() error {
	if c.Session.Secret != "" {
		c.Engine.Session.SigningMethod = jwt.MethodHS256
		c.Engine.Session.PrivateKey = []byte(c.Session.Secret)
	}
	if c.Session.PrivateKeyFile != "" {
		b, err := os.ReadFile(c.Session.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read session private key: %w", err)
		}
		c.Engine.Session.PrivateKey = b
	}
	if c.Session.PublicKeyFile != "" {
		b, err := os.ReadFile(c.Session.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("read session public key: %w", err)
		}
		c.Engine.Session.PublicKey = b
	}
	return nil
}

// Validate checks the service-level settings. Engine settings are checked
// by the engine builder.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	switch c.Notify.Driver {
	case driverLog, driverSMTP, driverAMQP:
	default:
		return fmt.Errorf("notify.driver must be one of log, smtp, amqp; got %q", c.Notify.Driver)
	}
	return nil
}
