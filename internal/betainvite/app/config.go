package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// OpsDisabled as OPS_ADDR turns the ops listener off.
	OpsDisabled = "off"
)

var ErrInvalidConfig = errors.New("invalid config")

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

type Config struct {
	InvitationsPerUser   int `env:"INVITATIONS_PER_USER" envDefault:"10"`
	InvitationsValidDays int `env:"INVITATIONS_VALID_DAYS" envDefault:"14"`

	DatabaseDriver   string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseFile     string `env:"DATABASE_FILE" envDefault:"betainvite.db"`
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`

	SMTP     SMTPConfig `envPrefix:"SMTP_"` // Empty host logs mail instead of sending it
	MailFrom string     `env:"MAIL_FROM" envDefault:"no-reply@localhost"`
	SiteName string     `env:"SITE_NAME" envDefault:"betainvite"`

	HousekeepingInterval     time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"24h"`
	WaitlistDispatchInterval time.Duration `env:"WAITLIST_DISPATCH_INTERVAL" envDefault:"0s"` // 0 disables
	WaitlistDispatchBatch    int           `env:"WAITLIST_DISPATCH_BATCH" envDefault:"25"`
	WaitlistSendRate         float64       `env:"WAITLIST_SEND_RATE" envDefault:"1"` // emails per second, 0 is unlimited

	OpsAddr string `env:"OPS_ADDR" envDefault:":9090"`

	Env                 string        `env:"ENV" envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

// LoadConfig reads a .env file when present and then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	return parseConfig(nil)
}

// parseConfig parses environ, or the process environment when environ is nil.
func parseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	if c.InvitationsPerUser < 0 {
		errs = append(errs, errors.New("INVITATIONS_PER_USER must not be negative"))
	}
	if c.InvitationsValidDays <= 0 {
		errs = append(errs, errors.New("INVITATIONS_VALID_DAYS must be positive"))
	}
	if c.WaitlistSendRate < 0 {
		errs = append(errs, errors.New("WAITLIST_SEND_RATE must not be negative"))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SQLiteDSN is the connection string used for DatabaseFile.
func (c Config) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", c.DatabaseFile)
}

func (c Config) OpsEnabled() bool {
	return c.OpsAddr != "" && c.OpsAddr != OpsDisabled
}
