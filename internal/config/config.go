package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Position types served by the batch cycle, in their default order.
var DefaultTypeCycle = []string{"BAT", "AR", "BOWL", "WK"}

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Auction        AuctionConfig        `yaml:"auction"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`

	// NotifyWorkers bounds concurrent outbound channel messages.
	NotifyWorkers int `yaml:"notify_workers"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx", "ent" or "memory"

	// Migrate applies the bundled schema when the store is opened.
	Migrate bool `yaml:"migrate"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled bool `yaml:"enabled"`

	// Identity names this replica on the lease; POD_NAME or the hostname
	// when empty.
	Identity       string        `yaml:"identity"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// AuctionConfig holds the rules every room is created with.
type AuctionConfig struct {
	CatalogPath       string         `yaml:"catalog_path"`
	TeamBudget        int64          `yaml:"team_budget"`
	MaxRoster         int            `yaml:"max_roster"`
	TypeCycle         []string       `yaml:"type_cycle"`
	BatchSizes        map[string]int `yaml:"batch_sizes"`
	RegularTimeout    time.Duration  `yaml:"regular_timeout"`
	BlindTimeout      time.Duration  `yaml:"blind_timeout"`
	InactivityTimeout time.Duration  `yaml:"inactivity_timeout"`
	SweepInterval     time.Duration  `yaml:"sweep_interval"`
}

// DefaultAuction returns the auction rules used when the file omits them.
func DefaultAuction() AuctionConfig {
	return AuctionConfig{
		CatalogPath: "players.yaml",
		TeamBudget:  100_000_000,
		MaxRoster:   25,
		TypeCycle:   append([]string(nil), DefaultTypeCycle...),
		BatchSizes: map[string]int{
			"BAT":  4,
			"AR":   4,
			"BOWL": 4,
			"WK":   2,
		},
		RegularTimeout:    30 * time.Second,
		BlindTimeout:      60 * time.Second,
		InactivityTimeout: 6 * time.Hour,
		SweepInterval:     10 * time.Minute,
	}
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Discord: DiscordConfig{
			NotifyWorkers: 8,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctionbot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctionbot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Auction: DefaultAuction(),
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlx", "ent", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlx\", \"ent\" or \"memory\"", c.Database.Driver)
	}
	return c.Auction.Validate()
}

// Validate checks the auction rules.
func (a AuctionConfig) Validate() error {
	if a.TeamBudget <= 0 {
		return fmt.Errorf("auction.team_budget must be positive, got %d", a.TeamBudget)
	}
	if a.MaxRoster <= 0 {
		return fmt.Errorf("auction.max_roster must be positive, got %d", a.MaxRoster)
	}
	if len(a.TypeCycle) != len(DefaultTypeCycle) {
		return fmt.Errorf("auction.type_cycle must list %v exactly once", DefaultTypeCycle)
	}
	seen := make(map[string]bool, len(a.TypeCycle))
	for _, t := range a.TypeCycle {
		if !knownType(t) || seen[t] {
			return fmt.Errorf("auction.type_cycle must list %v exactly once, got %v", DefaultTypeCycle, a.TypeCycle)
		}
		seen[t] = true
		if a.BatchSizes[t] <= 0 {
			return fmt.Errorf("auction.batch_sizes[%s] must be positive", t)
		}
	}
	if a.RegularTimeout <= 0 || a.BlindTimeout <= 0 {
		return fmt.Errorf("auction timeouts must be positive")
	}
	if a.InactivityTimeout <= 0 {
		return fmt.Errorf("auction.inactivity_timeout must be positive")
	}
	return nil
}

func knownType(t string) bool {
	for _, k := range DefaultTypeCycle {
		if k == t {
			return true
		}
	}
	return false
}
