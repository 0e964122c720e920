package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Storage    StorageConfig    `yaml:"storage"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Compress   CompressConfig   `yaml:"compress"`
	Backup     BackupConfig     `yaml:"backup"`
	Retention  RetentionConfig  `yaml:"retention"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	LockFile   string           `yaml:"lock_file"`
}

// PostgresConfig holds connection parameters for the database being backed up.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LedgerConfig holds the DSN of the database storing backup records.
// When empty, the Postgres section is reused with the given database name.
type LedgerConfig struct {
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

// StorageConfig holds the two object storage backends. Primary is the
// authoritative backend for downloads; the secondary exists for redundancy.
type StorageConfig struct {
	Primary          S3Endpoint `yaml:"primary"`
	Secondary        S3Endpoint `yaml:"secondary"`
	DownloadFailover bool       `yaml:"download_failover"`
}

// S3Endpoint describes one S3-compatible endpoint.
type S3Endpoint struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

type EncryptionConfig struct {
	MasterSecret string `yaml:"master_secret"`
	Enabled      *bool  `yaml:"enabled"`
}

type CompressConfig struct {
	Enabled *bool `yaml:"enabled"`
}

type BackupConfig struct {
	TempDir            string   `yaml:"temp_dir"`
	BasePrefix         string   `yaml:"base_prefix"`
	DumpTimeoutMinutes int      `yaml:"dump_timeout_minutes"`
	ConfigDirs         []string `yaml:"config_dirs"`
}

type RetentionConfig struct {
	DefaultDays  int `yaml:"default_days"`
	WeeklyDays   int `yaml:"weekly_days"`
	SnapshotDays int `yaml:"snapshot_days"`
}

type SchedulerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	Workers             int `yaml:"workers"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "127.0.0.1"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Ledger.Database == "" {
		cfg.Ledger.Database = "sys_backup"
	}
	if cfg.LockFile == "" {
		cfg.LockFile = "/tmp/backup.lock"
	}
	if cfg.Backup.TempDir == "" {
		cfg.Backup.TempDir = os.TempDir()
	}
	if cfg.Backup.BasePrefix == "" {
		cfg.Backup.BasePrefix = "backups"
	}
	if cfg.Backup.DumpTimeoutMinutes == 0 {
		cfg.Backup.DumpTimeoutMinutes = 60
	}
	if cfg.Retention.DefaultDays == 0 {
		cfg.Retention.DefaultDays = 30
	}
	if cfg.Retention.WeeklyDays == 0 {
		cfg.Retention.WeeklyDays = 90
	}
	if cfg.Retention.SnapshotDays == 0 {
		cfg.Retention.SnapshotDays = 7
	}
	if cfg.Scheduler.PollIntervalSeconds == 0 {
		cfg.Scheduler.PollIntervalSeconds = 30
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 4
	}

	if cfg.Encryption.MasterSecret == "" && cfg.EncryptionEnabled() {
		return nil, fmt.Errorf("encryption.master_secret is required unless encryption is disabled")
	}

	return &cfg, nil
}

// EncryptionEnabled reports whether the encryption stage runs. Enabled by default.
func (c *Config) EncryptionEnabled() bool {
	return c.Encryption.Enabled == nil || *c.Encryption.Enabled
}

// CompressionEnabled reports whether the compression stage runs. Enabled by default.
func (c *Config) CompressionEnabled() bool {
	return c.Compress.Enabled == nil || *c.Compress.Enabled
}

// DumpTimeout returns the hard deadline for a single pg_dump invocation.
func (c *Config) DumpTimeout() time.Duration {
	return time.Duration(c.Backup.DumpTimeoutMinutes) * time.Minute
}

// LedgerDSN builds the GORM DSN for the ledger database.
func (c *Config) LedgerDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password, c.Ledger.Database)
}

// PollInterval returns how often the scheduler scans for due schedules.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSeconds) * time.Second
}
