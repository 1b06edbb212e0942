package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"clinic-admin-api/internal/blob"
	"clinic-admin-api/internal/events"
	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
)

type Config struct {
	JWTSecret string
	GRPCPort  string
	WebPort   string
	TokenTTL  time.Duration
	LogLevel  string

	StoreDriver kv.Driver
	StoreDSN    string

	BackupDriver string // fs or s3
	BackupDir    string
	S3           blob.S3Config

	KafkaBrokers string
	KafkaTopic   string

	SeedFile string
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	dataDir := env("DATA_DIR", "data")
	c := Config{
		JWTSecret:    os.Getenv("JWT_SECRET"),
		GRPCPort:     env("PORT", "50051"),
		WebPort:      env("WEB_PORT", "8080"),
		LogLevel:     env("LOG_LEVEL", "info"),
		StoreDriver:  kv.Driver(env("STORE_DRIVER", string(kv.DriverDir))),
		StoreDSN:     os.Getenv("STORE_DSN"),
		BackupDriver: env("BACKUP_DRIVER", "fs"),
		BackupDir:    env("BACKUP_DIR", filepath.Join(dataDir, "backups")),
		S3: blob.S3Config{
			Bucket:          os.Getenv("BACKUP_S3_BUCKET"),
			Region:          os.Getenv("BACKUP_S3_REGION"),
			Endpoint:        os.Getenv("BACKUP_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   env("KAFKA_TOPIC", "clinic.events"),
		SeedFile:     os.Getenv("SEED_FILE"),
	}

	if c.StoreDSN == "" {
		switch c.StoreDriver {
		case kv.DriverDir:
			c.StoreDSN = dataDir
		case kv.DriverSQLite:
			c.StoreDSN = filepath.Join(dataDir, "clinic.db")
		case kv.DriverPostgres:
			c.StoreDSN = os.Getenv("DATABASE_URL")
		}
	}

	var err error
	if v := os.Getenv("BACKUP_S3_PATH_STYLE"); v != "" {
		if c.S3.PathStyle, err = strconv.ParseBool(v); err != nil {
			return c, fmt.Errorf("BACKUP_S3_PATH_STYLE: %w", err)
		}
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if c.TokenTTL, err = time.ParseDuration(v); err != nil {
			return c, fmt.Errorf("TOKEN_TTL: %w", err)
		}
	}
	return c, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c Config) Backend(ctx context.Context, logger *slog.Logger) (kv.Backend, error) {
	return kv.Open(ctx, c.StoreDriver, c.StoreDSN, logger)
}

func (c Config) Backups(ctx context.Context) (blob.Store, error) {
	switch c.BackupDriver {
	case "fs", "":
		fs, err := blob.NewFS(c.BackupDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		s3, err := blob.NewS3(ctx, c.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return nil, fmt.Errorf("unknown backup driver %q", c.BackupDriver)
}

// Publisher is Kafka when brokers are set and a no-op otherwise.
func (c Config) Publisher() (events.Publisher, error) {
	if c.KafkaBrokers == "" {
		return events.Nop(), nil
	}
	k, err := events.NewKafka(c.KafkaBrokers, c.KafkaTopic)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// SeedFile is the YAML layout of SEED_FILE.
type SeedFile struct {
	Settings map[string]any `yaml:"settings"`
}

// LoadSeed overlays the settings in the file at path onto base, key by key.
// A missing file leaves base as is.
func LoadSeed(path string, base store.Seed) (store.Seed, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return base, fmt.Errorf("read seed: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("parse seed: %w", err)
	}

	out := base
	settings := model.Record{}
	for k, v := range base.Settings {
		settings[k] = v
	}
	for k, v := range f.Settings {
		settings[k] = v
	}
	if out.Settings, err = model.Normalize(settings); err != nil {
		return base, fmt.Errorf("seed settings: %w", err)
	}
	return out, nil
}
