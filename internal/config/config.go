// Package config loads daemon settings from PROV_* environment variables and
// the entity schema registry from a TOML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/provenance/internal/model"
)

type Config struct {
	DatabaseURL string // PROV_DATABASE_URL (required)
	HTTPAddr    string // PROV_HTTP_ADDR (default ":8080")
	NATSURL     string // PROV_NATS_URL (optional, empty = no events)
	AuthToken   string // PROV_AUTH_TOKEN (optional, empty = auth disabled)
	SchemaFile  string // PROV_SCHEMA_FILE (required; entity schema registry)

	// Ledger settings
	SnapshotEvery    int           // PROV_SNAPSHOT_EVERY (default 50)
	SnapshotInterval time.Duration // PROV_SNAPSHOT_INTERVAL (default 24h)
	LockTimeout      time.Duration // PROV_LOCK_TIMEOUT (default 5s)

	// Sweep settings
	SweepInterval time.Duration // PROV_SWEEP_INTERVAL (default 1h; 0 = disabled)

	// Archive settings
	ArchiveInterval   time.Duration // PROV_ARCHIVE_INTERVAL (default 15m; 0 = disabled)
	ArchiveS3Bucket   string        // PROV_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // PROV_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // PROV_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // PROV_ARCHIVE_S3_KEY (default "provenance/ledger.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("PROV_DATABASE_URL"),
		HTTPAddr:          envOrDefault("PROV_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("PROV_NATS_URL"),
		AuthToken:         os.Getenv("PROV_AUTH_TOKEN"),
		SchemaFile:        os.Getenv("PROV_SCHEMA_FILE"),
		ArchiveS3Bucket:   os.Getenv("PROV_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("PROV_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("PROV_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("PROV_ARCHIVE_S3_KEY", "provenance/ledger.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PROV_DATABASE_URL is required")
	}
	if c.SchemaFile == "" {
		return nil, fmt.Errorf("PROV_SCHEMA_FILE is required")
	}

	every := envOrDefault("PROV_SNAPSHOT_EVERY", "50")
	n, err := strconv.Atoi(every)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("PROV_SNAPSHOT_EVERY: invalid count %q", every)
	}
	c.SnapshotEvery = n

	for _, d := range []struct {
		key      string
		fallback string
		dest     *time.Duration
	}{
		{"PROV_SNAPSHOT_INTERVAL", "24h", &c.SnapshotInterval},
		{"PROV_LOCK_TIMEOUT", "5s", &c.LockTimeout},
		{"PROV_SWEEP_INTERVAL", "1h", &c.SweepInterval},
		{"PROV_ARCHIVE_INTERVAL", "15m", &c.ArchiveInterval},
	} {
		v := envOrDefault(d.key, d.fallback)
		dur, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dest = dur
	}

	return c, nil
}

// schemaFile is the TOML shape of the entity schema registry:
//
//	[entities]
//	company = ["active", "amount", "name"]
//	contact = ["email", "name"]
type schemaFile struct {
	Entities map[string][]string `toml:"entities"`
}

// LoadSchemas reads the entity schema registry from a TOML file. Field lists
// define the fixed digest ordering per entity kind.
func LoadSchemas(path string) (model.SchemaSet, error) {
	var sf schemaFile
	if _, err := toml.DecodeFile(path, &sf); err != nil {
		return nil, fmt.Errorf("load schema file %s: %w", path, err)
	}
	if len(sf.Entities) == 0 {
		return nil, fmt.Errorf("schema file %s declares no entities", path)
	}

	set := make(model.SchemaSet, len(sf.Entities))
	for entity, fields := range sf.Entities {
		if len(fields) == 0 {
			return nil, fmt.Errorf("entity %q declares no fields", entity)
		}
		set[entity] = model.Schema{Fields: fields}
	}
	return set, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
