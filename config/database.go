package config

import (
	"strings"
	"time"
)

// StoreDriver selects the job repository implementation.
type StoreDriver string

const (
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverMongo    StoreDriver = "mongo"
)

// StoreConfig selects where job aggregates live.
type StoreConfig struct {
	Driver StoreDriver `env:"STORE_DRIVER" envDefault:"postgres"`
}

// Sanitize normalises the driver name, falling back to postgres for unknown values.
func (c *StoreConfig) Sanitize() {
	c.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(string(c.Driver))))
	switch c.Driver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMongo:
	default:
		c.Driver = StoreDriverPostgres
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"itinerary"`
	Password string `env:"PASSWORD"                envDefault:"itinerary"`
	Name     string `env:"NAME"                    envDefault:"itinerary"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// SQLiteConfig contains the embedded job store configuration.
type SQLiteConfig struct {
	Path string `env:"PATH" envDefault:"itinerary.db"`
}

// Sanitize trims the path and restores the default when empty.
func (c *SQLiteConfig) Sanitize() {
	if c.Path = strings.TrimSpace(c.Path); c.Path == "" {
		c.Path = "itinerary.db"
	}
}

// MongoConfig contains MongoDB job store configuration.
type MongoConfig struct {
	URI            string        `env:"URI"             envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"DATABASE"        envDefault:"itinerary"`
	Collection     string        `env:"COLLECTION"      envDefault:"jobs"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// Sanitize restores defaults for blank names and non-positive timeouts.
func (c *MongoConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	if c.Database = strings.TrimSpace(c.Database); c.Database == "" {
		c.Database = "itinerary"
	}
	if c.Collection = strings.TrimSpace(c.Collection); c.Collection == "" {
		c.Collection = "jobs"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// RedisConfig contains Redis configuration for the job status mirror.
type RedisConfig struct {
	// Enabled turns the status mirror on. When false no Redis connection is made.
	Enabled            bool     `env:"ENABLED"              envDefault:"true"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	KeyPrefix          string   `env:"KEY_PREFIX"           envDefault:"itinerary:job_status:"`
}
