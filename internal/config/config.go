package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreREST     = "rest"
)

const (
	BindModeBestEffort = "best_effort"
	BindModeAtomic     = "atomic"
	BindModeLocked     = "locked"
)

type Config struct {
	Server   ServerConfig
	Admin    AdminConfig
	License  LicenseConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	REST     RESTConfig `mapstructure:"rest"`
	Worker   WorkerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
	AllowOrigins   []string      `mapstructure:"allowOrigins"`
}

type AdminConfig struct {
	Secret     string        `mapstructure:"secret"`
	SecretHash string        `mapstructure:"secretHash"`
	JWTSecret  string        `mapstructure:"jwtSecret"`
	TokenTTL   time.Duration `mapstructure:"tokenTTL"`
}

type LicenseConfig struct {
	MaxBatch    int           `mapstructure:"maxBatch"`
	TrialPeriod time.Duration `mapstructure:"trialPeriod"`
	BindMode    string        `mapstructure:"bindMode"`
}

type StoreConfig struct {
	Backend  string        `mapstructure:"backend"`
	FilePath string        `mapstructure:"filePath"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}

// RESTConfig points at a PostgREST-compatible endpoint (for example Supabase).
type RESTConfig struct {
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"apiKey"`
	Table    string `mapstructure:"table"`
	PageSize int    `mapstructure:"pageSize"`
}

type WorkerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Concurrency   int    `mapstructure:"concurrency"`
	StatsInterval string `mapstructure:"statsInterval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.shutdownPeriod", 15*time.Second)
	v.SetDefault("server.allowOrigins", []string{"*"})

	v.SetDefault("admin.secret", "")
	v.SetDefault("admin.secretHash", "")
	v.SetDefault("admin.jwtSecret", "")
	v.SetDefault("admin.tokenTTL", time.Hour)

	v.SetDefault("license.maxBatch", 100)
	v.SetDefault("license.trialPeriod", 72*time.Hour)
	v.SetDefault("license.bindMode", BindModeBestEffort)

	v.SetDefault("store.backend", StoreFile)
	v.SetDefault("store.filePath", "/tmp/licenses.json")
	v.SetDefault("store.timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "license")

	v.SetDefault("rest.url", "")
	v.SetDefault("rest.apiKey", "")
	v.SetDefault("rest.table", "licenses")
	v.SetDefault("rest.pageSize", 500)

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.statsInterval", "@every 5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)

	// Names used by earlier deployments.
	_ = v.BindEnv("admin.secret", "ADMIN_SECRET", "ADMIN_KEY")
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Admin.Secret == "" && c.Admin.SecretHash == "" {
		return fmt.Errorf("admin.secret or admin.secretHash must be set")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile:
		if c.Store.FilePath == "" {
			return fmt.Errorf("store.filePath is required for the file backend")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case StoreREST:
		if c.REST.URL == "" || c.REST.Table == "" {
			return fmt.Errorf("rest.url and rest.table are required for the rest backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.License.BindMode {
	case BindModeBestEffort, BindModeAtomic, BindModeLocked:
	default:
		return fmt.Errorf("unknown license.bindMode %q", c.License.BindMode)
	}

	if c.License.MaxBatch < 1 {
		return fmt.Errorf("license.maxBatch must be positive")
	}
	if c.Worker.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("worker.enabled requires redis.addr")
	}
	return nil
}
