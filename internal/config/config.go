package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	SQL           SQLConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Session       SessionConfig
	Throttle      ThrottleConfig
	Reset         ResetConfig
	Mail          MailConfig
	Events        EventsConfig
	Bootstrap     BootstrapConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// AllowedOrigins is the CORS allow-list for the admin frontend.
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the durable store backend: memory, sql or scylla.
type StorageConfig struct {
	Driver string
	// Throttle selects the transient throttle backend: memory or redis.
	Throttle string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
	// CAPath enables TLS to the cluster when set.
	CAPath string
}

type SQLConfig struct {
	Dialect string // sqlite or mysql
	DSN     string
}

type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	EventsTopic       string
	NotificationTopic string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	// Pepper is plaintext unless KMS is enabled, in which case it is the
	// base64 KMS ciphertext of the pepper.
	Pepper        string
	PepperVersion int
	// PreviousPepper keeps hashes made under the prior version verifiable.
	PreviousPepper string
	// Workers bounds concurrent hash computations; 0 means GOMAXPROCS.
	Workers int
}

type BucketingConfig struct {
	EventBuckets int
}

type SessionConfig struct {
	TTL           time.Duration
	RefreshWindow time.Duration
	MaxLifetime   time.Duration
	CookieName    string
	CookieSecure  bool
	SweepInterval time.Duration
}

type ThrottleConfig struct {
	MaxFailures     int
	LockoutDuration time.Duration
}

type ResetConfig struct {
	TokenTTL        time.Duration
	Cooldown        time.Duration
	ResetURL        string
	DispatchTimeout time.Duration
}

type MailConfig struct {
	Enabled bool
	Host    string
	Port    int
	User    string
	Pass    string
	From    string
}

type EventsConfig struct {
	BufferSize  int
	SinkTimeout time.Duration
}

type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads configuration from the environment, loading a .env file
// first when one is present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", ""),
			Port:           getEnvInt("SERVER_PORT", 8080),
			TLSPort:        getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:      getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:       getEnvBool("SERVER_AUTO_CERT", false),
			Domain:         getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:       getEnv("SERVER_CERT_FILE", ""),
			KeyFile:        getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:    getEnv("SERVER_AUTO_CERT_DIR", "./certs"),
			Email:          getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("SERVER_ALLOWED_ORIGINS", []string{"https://*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Storage: StorageConfig{
			Driver:   getEnv("STORAGE_DRIVER", "memory"),
			Throttle: getEnv("THROTTLE_DRIVER", "memory"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "admin_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			CAPath:   getEnv("SCYLLA_CA_PATH", ""),
		},
		SQL: SQLConfig{
			Dialect: getEnv("SQL_DIALECT", "sqlite"),
			DSN:     getEnv("SQL_DSN", "file:admin_auth.db?_foreign_keys=on"),
		},
		Kafka: KafkaConfig{
			Enabled:           getEnvBool("KAFKA_ENABLED", false),
			Brokers:           getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventsTopic:       getEnv("KAFKA_EVENTS_TOPIC", "admin-security-events"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "admin-notifications"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_INDEX", "admin-security-events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "admin_auth"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			Pepper:            getEnv("PASSWORD_PEPPER", ""),
			PepperVersion:     getEnvInt("PASSWORD_PEPPER_VERSION", 1),
			PreviousPepper:    getEnv("PASSWORD_PREVIOUS_PEPPER", ""),
			Workers:           getEnvInt("HASH_WORKERS", 0),
		},
		Bucketing: BucketingConfig{
			EventBuckets: getEnvInt("EVENT_BUCKETS", 8),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 24*time.Hour),
			RefreshWindow: getEnvDuration("SESSION_REFRESH_WINDOW", 12*time.Hour),
			MaxLifetime:   getEnvDuration("SESSION_MAX_LIFETIME", 7*24*time.Hour),
			CookieName:    getEnv("SESSION_COOKIE_NAME", "admin_session"),
			CookieSecure:  getEnvBool("SESSION_COOKIE_SECURE", true),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		},
		Throttle: ThrottleConfig{
			MaxFailures:     getEnvInt("THROTTLE_MAX_FAILURES", 5),
			LockoutDuration: getEnvDuration("THROTTLE_LOCKOUT_DURATION", 5*time.Minute),
		},
		Reset: ResetConfig{
			TokenTTL:        getEnvDuration("RESET_TOKEN_TTL", time.Hour),
			Cooldown:        getEnvDuration("RESET_COOLDOWN", 2*time.Minute),
			ResetURL:        getEnv("RESET_URL", "http://localhost:3000/admin/reset-password"),
			DispatchTimeout: getEnvDuration("RESET_DISPATCH_TIMEOUT", 10*time.Second),
		},
		Mail: MailConfig{
			Enabled: getEnvBool("MAIL_ENABLED", false),
			Host:    getEnv("MAIL_HOST", ""),
			Port:    getEnvInt("MAIL_PORT", 587),
			User:    getEnv("MAIL_USER", ""),
			Pass:    getEnv("MAIL_PASS", ""),
			From:    getEnv("MAIL_FROM", ""),
		},
		Events: EventsConfig{
			BufferSize:  getEnvInt("EVENTS_BUFFER_SIZE", 1024),
			SinkTimeout: getEnvDuration("EVENTS_SINK_TIMEOUT", 3*time.Second),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg
}

// Get returns the most recently loaded configuration.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sql", "scylla":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	switch c.Storage.Throttle {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown THROTTLE_DRIVER %q", c.Storage.Throttle))
	}
	if c.Storage.Driver == "sql" && c.SQL.Dialect != "sqlite" && c.SQL.Dialect != "mysql" {
		errs = append(errs, fmt.Errorf("unknown SQL_DIALECT %q", c.SQL.Dialect))
	}
	if c.Throttle.MaxFailures < 1 {
		errs = append(errs, errors.New("THROTTLE_MAX_FAILURES must be positive"))
	}
	if c.Session.TTL <= 0 || c.Session.MaxLifetime < c.Session.TTL {
		errs = append(errs, errors.New("SESSION_MAX_LIFETIME must be at least SESSION_TTL"))
	}
	if c.IsProduction() && c.Hashing.Pepper == "" {
		errs = append(errs, errors.New("PASSWORD_PEPPER is required in production"))
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		errs = append(errs, errors.New("KMS_KEY_ID is required when KMS is enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
