package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/client"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/notify"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/repository/memory"
	redisrepo "admin-auth-service/internal/repository/redis"
	"admin-auth-service/internal/repository/scylla"
	sqlrepo "admin-auth-service/internal/repository/sql"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/sweeper"
	"admin-auth-service/internal/throttle"
	"admin-auth-service/internal/tls"
	"admin-auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	clock      clock.Clock
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	store          repository.Store
	throttle       *throttle.Throttle
	cooldown       throttle.Cooldown
	memoryThrottle *throttle.MemoryStore
	dispatcher     *events.Dispatcher
	notifier       notify.Notifier
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		clock:  clock.New(),
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := factory.initializeClients(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeManagers(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	if err := factory.initializeStore(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	factory.initializeThrottle()
	factory.initializeEvents()
	factory.initializeNotifier()

	factory.serviceFactory = service.NewServiceFactory(
		cfg,
		factory.store,
		factory.hasher,
		factory.throttle,
		factory.cooldown,
		factory.notifier,
		factory.dispatcher,
		factory.clock,
		util.Get(),
	)

	if err := factory.bootstrapAdmin(ctx); err != nil {
		factory.Close()
		return nil, err
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("storage_driver", cfg.Storage.Driver),
		util.String("throttle_driver", cfg.Storage.Throttle),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients connects the external services the configuration
// selects. Event sinks are optional and only warn outside production.
func (f *Factory) initializeClients(ctx context.Context) error {
	var initErrors []error

	// Redis backs the throttle and reset cooldown
	if f.config.Storage.Throttle == "redis" {
		redisClient, err := client.NewRedisClient(f.config, util.Get())
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = redisClient
		util.Info("Redis client initialized")
	}

	// ScyllaDB
	if f.config.Storage.Driver == "scylla" {
		scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("scylla schema: %w", err)
		}
		util.Info("ScyllaDB client initialized and schema applied")
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(ctx, f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers resolves the peppers (through KMS when enabled) and
// builds the hasher and bucketing managers.
func (f *Factory) initializeManagers(ctx context.Context) error {
	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		c, err := encryption.NewKMSClient(ctx, f.config)
		if err != nil {
			return fmt.Errorf("kms: %w", err)
		}
		kmsClient = c
	}
	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient)

	pepper, err := f.encryptionManager.ResolveSecret(ctx, f.config.Hashing.Pepper)
	if err != nil {
		return fmt.Errorf("failed to resolve password pepper: %w", err)
	}
	current := hashing.Pepper{Value: pepper, Version: f.config.Hashing.PepperVersion}

	var previous []hashing.Pepper
	if f.config.Hashing.PreviousPepper != "" {
		prev, err := f.encryptionManager.ResolveSecret(ctx, f.config.Hashing.PreviousPepper)
		if err != nil {
			return fmt.Errorf("failed to resolve previous pepper: %w", err)
		}
		previous = append(previous, hashing.Pepper{Value: prev, Version: f.config.Hashing.PepperVersion - 1})
	}

	f.hasher, err = hashing.NewHasher(f.config, current, previous...)
	if err != nil {
		return err
	}
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	util.Info("Managers initialized successfully",
		util.Int("pepper_version", current.Version),
		util.Bool("previous_pepper", len(previous) > 0),
		util.Int("event_buckets", f.bucketingManager.GetEventBuckets()),
	)
	return nil
}

func (f *Factory) initializeStore(ctx context.Context) error {
	switch f.config.Storage.Driver {
	case "scylla":
		f.store = scylla.NewStore(f.scyllaClient, f.bucketingManager)
	case "sql":
		store, err := sqlrepo.Open(f.config)
		if err != nil {
			return err
		}
		f.store = store
	default:
		if f.config.IsProduction() {
			util.Warn("Using in-memory store in production; state is lost on restart")
		}
		f.store = memory.NewStore()
	}
	return f.store.HealthCheck(ctx)
}

func (f *Factory) initializeThrottle() {
	if f.redisClient != nil {
		f.throttle = throttle.New(redisrepo.NewThrottleCache(f.redisClient), f.config, f.clock)
		f.cooldown = redisrepo.NewCooldownCache(f.redisClient)
		return
	}
	f.memoryThrottle = throttle.NewMemoryStore()
	f.throttle = throttle.New(f.memoryThrottle, f.config, f.clock)
	f.cooldown = throttle.NewMemoryCooldown(f.clock)
}

func (f *Factory) initializeEvents() {
	sinks := []events.Sink{events.NewLogSink()}
	if f.kafkaProducer != nil {
		sinks = append(sinks, events.NewKafkaSink(f.kafkaProducer, f.config.Kafka.EventsTopic))
	}
	if f.esClient != nil {
		sinks = append(sinks, events.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.Index))
	}
	if f.clickhouseClient != nil {
		sinks = append(sinks, events.NewClickHouseSink(f.clickhouseClient))
	}
	f.dispatcher = events.NewDispatcher(f.config.Events.BufferSize, f.config.Events.SinkTimeout, sinks...)
}

func (f *Factory) initializeNotifier() {
	switch {
	case f.config.Mail.Enabled:
		f.notifier = notify.NewSMTPNotifier(f.config.Mail)
	case f.kafkaProducer != nil:
		f.notifier = notify.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.NotificationTopic)
	default:
		if f.config.IsProduction() {
			util.Warn("No mail transport configured; reset links are only logged")
		}
		f.notifier = notify.LogNotifier{}
	}
}

// bootstrapAdmin seeds the first admin when the store has no accounts.
func (f *Factory) bootstrapAdmin(ctx context.Context) error {
	email, password := f.config.Bootstrap.AdminEmail, f.config.Bootstrap.AdminPassword
	if email == "" || password == "" {
		return nil
	}
	created, err := f.serviceFactory.AccountService().Bootstrap(ctx, email, password)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	if created {
		util.Info("Bootstrap admin created", util.String("email", util.NormalizeEmail(email)))
	}
	return nil
}

// Sweeper returns the periodic cleanup job for the configured store.
func (f *Factory) Sweeper() *sweeper.Sweeper {
	var th sweeper.ThrottleSweeper
	if f.memoryThrottle != nil {
		th = f.memoryThrottle
	}
	return sweeper.New(f.store, th, f.config.Session.SweepInterval, f.clock)
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.store != nil {
		if err := f.store.HealthCheck(ctx); err != nil {
			healthErrors["store"] = err
		}
	} else {
		healthErrors["store"] = fmt.Errorf("store not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}

	return healthErrors
}

// Ping reports the dependencies requests cannot be served without: the
// store and, when selected, Redis. Event sinks are best effort.
func (f *Factory) Ping(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")

	var errs []error
	for name, err := range healthErrors {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return f.Ping(ctx) == nil
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.dispatcher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.dispatcher.Close(ctx); err != nil {
				util.Error("Failed to drain security events", util.ErrorField(err))
			} else {
				util.Info("Security event dispatcher drained",
					util.Int("dropped", int(f.dispatcher.Dropped())))
			}
			cancel()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.store != nil {
			if err := f.store.Close(); err != nil {
				util.Error("Failed to close store", util.ErrorField(err))
			} else {
				util.Info("Store closed")
			}
		} else if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) Store() repository.Store {
	return f.store
}
