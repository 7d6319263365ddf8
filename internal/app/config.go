package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/service/pricing"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/reservation"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Брокеры для outbox.
const (
	BrokerLog   = "log"
	BrokerKafka = "kafka"
	BrokerAMQP  = "amqp"
)

// Режимы снятия просроченных удержаний.
const (
	// HoldExpiryLazy: просроченное удержание просто перестаёт блокировать даты.
	HoldExpiryLazy = "lazy"
	// HoldExpiryEager: фоновый воркер переводит такие брони в cancelled.
	HoldExpiryEager = "eager"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string
	LogLevel    string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	JWTSecret string
	JWTIssuer string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxOpen     int
	PostgresMaxIdle     int
	PostgresConnMaxLife time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	Broker        string
	KafkaBrokers  []string
	KafkaClientID string
	KafkaTopic    string
	AMQPURL       string
	AMQPExchange  string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	HoldTTL            time.Duration
	HoldExpiryMode     string
	ReaperInterval     time.Duration
	PaymentReuseWindow time.Duration
	DiscountPolicy     pricing.IneligiblePolicy
	NotifierBuffer     int
	Timezone           string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxOpen:     20,
		PostgresMaxIdle:     10,
		PostgresConnMaxLife: 30 * time.Minute,

		LockTTL: 30 * time.Second,

		Broker:        BrokerLog,
		KafkaClientID: "hotel-service",
		KafkaTopic:    "hotel.reservation.events",
		AMQPExchange:  "hotel.events",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		HoldTTL:            reservation.DefaultHoldTTL,
		HoldExpiryMode:     HoldExpiryLazy,
		ReaperInterval:     time.Minute,
		PaymentReuseWindow: 5 * time.Minute,
		DiscountPolicy:     pricing.IneligibleIgnore,
		NotifierBuffer:     256,
		Timezone:           "UTC",
	}
}

// LoadConfig читает .env-файлы (если есть) и переменные HOTEL_*.
// Переменные окружения процесса имеют приоритет над файлами.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	cfg, err := ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ConfigFromEnv накладывает значения из lookup на DefaultConfig.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{lookup: lookup}

	env.str("HOTEL_HTTP_ADDR", &cfg.HTTPAddr)
	env.str("HOTEL_GRPC_ADDR", &cfg.GRPCAddr)
	env.str("HOTEL_METRICS_ADDR", &cfg.MetricsAddr)
	env.str("HOTEL_LOG_LEVEL", &cfg.LogLevel)
	env.duration("HOTEL_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	env.duration("HOTEL_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	env.str("HOTEL_JWT_SECRET", &cfg.JWTSecret)
	env.str("HOTEL_JWT_ISSUER", &cfg.JWTIssuer)

	env.str("HOTEL_STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("HOTEL_POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("HOTEL_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	env.integer("HOTEL_POSTGRES_MAX_OPEN_CONNS", &cfg.PostgresMaxOpen)
	env.integer("HOTEL_POSTGRES_MAX_IDLE_CONNS", &cfg.PostgresMaxIdle)
	env.duration("HOTEL_POSTGRES_CONN_MAX_LIFETIME", &cfg.PostgresConnMaxLife)

	env.str("HOTEL_REDIS_ADDR", &cfg.RedisAddr)
	env.str("HOTEL_REDIS_PASSWORD", &cfg.RedisPassword)
	env.integer("HOTEL_REDIS_DB", &cfg.RedisDB)
	env.duration("HOTEL_LOCK_TTL", &cfg.LockTTL)

	env.str("HOTEL_BROKER", &cfg.Broker)
	env.list("HOTEL_KAFKA_BROKERS", &cfg.KafkaBrokers)
	env.str("HOTEL_KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	env.str("HOTEL_KAFKA_TOPIC", &cfg.KafkaTopic)
	env.str("HOTEL_AMQP_URL", &cfg.AMQPURL)
	env.str("HOTEL_AMQP_EXCHANGE", &cfg.AMQPExchange)

	env.duration("HOTEL_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("HOTEL_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("HOTEL_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("HOTEL_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	env.integer("HOTEL_OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)

	env.duration("HOTEL_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	env.duration("HOTEL_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("HOTEL_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	env.duration("HOTEL_HOLD_TTL", &cfg.HoldTTL)
	env.str("HOTEL_HOLD_EXPIRY_MODE", &cfg.HoldExpiryMode)
	env.str("HOTEL_TIMEZONE", &cfg.Timezone)
	env.duration("HOTEL_REAPER_INTERVAL", &cfg.ReaperInterval)
	env.duration("HOTEL_PAYMENT_REUSE_WINDOW", &cfg.PaymentReuseWindow)
	var policy string
	if env.str("HOTEL_DISCOUNT_POLICY", &policy) {
		cfg.DiscountPolicy = pricing.IneligiblePolicy(strings.ToLower(policy))
	}
	env.integer("HOTEL_NOTIFIER_BUFFER", &cfg.NotifierBuffer)

	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.Broker = strings.ToLower(cfg.Broker)
	cfg.HoldExpiryMode = strings.ToLower(cfg.HoldExpiryMode)

	return cfg, errors.Join(env.errs...)
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("HOTEL_JWT_SECRET is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("HOTEL_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	switch c.Broker {
	case BrokerLog:
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("HOTEL_KAFKA_BROKERS is required for kafka broker"))
		}
	case BrokerAMQP:
		if strings.TrimSpace(c.AMQPURL) == "" {
			errs = append(errs, errors.New("HOTEL_AMQP_URL is required for amqp broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown broker %q", c.Broker))
	}

	if c.HoldExpiryMode != HoldExpiryLazy && c.HoldExpiryMode != HoldExpiryEager {
		errs = append(errs, fmt.Errorf("unknown hold expiry mode %q", c.HoldExpiryMode))
	}
	if !c.DiscountPolicy.Valid() {
		errs = append(errs, fmt.Errorf("unknown discount policy %q", c.DiscountPolicy))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("HOTEL_TIMEZONE: %w", err))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	positive := map[string]time.Duration{
		"HOTEL_HOLD_TTL":                     c.HoldTTL,
		"HOTEL_OUTBOX_POLL_INTERVAL":         c.OutboxPollInterval,
		"HOTEL_IDEMPOTENCY_TTL":              c.IdempotencyTTL,
		"HOTEL_IDEMPOTENCY_CLEANUP_INTERVAL": c.IdempotencyCleanupInterval,
		"HOTEL_REAPER_INTERVAL":              c.ReaperInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox batch size and max attempts must be positive"))
	}
	return errors.Join(errs...)
}

// Location возвращает часовой пояс отеля, в котором считаются даты заезда и ночи.
// Некорректное имя (до Validate) даёт UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// envReader собирает ошибки разбора, чтобы сообщить обо всех сразу.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) bool {
	v, ok := e.raw(key)
	if ok {
		*dst = v
	}
	return ok
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
