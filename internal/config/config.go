// Package config loads per-service settings from the environment and an optional YAML
// file named by GEONAP_CONFIG. Service-prefixed keys win over shared ones, so
// PLANNER_DATABASE_URL overrides DATABASE_URL for the planner only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileEnv names the YAML file consulted after the environment.
const FileEnv = "GEONAP_CONFIG"

const (
	defaultLogLevel           = "info"
	defaultExchange           = "geo_nap.events"
	defaultPricingTimeout     = 10 * time.Second
	defaultPricingRetries     = 1
	defaultPricingCacheTTL    = 300 * time.Second
	defaultAvailabilityWindow = 50
	defaultResultLimit        = 5
	maxResultLimit            = 20
	defaultWatchInterval      = time.Second
)

type Kafka struct {
	Brokers  []string `yaml:"brokers"`
	Exchange string   `yaml:"exchange"`
}

type Outbox struct {
	BatchSize      int           `yaml:"batchSize"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	MaxConcurrency int           `yaml:"maxConcurrency"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	Lease          time.Duration `yaml:"lease"`
}

type Pricing struct {
	BaseURL  string        `yaml:"baseUrl"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

type Archive struct {
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Enabled reports whether recommendation bundles should be archived.
func (a Archive) Enabled() bool { return a.Bucket != "" }

type Planner struct {
	Addr          string        `yaml:"addr"`
	DatabaseURL   string        `yaml:"databaseUrl"`
	LogLevel      string        `yaml:"logLevel"`
	Kafka         Kafka         `yaml:"kafka"`
	Outbox        Outbox        `yaml:"outbox"`
	WatchInterval time.Duration `yaml:"watchInterval"`
}

type Intelligence struct {
	Addr               string  `yaml:"addr"`
	DatabaseURL        string  `yaml:"databaseUrl"`
	LogLevel           string  `yaml:"logLevel"`
	Kafka              Kafka   `yaml:"kafka"`
	Outbox             Outbox  `yaml:"outbox"`
	Pricing            Pricing `yaml:"pricing"`
	AvailabilityWindow int     `yaml:"availabilityWindow"`
}

type Simulation struct {
	Addr     string  `yaml:"addr"`
	LogLevel string  `yaml:"logLevel"`
	Kafka    Kafka   `yaml:"kafka"`
	Pricing  Pricing `yaml:"pricing"`
}

type Recommendation struct {
	Addr               string  `yaml:"addr"`
	DatabaseURL        string  `yaml:"databaseUrl"`
	LogLevel           string  `yaml:"logLevel"`
	Kafka              Kafka   `yaml:"kafka"`
	DefaultResultLimit int     `yaml:"defaultResultLimit"`
	Archive            Archive `yaml:"archive"`
}

type Decision struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"logLevel"`
}

func LoadPlanner() (Planner, error) {
	l, err := newLoader("PLANNER")
	if err != nil {
		return Planner{}, err
	}
	cfg := Planner{
		Addr:          l.addr(8081),
		DatabaseURL:   l.required("DATABASE_URL"),
		LogLevel:      l.str("LOG_LEVEL", defaultLogLevel),
		Kafka:         l.kafka(),
		Outbox:        l.outbox(),
		WatchInterval: l.duration("WATCH_INTERVAL", defaultWatchInterval),
	}
	return cfg, l.err()
}

func LoadIntelligence() (Intelligence, error) {
	l, err := newLoader("INTELLIGENCE")
	if err != nil {
		return Intelligence{}, err
	}
	cfg := Intelligence{
		Addr:               l.addr(8085),
		DatabaseURL:        l.required("DATABASE_URL"),
		LogLevel:           l.str("LOG_LEVEL", defaultLogLevel),
		Kafka:              l.kafka(),
		Outbox:             l.outbox(),
		Pricing:            l.pricing(),
		AvailabilityWindow: l.positive("AVAILABILITY_WINDOW", defaultAvailabilityWindow),
	}
	return cfg, l.err()
}

func LoadSimulation() (Simulation, error) {
	l, err := newLoader("SIMULATION")
	if err != nil {
		return Simulation{}, err
	}
	cfg := Simulation{
		Addr:     l.addr(8083),
		LogLevel: l.str("LOG_LEVEL", defaultLogLevel),
		Kafka:    l.kafka(),
		Pricing:  l.pricing(),
	}
	return cfg, l.err()
}

func LoadRecommendation() (Recommendation, error) {
	l, err := newLoader("RECOMMENDATION")
	if err != nil {
		return Recommendation{}, err
	}
	cfg := Recommendation{
		Addr:               l.addr(8084),
		DatabaseURL:        l.required("DATABASE_URL"),
		LogLevel:           l.str("LOG_LEVEL", defaultLogLevel),
		Kafka:              l.kafka(),
		DefaultResultLimit: l.positive("DEFAULT_RESULT_LIMIT", defaultResultLimit),
		Archive: Archive{
			Bucket:   l.str("ARCHIVE_BUCKET", ""),
			Prefix:   l.str("ARCHIVE_PREFIX", ""),
			Region:   l.str("AWS_REGION", ""),
			Endpoint: l.str("S3_ENDPOINT", ""),
		},
	}
	if cfg.DefaultResultLimit > maxResultLimit {
		l.fail("DEFAULT_RESULT_LIMIT must be between 1 and %d", maxResultLimit)
	}
	return cfg, l.err()
}

func LoadDecision() (Decision, error) {
	l, err := newLoader("DECISION")
	if err != nil {
		return Decision{}, err
	}
	cfg := Decision{
		Addr:     l.addr(4060),
		LogLevel: l.str("LOG_LEVEL", defaultLogLevel),
	}
	return cfg, l.err()
}

// loader resolves keys against prefix_KEY then KEY and collects every problem it sees.
type loader struct {
	v      *viper.Viper
	prefix string
	errs   []string
}

func newLoader(prefix string) (*loader, error) {
	v := viper.New()
	v.AutomaticEnv()
	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}
	return &loader{v: v, prefix: prefix}, nil
}

func (l *loader) lookup(key string) (string, string) {
	for _, k := range []string{l.prefix + "_" + key, key} {
		if val := strings.TrimSpace(l.v.GetString(k)); val != "" {
			return k, val
		}
	}
	return "", ""
}

func (l *loader) fail(format string, args ...interface{}) {
	l.errs = append(l.errs, fmt.Sprintf(format, args...))
}

func (l *loader) err() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(l.errs, "; "))
}

func (l *loader) str(key, fallback string) string {
	if _, val := l.lookup(key); val != "" {
		return val
	}
	return fallback
}

func (l *loader) required(key string) string {
	_, val := l.lookup(key)
	if val == "" {
		l.fail("%s or %s_%s is required", key, l.prefix, key)
	}
	return val
}

func (l *loader) integer(key string, fallback int) int {
	k, val := l.lookup(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		l.fail("%s must be an integer, got %q", k, val)
		return fallback
	}
	return n
}

func (l *loader) positive(key string, fallback int) int {
	n := l.integer(key, fallback)
	if n < 1 {
		l.fail("%s must be at least 1", key)
		return fallback
	}
	return n
}

// duration accepts Go duration strings ("1.5s") or whole seconds ("10").
func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	k, val := l.lookup(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.fail("%s must be a duration, got %q", k, val)
		return fallback
	}
	return d
}

func (l *loader) addr(defaultPort int) string {
	if _, val := l.lookup("ADDR"); val != "" {
		return val
	}
	return ":" + strconv.Itoa(l.integer("PORT", defaultPort))
}

func (l *loader) kafka() Kafka {
	var brokers []string
	for _, b := range strings.Split(l.required("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return Kafka{Brokers: brokers, Exchange: l.str("EVENT_EXCHANGE", defaultExchange)}
}

func (l *loader) outbox() Outbox {
	return Outbox{
		BatchSize:      l.positive("OUTBOX_BATCH_SIZE", 100),
		PollInterval:   l.duration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		MaxConcurrency: l.positive("OUTBOX_MAX_CONCURRENCY", 8),
		MaxAttempts:    l.positive("OUTBOX_MAX_ATTEMPTS", 10),
		Lease:          l.duration("OUTBOX_LEASE", 30*time.Second),
	}
}

func (l *loader) pricing() Pricing {
	retries := l.integer("PRICING_RETRIES", defaultPricingRetries)
	if retries < 0 {
		l.fail("PRICING_RETRIES must not be negative")
	}
	return Pricing{
		BaseURL:  l.required("PRICING_SERVICE_URL"),
		Timeout:  l.duration("PRICING_TIMEOUT", defaultPricingTimeout),
		Retries:  retries,
		CacheTTL: l.duration("PRICING_CACHE_TTL", defaultPricingCacheTTL),
	}
}
