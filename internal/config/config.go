package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Table store backends accepted by TABLE_STORE.
const (
	StorePostgREST = "postgrest"
	StorePostgres  = "postgres"
	StoreKafka     = "kafka"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	HTTPAddr        string
	BatchPolicy     string

	// Warehouse (BigQuery) settings.
	GCPProject    string
	BQEventsTable string
	BQPairsTable  string
	BQLocation    string
	MaxYear       int

	// Local file layout.
	QueryResultsDir string
	OutputDir       string
	SampleDataDir   string

	// Geocoding settings.
	GeocodeAPIKey              string
	GeocodeBaseURL             string
	GeocodeCountry             string
	GeocodeCacheFile           string
	GeocodeRequestDelay        time.Duration
	GeocodeRateLimitPause      time.Duration
	GeocodeMaxRateLimitRetries int
	GeocodeCheckpointInterval  int
	GeocodeErrorMode           string
	GeocodeTimeout             time.Duration
	InputEncoding              string

	// Table store settings.
	TableStore      string
	SupabaseURL     string
	SupabaseKey     string
	DatabaseURL     string
	KafkaBrokers    []string
	UploadBatchSize int
	UploadTable     string
	StoreTimeout    time.Duration

	// Archive and metrics push.
	S3Bucket       string
	S3Prefix       string
	AWSRegion      string
	PushgatewayURL string

	// Scheduled sync and read API.
	SyncSchedule string
	SyncTable    string
	SyncTimeout  time.Duration
	DailyTable   string
	CORSOrigins  []string
	APIRateLimit int
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		BatchPolicy:     sharedcfg.EnvOrDefault("BATCH_POLICY", "continue"),

		GCPProject:    os.Getenv("GCP_PROJECT"),
		BQEventsTable: sharedcfg.EnvOrDefault("BQ_EVENTS_TABLE", "gdelt-bq.full.events"),
		BQPairsTable:  sharedcfg.EnvOrDefault("BQ_PAIRS_TABLE", "218_Countries.Pairs"),
		BQLocation:    sharedcfg.EnvOrDefault("BQ_LOCATION", "US"),

		QueryResultsDir: sharedcfg.EnvOrDefault("QUERY_RESULTS_DIR", "./query-results"),
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "./output"),
		SampleDataDir:   sharedcfg.EnvOrDefault("SAMPLE_DATA_DIR", "./sample-data"),

		GeocodeAPIKey:    os.Getenv("GOOGLE_GEOCODING_API_KEY"),
		GeocodeBaseURL:   sharedcfg.EnvOrDefault("GEOCODE_BASE_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		GeocodeCountry:   sharedcfg.EnvOrDefault("GEOCODE_COUNTRY", "BR"),
		GeocodeCacheFile: sharedcfg.EnvOrDefault("GEOCODE_CACHE_FILE", "geocode_cache.csv"),
		GeocodeErrorMode: sharedcfg.EnvOrDefault("GEOCODE_ERROR_MODE", "fail-fast"),
		InputEncoding:    sharedcfg.EnvOrDefault("INPUT_ENCODING", "ISO-8859-1"),

		TableStore:   strings.ToLower(sharedcfg.EnvOrDefault("TABLE_STORE", StorePostgREST)),
		SupabaseURL:  os.Getenv("SUPABASE_URL"),
		SupabaseKey:  os.Getenv("SUPABASE_KEY"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		UploadTable:  sharedcfg.EnvOrDefault("UPLOAD_TABLE", "gdelt_monthly"),

		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Prefix:       sharedcfg.EnvOrDefault("S3_PREFIX", "merged/"),
		AWSRegion:      sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		SyncSchedule: sharedcfg.EnvOrDefault("SYNC_SCHEDULE", "0 0 * * *"),
		SyncTable:    sharedcfg.EnvOrDefault("SYNC_TABLE", "gdelt_monthly"),
		DailyTable:   sharedcfg.EnvOrDefault("DAILY_TABLE", "gdelt_daily"),
		CORSOrigins:  sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"GEOCODE_REQUEST_DELAY", "10ms", &cfg.GeocodeRequestDelay},
		{"GEOCODE_RATE_LIMIT_PAUSE", "5s", &cfg.GeocodeRateLimitPause},
		{"GEOCODE_TIMEOUT", "10s", &cfg.GeocodeTimeout},
		{"STORE_TIMEOUT", "2m", &cfg.StoreTimeout},
		{"SYNC_TIMEOUT", "30m", &cfg.SyncTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"MAX_YEAR", 2025, &cfg.MaxYear},
		{"GEOCODE_MAX_RATE_LIMIT_RETRIES", 5, &cfg.GeocodeMaxRateLimitRetries},
		{"GEOCODE_CHECKPOINT_INTERVAL", 1000, &cfg.GeocodeCheckpointInterval},
		{"UPLOAD_BATCH_SIZE", 200000, &cfg.UploadBatchSize},
		{"API_RATE_LIMIT", 100, &cfg.APIRateLimit},
	}
	for _, i := range ints {
		n, err := parsePositiveInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		*i.dst = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.BatchPolicy {
	case "continue", "fail-fast":
	default:
		return fmt.Errorf("invalid BATCH_POLICY %q (want continue or fail-fast)", c.BatchPolicy)
	}
	switch c.GeocodeErrorMode {
	case "fail-fast", "skip":
	default:
		return fmt.Errorf("invalid GEOCODE_ERROR_MODE %q (want fail-fast or skip)", c.GeocodeErrorMode)
	}
	switch c.TableStore {
	case StorePostgREST, StorePostgres, StoreKafka:
	default:
		return fmt.Errorf("invalid TABLE_STORE %q (want postgrest, postgres or kafka)", c.TableStore)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (want json or text)", c.LogFormat)
	}
	if c.MaxYear < 1995 {
		return errors.New("MAX_YEAR must be 1995 or later")
	}
	if c.GeocodeCountry == "" {
		return errors.New("GEOCODE_COUNTRY is required")
	}
	if c.UploadTable == "" {
		return errors.New("UPLOAD_TABLE is required")
	}
	return nil
}

// ValidateGeocoding checks the settings the geocode command needs.
func (c *Config) ValidateGeocoding() error {
	if c.GeocodeAPIKey == "" {
		return errors.New("GOOGLE_GEOCODING_API_KEY is required")
	}
	return nil
}

// ValidateWarehouse checks the settings needed to query BigQuery.
func (c *Config) ValidateWarehouse() error {
	if c.GCPProject == "" {
		return errors.New("GCP_PROJECT is required")
	}
	return nil
}

// ValidateTableStore checks the settings of the selected TABLE_STORE backend.
func (c *Config) ValidateTableStore() error {
	switch c.TableStore {
	case StorePostgREST:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_KEY are required when TABLE_STORE=postgrest")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when TABLE_STORE=postgres")
		}
	case StoreKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when TABLE_STORE=kafka")
		}
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
