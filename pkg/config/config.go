// Package config loads recordsync settings from an optional YAML file,
// RECORDSYNC_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fieldpay/recordsync/pkg/hydration"
	"github.com/fieldpay/recordsync/pkg/logging"
	"github.com/fieldpay/recordsync/pkg/remote"
)

const (
	envPrefix         = "recordsync"
	defaultConfigName = "recordsync"
)

type Config struct {
	AccountID         string        `mapstructure:"account-id"`
	BaseURL           string        `mapstructure:"base-url"`
	AccessToken       string        `mapstructure:"access-token"`
	EntityType        string        `mapstructure:"entity-type"`
	Filter            string        `mapstructure:"filter"`
	PageSize          int           `mapstructure:"page-size"`
	MaxConcurrent     int           `mapstructure:"max-concurrent"`
	MaxRetries        int           `mapstructure:"max-retries"`
	BaseDelay         time.Duration `mapstructure:"base-delay"`
	InterBatchDelay   time.Duration `mapstructure:"inter-batch-delay"`
	RequestTimeout    time.Duration `mapstructure:"request-timeout"`
	RequestsPerSecond int           `mapstructure:"requests-per-second"`
	AdaptiveBackoff   bool          `mapstructure:"adaptive-backoff"`
	DebugPrintBody    bool          `mapstructure:"debug-print-body"`
	LogLevel          string        `mapstructure:"log-level"`
	LogFormat         string        `mapstructure:"log-format"`
	LogOutputs        []string      `mapstructure:"log-outputs"`
}

func Defaults() Config {
	return Config{
		EntityType:      "customer",
		PageSize:        50,
		MaxConcurrent:   hydration.DefaultMaxConcurrent,
		MaxRetries:      hydration.DefaultMaxRetries,
		BaseDelay:       hydration.DefaultBaseDelay,
		InterBatchDelay: hydration.DefaultInterBatchDelay,
		RequestTimeout:  30 * time.Second,
		LogLevel:        "info",
		LogFormat:       logging.LogFormatJSON,
		LogOutputs:      []string{"stderr"},
	}
}

// RegisterFlags adds every setting to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("account-id", d.AccountID, "Account id used to derive the REST host ($RECORDSYNC_ACCOUNT_ID)")
	fs.String("base-url", d.BaseURL, "Override the REST base URL ($RECORDSYNC_BASE_URL)")
	fs.String("access-token", d.AccessToken, "OAuth2 bearer token ($RECORDSYNC_ACCESS_TOKEN)")
	fs.String("entity-type", d.EntityType, "Record type to sync: customer, invoice or salesOrder ($RECORDSYNC_ENTITY_TYPE)")
	fs.String("filter", d.Filter, "Optional list filter passed as the q parameter ($RECORDSYNC_FILTER)")
	fs.Int("page-size", d.PageSize, "Rows per list page ($RECORDSYNC_PAGE_SIZE)")
	fs.Int("max-concurrent", d.MaxConcurrent, "Detail fetches in flight at once ($RECORDSYNC_MAX_CONCURRENT)")
	fs.Int("max-retries", d.MaxRetries, "Detail retries before falling back ($RECORDSYNC_MAX_RETRIES)")
	fs.Duration("base-delay", d.BaseDelay, "First retry delay, doubled on each retry ($RECORDSYNC_BASE_DELAY)")
	fs.Duration("inter-batch-delay", d.InterBatchDelay, "Pause between hydration batches ($RECORDSYNC_INTER_BATCH_DELAY)")
	fs.Duration("request-timeout", d.RequestTimeout, "Timeout for each HTTP request ($RECORDSYNC_REQUEST_TIMEOUT)")
	fs.Int("requests-per-second", d.RequestsPerSecond, "Client side request rate limit, 0 for none ($RECORDSYNC_REQUESTS_PER_SECOND)")
	fs.Bool("adaptive-backoff", d.AdaptiveBackoff, "Honor Retry-After on rate limited detail fetches ($RECORDSYNC_ADAPTIVE_BACKOFF)")
	fs.Bool("debug-print-body", d.DebugPrintBody, "Log response bodies at debug level ($RECORDSYNC_DEBUG_PRINT_BODY)")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn or error ($RECORDSYNC_LOG_LEVEL)")
	fs.String("log-format", d.LogFormat, "Log format: json or console ($RECORDSYNC_LOG_FORMAT)")
	fs.StringSlice("log-outputs", d.LogOutputs, "Log destinations: stdout, stderr or file paths ($RECORDSYNC_LOG_OUTPUTS)")
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("account-id", d.AccountID)
	v.SetDefault("base-url", d.BaseURL)
	v.SetDefault("access-token", d.AccessToken)
	v.SetDefault("entity-type", d.EntityType)
	v.SetDefault("filter", d.Filter)
	v.SetDefault("page-size", d.PageSize)
	v.SetDefault("max-concurrent", d.MaxConcurrent)
	v.SetDefault("max-retries", d.MaxRetries)
	v.SetDefault("base-delay", d.BaseDelay)
	v.SetDefault("inter-batch-delay", d.InterBatchDelay)
	v.SetDefault("request-timeout", d.RequestTimeout)
	v.SetDefault("requests-per-second", d.RequestsPerSecond)
	v.SetDefault("adaptive-backoff", d.AdaptiveBackoff)
	v.SetDefault("debug-print-body", d.DebugPrintBody)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("log-outputs", d.LogOutputs)
}

// Load resolves the configuration. fs may be nil. The config file is looked
// up in the working directory and then in each of searchPaths; a missing file
// is not an error.
func Load(fs *pflag.FlagSet, searchPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName(defaultConfigName)
	v.AddConfigPath(".")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RemoteBaseURL is the explicit base URL, or the one derived from the
// account id.
func (c Config) RemoteBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return remote.BaseURLForAccount(c.AccountID)
}

func (c Config) Hydration() hydration.Config {
	return hydration.Config{
		MaxConcurrent:   c.MaxConcurrent,
		MaxRetries:      c.MaxRetries,
		BaseDelay:       c.BaseDelay,
		InterBatchDelay: c.InterBatchDelay,
		AdaptiveBackoff: c.AdaptiveBackoff,
		RequestTimeout:  c.RequestTimeout,
	}
}

func (c Config) LoggingOptions() []logging.Option {
	return []logging.Option{
		logging.WithLogLevel(c.LogLevel),
		logging.WithLogFormat(c.LogFormat),
		logging.WithOutputPaths(c.LogOutputs),
	}
}
