package config

import (
	"fmt"
	"strings"

	"github.com/fieldpay/recordsync/pkg/logging"
	"github.com/fieldpay/recordsync/pkg/types/record"
)

type ConfigurationError struct {
	errs []error
}

func (c *ConfigurationError) Error() string {
	errstrings := make([]string, 0, len(c.errs))
	for _, err := range c.errs {
		errstrings = append(errstrings, err.Error())
	}
	return fmt.Sprintf("found %d error(s) in the configuration:\n%s", len(c.errs), strings.Join(errstrings, "\n"))
}

func (c *ConfigurationError) PushError(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

func (c *ConfigurationError) Errors() []error {
	return c.errs
}

// Validate reports every problem at once as a *ConfigurationError.
func (c Config) Validate() error {
	found := &ConfigurationError{}

	if c.AccountID == "" && c.BaseURL == "" {
		found.PushError(fmt.Errorf("account-id is required when base-url is not set"))
	}
	if !knownEntityType(c.EntityType) {
		found.PushError(fmt.Errorf("entity-type %q is not one of %s", c.EntityType, strings.Join(record.Names, ", ")))
	}
	if c.PageSize <= 0 {
		found.PushError(fmt.Errorf("page-size must be positive (value %d)", c.PageSize))
	}
	if c.MaxConcurrent <= 0 {
		found.PushError(fmt.Errorf("max-concurrent must be positive (value %d)", c.MaxConcurrent))
	}
	if c.MaxRetries < 0 {
		found.PushError(fmt.Errorf("max-retries must not be negative (value %d)", c.MaxRetries))
	}
	if c.BaseDelay <= 0 {
		found.PushError(fmt.Errorf("base-delay must be positive (value %s)", c.BaseDelay))
	}
	if c.InterBatchDelay < 0 {
		found.PushError(fmt.Errorf("inter-batch-delay must not be negative (value %s)", c.InterBatchDelay))
	}
	if c.RequestTimeout < 0 {
		found.PushError(fmt.Errorf("request-timeout must not be negative (value %s)", c.RequestTimeout))
	}
	if c.RequestsPerSecond < 0 {
		found.PushError(fmt.Errorf("requests-per-second must not be negative (value %d)", c.RequestsPerSecond))
	}
	switch c.LogFormat {
	case logging.LogFormatJSON, logging.LogFormatConsole:
	default:
		found.PushError(fmt.Errorf("log-format must be %q or %q (value %q)", logging.LogFormatJSON, logging.LogFormatConsole, c.LogFormat))
	}

	if len(found.errs) > 0 {
		return found
	}
	return nil
}

func knownEntityType(name string) bool {
	for _, n := range record.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
