// Package httpclient builds the outbound HTTP client shared by the
// collaborator adapters.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// New returns a stdlib *http.Client that retries connection errors, 5xx
// responses (except 501) and 429s, honouring Retry-After. Intermediate
// failures are logged at warn level.
func New(cfg Config, logger *logrus.Logger) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	if cfg.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = cfg.RetryWaitMax
	}
	retryClient.Logger = nil
	if logger != nil {
		retryClient.Logger = retryablehttp.LeveledLogger(leveledLogrus{logger})
	}
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return client
}

type leveledLogrus struct {
	inner *logrus.Logger
}

func (l leveledLogrus) entry(keysAndValues []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			fields[k] = keysAndValues[i+1]
		}
	}
	return l.inner.WithFields(fields)
}

// re-writes ERROR to WARN since the request may still succeed on retry
func (l leveledLogrus) Error(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Warn(msg)
}

func (l leveledLogrus) Warn(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Warn(msg)
}

func (l leveledLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Info(msg)
}

func (l leveledLogrus) Debug(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Debug(msg)
}
