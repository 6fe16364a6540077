package essink

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/go-logr/logr"
)

// clientLogger implements the estransport.Logger interface
// required by the Elasticsearch client for logging.
type clientLogger struct {
	log logr.Logger
}

// LogRoundTrip must not modify the request or the response. Both may be nil.
func (cl clientLogger) LogRoundTrip(req *http.Request, resp *http.Response, err error, _ time.Time, dur time.Duration) error {
	switch {
	case err == nil && resp != nil:
		cl.log.V(1).Info(
			"request roundtrip completed",
			"path", req.URL.Path,
			"method", req.Method,
			"duration", dur,
			"status", resp.Status,
		)
	case err != nil:
		cl.log.Error(err, "request failed", "path", req.URL.Path, "method", req.Method)
	}

	return nil
}

func (clientLogger) RequestBodyEnabled() bool {
	return false
}

func (clientLogger) ResponseBodyEnabled() bool {
	return false
}

// NewClient creates an Elasticsearch client retrying requests failed with cfg.Retry.RetryOnStatus.
func NewClient(cfg Config, log logr.Logger) (*elasticsearch.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	headers := make(http.Header)
	for k, v := range cfg.Headers {
		headers.Add(k, v)
	}

	maxRetries := cfg.Retry.MaxRequests - 1
	retryDisabled := !cfg.Retry.Enabled || maxRetries <= 0
	if retryDisabled {
		maxRetries = 0
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Endpoints,
		CloudID:   cfg.CloudID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Header:    headers,

		RetryOnStatus:        cfg.Retry.RetryOnStatus,
		DisableRetry:         retryDisabled,
		EnableRetryOnTimeout: cfg.Retry.Enabled,
		MaxRetries:           maxRetries,
		RetryBackoff:         retryBackoff(cfg.Retry),

		Logger: clientLogger{log},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create elasticsearch client: %w", err)
	}

	return client, nil
}

// retryBackoff returns the delay before the given attempt, starting from 1.
// The returned function is safe for concurrent use.
func retryBackoff(rc RetryConfig) func(attempt int) time.Duration {
	if !rc.Enabled {
		return nil
	}

	return func(attempt int) time.Duration {
		expBackoff := backoff.NewExponentialBackOff()
		if rc.InitialInterval > 0 {
			expBackoff.InitialInterval = rc.InitialInterval
		}
		if rc.MaxInterval > 0 {
			expBackoff.MaxInterval = rc.MaxInterval
		}
		expBackoff.MaxElapsedTime = 0
		expBackoff.Reset()

		d := expBackoff.NextBackOff()
		for i := 1; i < attempt; i++ {
			d = expBackoff.NextBackOff()
		}

		return d
	}
}
