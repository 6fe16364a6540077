package essink

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultIndex receives records without data_stream fields.
const DefaultIndex = "lambda-telemetry"

// Config configures the Elasticsearch client and the bulk indexer.
type Config struct {
	// Endpoints are Elasticsearch URLs. Either Endpoints or CloudID must be set.
	Endpoints []string
	CloudID   string
	Username  string
	Password  string
	APIKey    string
	Headers   map[string]string

	// Index is used for records without data_stream fields.
	Index string

	NumWorkers    int
	FlushBytes    int
	FlushInterval time.Duration

	Retry RetryConfig
}

// RetryConfig applies both to whole bulk requests and to single documents rejected with RetryOnStatus.
type RetryConfig struct {
	Enabled bool
	// MaxRequests includes the initial attempt.
	MaxRequests     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryOnStatus   []int
}

// DefaultConfig returns the configuration for a single Lambda execution environment:
// one worker and a short flush interval, as the environment may be frozen at any time.
func DefaultConfig() Config {
	return Config{
		Endpoints:     []string{"http://localhost:9200"},
		Index:         DefaultIndex,
		NumWorkers:    1,
		FlushBytes:    1 << 20,
		FlushInterval: time.Second,
		Retry: RetryConfig{
			Enabled:         true,
			MaxRequests:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			RetryOnStatus: []int{
				http.StatusTooManyRequests,
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout,
			},
		},
	}
}

func (cfg Config) Validate() error {
	switch {
	case len(cfg.Endpoints) == 0 && cfg.CloudID == "":
		return errors.New("elasticsearch endpoints or cloud id must be set")
	case len(cfg.Endpoints) > 0 && cfg.CloudID != "":
		return errors.New("elasticsearch endpoints and cloud id are mutually exclusive")
	case cfg.Index == "":
		return errors.New("default index must be set")
	case cfg.NumWorkers < 0:
		return fmt.Errorf("invalid number of workers %d", cfg.NumWorkers)
	case cfg.Retry.Enabled && cfg.Retry.MaxRequests < 1:
		return fmt.Errorf("retry max requests must be positive, got %d", cfg.Retry.MaxRequests)
	}

	return nil
}

func (rc RetryConfig) retriable(status int) bool {
	if !rc.Enabled {
		return false
	}
	for _, s := range rc.RetryOnStatus {
		if s == status {
			return true
		}
	}

	return false
}
