package cfg

import (
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefLogFormat         = "logfmt"
	DefLogLevel          = "info"
	DefLogTimeKey        = "time"
	DefHTTPClientTimeout = time.Minute
)

// Config contains settings that are not passed as action inputs.
// All fields are optional.
type Config struct {
	LogFormat  string `toml:"log_format"`
	LogLevel   string `toml:"log_level"`
	LogTimeKey string `toml:"log_time_key"`

	// GithubAPIURL overwrites the API URL from GITHUB_API_URL.
	GithubAPIURL      string `toml:"github_api_url"`
	HTTPClientTimeout string `toml:"http_client_timeout"`

	PullRequestTitle      string `toml:"pull_request_title"`
	PullRequestBody       string `toml:"pull_request_body"`
	NotificationIconEmoji string `toml:"notification_icon_emoji"`

	PrometheusPushgatewayURL string `toml:"prometheus_pushgateway_url"`
}

// Default returns a Config with default values.
func Default() *Config {
	var result Config
	result.setDefaults()

	return &result
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	if err := result.validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) setDefaults() {
	if r.LogFormat == "" {
		r.LogFormat = DefLogFormat
	}

	if r.LogLevel == "" {
		r.LogLevel = DefLogLevel
	}

	if r.LogTimeKey == "" {
		r.LogTimeKey = DefLogTimeKey
	}

	if r.HTTPClientTimeout == "" {
		r.HTTPClientTimeout = DefHTTPClientTimeout.String()
	}
}

func (r *Config) validate() error {
	switch r.LogFormat {
	case "logfmt", "console", "json":
	default:
		return fmt.Errorf("unsupported log_format: %q", r.LogFormat)
	}

	timeout, err := time.ParseDuration(r.HTTPClientTimeout)
	if err != nil {
		return fmt.Errorf("http_client_timeout: %w", err)
	}

	if timeout <= 0 {
		return fmt.Errorf("http_client_timeout must be positive, is: %s", timeout)
	}

	return nil
}

// HTTPTimeout returns HTTPClientTimeout as time.Duration.
// If it can not be parsed, DefHTTPClientTimeout is returned.
func (r *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(r.HTTPClientTimeout)
	if err != nil || d <= 0 {
		return DefHTTPClientTimeout
	}

	return d
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
