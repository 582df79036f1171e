package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration, loaded once at startup.
type Config struct {
	Server        ServerConfig
	Encryption    EncryptionConfig
	Auth          AuthenticationConfig
	Security      SecurityHeadersConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
}

// ObservabilityConfig controls the ambient metrics/tracing surface the
// engine exposes. Neither knob changes request handling — both are
// purely additive instrumentation.
type ObservabilityConfig struct {
	MetricsEnabled bool `envconfig:"MARLIN_METRICS_ENABLED" default:"true"`
	// TracingStdout, when true, exports spans to stdout for local
	// development. Off by default: an embeddable library has no implied
	// external collector, so tracing defaults to a no-op sink.
	TracingStdout bool `envconfig:"MARLIN_TRACING_STDOUT" default:"false"`
}

// ServerConfig holds HTTP listener and worker pool tunables.
type ServerConfig struct {
	Host    string `envconfig:"MARLIN_SERVER_HOST" default:"0.0.0.0"`
	Port    int    `envconfig:"MARLIN_SERVER_PORT" default:"8080"`
	WebRoot string `envconfig:"MARLIN_SERVER_WEBROOT" default:"."`

	QueueLength int `envconfig:"MARLIN_SERVER_QUEUE_LENGTH" default:"1024"`

	MinThreads int `envconfig:"MARLIN_SERVER_MIN_THREADS" default:"0"` // 0 -> floors to 2 x CPU
	MaxThreads int `envconfig:"MARLIN_SERVER_MAX_THREADS" default:"0"` // 0 -> caps at 4 x CPU
	StackSize  int `envconfig:"MARLIN_SERVER_STACK_SIZE" default:"0"`

	StreamingLimit int64 `envconfig:"MARLIN_SERVER_STREAMING_LIMIT" default:"1048576"` // 1 MiB floor
	CompressLimit  int64 `envconfig:"MARLIN_SERVER_COMPRESS_LIMIT" default:"102400"`    // 25 x 4 KiB

	RespondUnicode bool `envconfig:"MARLIN_SERVER_RESPOND_UNICODE" default:"false"`
	RespondSoapBOM bool `envconfig:"MARLIN_SERVER_RESPOND_SOAP_BOM" default:"false"`
	RespondJSONBOM bool `envconfig:"MARLIN_SERVER_RESPOND_JSON_BOM" default:"false"`

	Reliable        bool `envconfig:"MARLIN_SERVER_RELIABLE" default:"false"`
	VerbTunneling   bool `envconfig:"MARLIN_SERVER_VERB_TUNNELING" default:"false"`
	HTTPCompression bool `envconfig:"MARLIN_SERVER_HTTP_COMPRESSION" default:"true"`
	HTTPThrottling  bool `envconfig:"MARLIN_SERVER_HTTP_THROTTLING" default:"false"`
}

// Address returns the server address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EncryptionConfig holds the site-wide XML encryption defaults.
type EncryptionConfig struct {
	Level    string `envconfig:"MARLIN_ENCRYPTION_LEVEL" default:"plain"` // plain|sign|body|message
	Password string `envconfig:"MARLIN_ENCRYPTION_PASSWORD"`
}

// AuthenticationConfig holds the site-wide authentication defaults.
type AuthenticationConfig struct {
	Scheme    string `envconfig:"MARLIN_AUTH_SCHEME" default:"Anonymous"`
	NTLMCache bool   `envconfig:"MARLIN_AUTH_NTLM_CACHE" default:"false"`
	Realm     string `envconfig:"MARLIN_AUTH_REALM"`
	Domain    string `envconfig:"MARLIN_AUTH_DOMAIN"`
}

// SecurityHeadersConfig holds automatic response header defaults.
type SecurityHeadersConfig struct {
	XFrameOption    string `envconfig:"MARLIN_SECURITY_XFRAME_OPTION" default:"SAMEORIGIN"`
	XFrameAllowed   string `envconfig:"MARLIN_SECURITY_XFRAME_ALLOWED"`
	CORSAllowOrigin string `envconfig:"MARLIN_SECURITY_CORS_ALLOW_ORIGIN"`
	CORS            bool   `envconfig:"MARLIN_SECURITY_CORS" default:"false"`
	HSTSMaxAge      int    `envconfig:"MARLIN_SECURITY_HSTS_MAX_AGE" default:"0"`
	HSTSSubDomains  bool   `envconfig:"MARLIN_SECURITY_HSTS_SUBDOMAINS" default:"false"`
	ContentNoSniff  bool   `envconfig:"MARLIN_SECURITY_CONTENT_NOSNIFF" default:"true"`
	XSSProtection   bool   `envconfig:"MARLIN_SECURITY_XSS_PROTECTION" default:"true"`
	XSSBlockMode    bool   `envconfig:"MARLIN_SECURITY_XSS_BLOCK_MODE" default:"true"`
	NoCacheControl  bool   `envconfig:"MARLIN_SECURITY_NO_CACHE_CONTROL" default:"false"`
}

// LoggingConfig configures the ambient logging collaborator. It has no
// bearing on the core's persistence guarantee (the core itself persists
// nothing) — these knobs only shape the slog handler the engine installs.
type LoggingConfig struct {
	Logfile   string `envconfig:"MARLIN_LOG_FILE"`
	DoLogging bool   `envconfig:"MARLIN_LOG_ENABLED" default:"true"`
	DoTiming  bool   `envconfig:"MARLIN_LOG_TIMING" default:"false"`
	DoEvents  bool   `envconfig:"MARLIN_LOG_EVENTS" default:"false"`
	Detail    int    `envconfig:"MARLIN_LOG_DETAIL" default:"1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Encryption.Level {
	case "plain", "sign", "body", "message":
	default:
		return fmt.Errorf("MARLIN_ENCRYPTION_LEVEL must be one of plain|sign|body|message, got %q", c.Encryption.Level)
	}
	if c.Encryption.Level != "plain" && c.Encryption.Password == "" {
		return fmt.Errorf("MARLIN_ENCRYPTION_PASSWORD is required when MARLIN_ENCRYPTION_LEVEL is not plain")
	}
	if c.Server.StreamingLimit < 1<<20 {
		return fmt.Errorf("MARLIN_SERVER_STREAMING_LIMIT must be at least 1 MiB")
	}
	if c.Server.StreamingLimit > 2<<30 {
		return fmt.Errorf("MARLIN_SERVER_STREAMING_LIMIT must not exceed 2 GiB")
	}
	if c.Server.MinThreads < 0 || c.Server.MaxThreads < 0 {
		return fmt.Errorf("thread pool bounds must not be negative")
	}
	if c.Server.MaxThreads > 0 && c.Server.MinThreads > c.Server.MaxThreads {
		return fmt.Errorf("MARLIN_SERVER_MIN_THREADS must not exceed MARLIN_SERVER_MAX_THREADS")
	}
	return nil
}
