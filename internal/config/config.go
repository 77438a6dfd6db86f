// Package config provides environment-variable-first configuration loading
// with an optional YAML base layer and .env support.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// DotEnvFile is read by Load and LoadFromFile when present. Values never
// override variables already set in the process environment.
var DotEnvFile = ".env"

// Config holds the complete application configuration.
type Config struct {
	// Provider names the default backend. Empty means auto-detect.
	Provider string `yaml:"provider"`

	SMTP     SMTPConfig     `yaml:"smtp"`
	API      APIConfig      `yaml:"api"`
	Graph    GraphConfig    `yaml:"graph"`
	SES      SESConfig      `yaml:"ses"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	Resend   ResendConfig   `yaml:"resend"`
	Postmark PostmarkConfig `yaml:"postmark"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Storage  StorageConfig  `yaml:"storage"`
	Policy   PolicyConfig   `yaml:"policy"`
	Composer ComposerConfig `yaml:"composer"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig holds the relay listener configuration.
type SMTPConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	MaxRecipients  int    `yaml:"max_recipients"`
}

// APIConfig holds the HTTP API configuration.
type APIConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Listen       string `yaml:"listen"`
	JWTSecret    string `yaml:"jwt_secret"`
	JWTIssuer    string `yaml:"jwt_issuer"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	Sender          string `yaml:"sender"`
	SaveToSentItems bool   `yaml:"save_to_sent_items"`
}

// SESConfig holds Amazon SES configuration. Static keys are optional; the
// default AWS credential chain is used without them.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	Sender           string `yaml:"sender"`
	ConfigurationSet string `yaml:"configuration_set"`
}

type SendGridConfig struct {
	APIKey string `yaml:"api_key"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
	Sender string `yaml:"sender"`
}

type PostmarkConfig struct {
	ServerToken   string `yaml:"server_token"`
	Sender        string `yaml:"sender"`
	MessageStream string `yaml:"message_stream"`
}

// UpstreamConfig describes an SMTP server to relay through.
type UpstreamConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLSMode            string `yaml:"tls_mode"`
	LocalName          string `yaml:"local_name"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// StorageConfig locates the S3 bucket that API attachments may reference.
type StorageConfig struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
	MaxSize   int64  `yaml:"max_size"`
}

// PolicyConfig decides what happens to content a backend cannot carry.
// Values are "reject" or "strip".
type PolicyConfig struct {
	Attachments string `yaml:"attachments"`
	Tracking    string `yaml:"tracking"`
	Concurrency int    `yaml:"concurrency"`
}

type ComposerConfig struct {
	MessageIDDomain string `yaml:"message_id_domain"`
}

// TLSConfig holds relay certificate file paths. Without files a
// self-signed certificate is generated.
type TLSConfig struct {
	Disabled bool   `yaml:"disabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}
	cfg.applyEnvVars()
	return cfg, cfg.Validate()
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}
	cfg.applyEnvVars()

	return cfg, cfg.Validate()
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	var errs []error
	for field, v := range map[string]string{
		"policy.attachments": c.Policy.Attachments,
		"policy.tracking":    c.Policy.Tracking,
	} {
		if v != "reject" && v != "strip" {
			errs = append(errs, fmt.Errorf("%s: must be reject or strip, got %q", field, v))
		}
	}
	switch c.Upstream.TLSMode {
	case "", "none", "starttls", "tls":
	default:
		errs = append(errs, fmt.Errorf("upstream.tls_mode: unknown mode %q", c.Upstream.TLSMode))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format))
	}
	if !c.SMTP.Enabled && !c.API.Enabled {
		errs = append(errs, errors.New("at least one of smtp.enabled and api.enabled must be set"))
	}
	return errors.Join(errs...)
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SESConfigured returns true if a region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

func (c *Config) SendGridConfigured() bool { return c.SendGrid.APIKey != "" }
func (c *Config) ResendConfigured() bool   { return c.Resend.APIKey != "" }
func (c *Config) PostmarkConfigured() bool { return c.Postmark.ServerToken != "" }
func (c *Config) UpstreamConfigured() bool { return c.Upstream.Host != "" }
func (c *Config) StorageConfigured() bool  { return c.Storage.Bucket != "" }

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Enabled = true
	c.SMTP.Listen = ":2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.MaxRecipients = 100
	c.API.Listen = ":8080"
	c.API.MaxBodyBytes = 32 << 20
	c.Upstream.Port = 587
	c.Upstream.TLSMode = "starttls"
	c.Policy.Attachments = "reject"
	c.Policy.Tracking = "strip"
	c.Policy.Concurrency = 4
	c.Composer.MessageIDDomain = "localhost"
	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values; values
// that fail to parse are ignored.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	envBool("SMTP_ENABLED", &c.SMTP.Enabled)
	envString("SMTP_LISTEN", &c.SMTP.Listen)
	envString("SMTP_HOSTNAME", &c.SMTP.Hostname)
	envString("SMTP_USERNAME", &c.SMTP.Username)
	envString("SMTP_PASSWORD", &c.SMTP.Password)
	envInt64("SMTP_MAX_MESSAGE_SIZE", &c.SMTP.MaxMessageSize)
	envInt("SMTP_MAX_RECIPIENTS", &c.SMTP.MaxRecipients)

	envBool("API_ENABLED", &c.API.Enabled)
	envString("API_LISTEN", &c.API.Listen)
	envString("API_JWT_SECRET", &c.API.JWTSecret)
	envString("API_JWT_ISSUER", &c.API.JWTIssuer)
	envInt64("API_MAX_BODY_BYTES", &c.API.MaxBodyBytes)

	envString("GRAPH_TENANT_ID", &c.Graph.TenantID)
	envString("GRAPH_CLIENT_ID", &c.Graph.ClientID)
	envString("GRAPH_CLIENT_SECRET", &c.Graph.ClientSecret)
	envString("GRAPH_SENDER", &c.Graph.Sender)
	envBool("GRAPH_SAVE_TO_SENT_ITEMS", &c.Graph.SaveToSentItems)

	envString("SES_REGION", &c.SES.Region)
	envString("SES_ACCESS_KEY_ID", &c.SES.AccessKeyID)
	envString("SES_SECRET_ACCESS_KEY", &c.SES.SecretAccessKey)
	envString("SES_SENDER", &c.SES.Sender)
	envString("SES_CONFIGURATION_SET", &c.SES.ConfigurationSet)

	envString("SENDGRID_API_KEY", &c.SendGrid.APIKey)

	envString("RESEND_API_KEY", &c.Resend.APIKey)
	envString("RESEND_SENDER", &c.Resend.Sender)

	envString("POSTMARK_SERVER_TOKEN", &c.Postmark.ServerToken)
	envString("POSTMARK_SENDER", &c.Postmark.Sender)
	envString("POSTMARK_MESSAGE_STREAM", &c.Postmark.MessageStream)

	envString("UPSTREAM_HOST", &c.Upstream.Host)
	envInt("UPSTREAM_PORT", &c.Upstream.Port)
	envString("UPSTREAM_USERNAME", &c.Upstream.Username)
	envString("UPSTREAM_PASSWORD", &c.Upstream.Password)
	envLower("UPSTREAM_TLS_MODE", &c.Upstream.TLSMode)
	envString("UPSTREAM_LOCAL_NAME", &c.Upstream.LocalName)
	envString("UPSTREAM_CA_FILE", &c.Upstream.CAFile)
	envBool("UPSTREAM_INSECURE_SKIP_VERIFY", &c.Upstream.InsecureSkipVerify)

	envString("STORAGE_BUCKET", &c.Storage.Bucket)
	envString("STORAGE_REGION", &c.Storage.Region)
	envString("STORAGE_ENDPOINT", &c.Storage.Endpoint)
	envString("STORAGE_ACCESS_KEY", &c.Storage.AccessKey)
	envString("STORAGE_SECRET_KEY", &c.Storage.SecretKey)
	envBool("STORAGE_PATH_STYLE", &c.Storage.PathStyle)
	envString("STORAGE_PREFIX", &c.Storage.Prefix)
	envInt64("STORAGE_MAX_SIZE", &c.Storage.MaxSize)

	envLower("POLICY_ATTACHMENTS", &c.Policy.Attachments)
	envLower("POLICY_TRACKING", &c.Policy.Tracking)
	envInt("DISPATCH_CONCURRENCY", &c.Policy.Concurrency)

	envString("MESSAGE_ID_DOMAIN", &c.Composer.MessageIDDomain)

	envBool("TLS_DISABLED", &c.TLS.Disabled)
	envString("TLS_CERT_FILE", &c.TLS.CertFile)
	envString("TLS_KEY_FILE", &c.TLS.KeyFile)

	envLower("LOG_LEVEL", &c.Logging.Level)
	envLower("LOG_FORMAT", &c.Logging.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envLower(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v)
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
