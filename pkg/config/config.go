package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"callreport-server/pkg/campaign"
	"callreport-server/pkg/directory"
	"callreport-server/pkg/errors"
	"callreport-server/pkg/source"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	Directory DirectoryConfig `json:"directory"`
	Report    ReportConfig    `json:"report"`
	Source    SourceConfig    `json:"source"`
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Messaging MessagingConfig `json:"messaging"`
}

// DirectoryConfig holds the tracked number directory
type DirectoryConfig struct {
	File   string `json:"file"`
	Inline string `json:"inline"`

	// Entries are the raw entries from File followed by Inline
	Entries []directory.Entry `json:"-"`
}

// ReportConfig holds report generation settings
type ReportConfig struct {
	CampaignThreshold int            `json:"campaign_threshold"`
	Timezone          string         `json:"timezone"`
	DefaultWindow     string         `json:"default_window"`
	Location          *time.Location `json:"-"`
}

// SourceConfig holds record source settings
type SourceConfig struct {
	CallsCSV    string `json:"calls_csv"`
	MessagesCSV string `json:"messages_csv"`
	RecordLimit int    `json:"record_limit"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	OutputFile string `json:"output_file"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Enabled         bool          `json:"enabled"`
	Port            int           `json:"port"`
	EnableMetrics   bool          `json:"enable_metrics"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Per-client rate limiting of the report endpoint
	RateLimitEnabled bool    `json:"rate_limit_enabled"`
	RateLimitRPS     float64 `json:"rate_limit_rps"`
	RateLimitBurst   int     `json:"rate_limit_burst"`

	// Peers allowed to set X-Forwarded-For / X-Real-IP, as IPs or CIDRs
	RateLimitTrustedProxies []string `json:"rate_limit_trusted_proxies"`
}

// MessagingConfig holds report publication settings
type MessagingConfig struct {
	AMQPURL       string `json:"amqp_url"`
	AMQPQueueName string `json:"amqp_queue_name"`
}

// Enabled reports whether report publication is configured
func (m MessagingConfig) Enabled() bool {
	return m.AMQPURL != "" && m.AMQPQueueName != ""
}

// Load loads the configuration from a .env file, if present, and the environment
func Load(logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(err, "failed to parse .env file")
		}
		logger.Debug("No .env file found, using environment variables only")
	} else {
		logger.Info("Loaded .env file")
	}

	config := &Config{}

	loadLoggingConfig(logger, &config.Logging)
	loadHTTPConfig(logger, &config.HTTP)
	loadSourceConfig(logger, &config.Source)
	loadMessagingConfig(logger, &config.Messaging)

	if err := loadReportConfig(logger, &config.Report); err != nil {
		return nil, errors.Wrap(err, "failed to load report configuration")
	}
	if err := loadDirectoryConfig(logger, &config.Directory); err != nil {
		return nil, errors.Wrap(err, "failed to load directory configuration")
	}

	return config, nil
}

func loadDirectoryConfig(logger *logrus.Logger, config *DirectoryConfig) error {
	config.File = getEnv("DIRECTORY_FILE", "")
	config.Inline = getEnv("DIRECTORY", "")
	config.Entries = nil

	if config.File != "" {
		entries, err := directory.LoadFile(config.File)
		if err != nil {
			return err
		}
		config.Entries = append(config.Entries, entries...)
	}

	if config.Inline != "" {
		entries, err := directory.ParseInline(config.Inline)
		if err != nil {
			return err
		}
		config.Entries = append(config.Entries, entries...)
	}

	dir := directory.New(config.Entries)
	if dir.Len() == 0 {
		return errors.NewInvalidDirectory("no valid tracked numbers configured; set DIRECTORY_FILE or DIRECTORY")
	}
	if dropped := len(config.Entries) - dir.Len(); dropped > 0 {
		logger.WithFields(logrus.Fields{
			"entries": len(config.Entries),
			"tracked": dir.Len(),
		}).Warn("Some directory entries were dropped or merged")
	}

	return nil
}

// NewDirectory builds the identity resolver from the loaded entries
func (c *DirectoryConfig) NewDirectory() *directory.Directory {
	return directory.New(c.Entries)
}

func loadReportConfig(logger *logrus.Logger, config *ReportConfig) error {
	config.CampaignThreshold = getEnvInt("CAMPAIGN_THRESHOLD", campaign.DefaultThreshold)
	if config.CampaignThreshold <= 0 {
		logger.Warnf("Invalid CAMPAIGN_THRESHOLD, using default: %d", campaign.DefaultThreshold)
		config.CampaignThreshold = campaign.DefaultThreshold
	}

	config.Timezone = getEnv("REPORT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return errors.NewInvalidInput(fmt.Sprintf("invalid REPORT_TIMEZONE %q", config.Timezone), map[string]interface{}{
			"timezone": config.Timezone,
		})
	}
	config.Location = loc

	config.DefaultWindow = strings.ToLower(getEnv("DEFAULT_WINDOW", source.Window7Days))
	if _, err := source.ParseWindow(config.DefaultWindow, time.Now(), loc); err != nil {
		logger.Warnf("Invalid DEFAULT_WINDOW '%s', using default: %s", config.DefaultWindow, source.Window7Days)
		config.DefaultWindow = source.Window7Days
	}

	return nil
}

func loadSourceConfig(logger *logrus.Logger, config *SourceConfig) {
	config.CallsCSV = getEnv("CALLS_CSV", "")
	config.MessagesCSV = getEnv("MESSAGES_CSV", "")

	config.RecordLimit = getEnvInt("RECORD_LIMIT", 500)
	if config.RecordLimit < 0 {
		logger.Warn("Invalid RECORD_LIMIT value, using default: 500")
		config.RecordLimit = 500
	}

	if config.CallsCSV == "" && config.MessagesCSV == "" {
		logger.Warn("Neither CALLS_CSV nor MESSAGES_CSV is set, reports will be empty")
	}
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) {
	config.Port = getEnvInt("HTTP_PORT", 8080)
	if config.Port < 1 || config.Port > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		config.Port = 8080
	}

	config.Enabled = getEnvBool("HTTP_ENABLED", false)
	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	config.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	if config.ShutdownTimeout <= 0 {
		logger.Warn("Invalid HTTP_SHUTDOWN_TIMEOUT value, using default: 15s")
		config.ShutdownTimeout = 15 * time.Second
	}

	config.RateLimitEnabled = getEnvBool("RATE_LIMIT_ENABLED", false)
	config.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 2)
	if config.RateLimitRPS <= 0 {
		logger.Warn("Invalid RATE_LIMIT_RPS value, using default: 2")
		config.RateLimitRPS = 2
	}
	config.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	if config.RateLimitBurst < 1 {
		logger.Warn("Invalid RATE_LIMIT_BURST value, using default: 10")
		config.RateLimitBurst = 10
	}
	config.RateLimitTrustedProxies = getEnvList("RATE_LIMIT_TRUSTED_PROXIES")
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) {
	config.AMQPURL = getEnv("AMQP_URL", "")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "")

	if (config.AMQPURL == "") != (config.AMQPQueueName == "") {
		logger.Warn("AMQP_URL and AMQP_QUEUE_NAME must both be set, report publishing disabled")
	}
}

// ApplyLogging applies the configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a comma separated list, skipping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Helper function to get a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
