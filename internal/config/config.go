package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol identifies the mail retrieval protocol used by the poller.
type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolPOP3 Protocol = "pop3"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	MailRecv   MailReceiverConfig
	Attachment AttachmentConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// MailReceiverConfig holds the mail poller configuration.
// The subsystem is opt-in: with Enabled false, or with Host/User/Pass
// missing, the poller never starts.
type MailReceiverConfig struct {
	Enabled      bool
	Protocol     Protocol
	Host         string
	Port         int
	TLS          bool
	User         string
	Pass         string
	Mailbox      string
	MarkSeen     bool
	PollInterval time.Duration
	MaxPerPoll   int
}

// AttachmentConfig holds attachment storage configuration.
// Backend selects between the local date-partitioned filesystem store
// and an S3-compatible object store.
type AttachmentConfig struct {
	Backend         string // "local" or "s3"
	PublicRoot      string // base directory for local storage
	BaseURL         string // prefix for servable attachment URLs
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
}

// Load reads configuration from environment variables
func Load() *Config {
	proto := parseProtocol(getEnv("MAIL_RECV_PROTOCOL", "imap"))

	defaultPort := 993
	if proto == ProtocolPOP3 {
		defaultPort = 995
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "inbound_mail"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MailRecv: MailReceiverConfig{
			Enabled:      getBoolEnv("MAIL_RECV_ENABLED", false),
			Protocol:     proto,
			Host:         getEnv("MAIL_RECV_HOST", ""),
			Port:         getIntEnv("MAIL_RECV_PORT", defaultPort),
			TLS:          getBoolEnv("MAIL_RECV_TLS", true),
			User:         getEnv("MAIL_RECV_USER", ""),
			Pass:         getEnv("MAIL_RECV_PASS", ""),
			Mailbox:      getEnv("MAIL_RECV_MAILBOX", "INBOX"),
			MarkSeen:     getBoolEnv("MAIL_RECV_MARK_SEEN", true),
			PollInterval: getMillisEnv("MAIL_RECV_POLL_INTERVAL_MS", 60*time.Second),
			MaxPerPoll:   getIntEnv("MAIL_RECV_MAX_PER_POLL", 25),
		},
		Attachment: AttachmentConfig{
			Backend:     getEnv("ATTACHMENT_BACKEND", "local"),
			PublicRoot:  getEnv("ATTACHMENT_PUBLIC_ROOT", "public"),
			BaseURL:     getEnv("ATTACHMENT_BASE_URL", "/files"),
			S3Endpoint:  getEnv("ATTACHMENT_S3_ENDPOINT", ""),
			S3Region:    getEnv("ATTACHMENT_S3_REGION", "us-east-1"),
			S3Bucket:    getEnv("ATTACHMENT_S3_BUCKET", "inbound-mail-attachments"),
			S3AccessKey: getEnv("ATTACHMENT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("ATTACHMENT_S3_SECRET_KEY", ""),
			S3UseSSL:    getBoolEnv("ATTACHMENT_S3_USE_SSL", true),
		},
	}
}

// Complete reports whether the poller has everything it needs to run.
// Missing credentials are a deliberate no-op, not an error.
func (m *MailReceiverConfig) Complete() bool {
	return m.Enabled && m.Host != "" && m.User != "" && m.Pass != ""
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

func parseProtocol(v string) Protocol {
	if strings.EqualFold(strings.TrimSpace(v), string(ProtocolPOP3)) {
		return ProtocolPOP3
	}
	return ProtocolIMAP
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getMillisEnv returns a duration from a millisecond-valued environment
// variable or default
func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
