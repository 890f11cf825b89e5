package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all service configuration, loaded from environment variables
// with sensible defaults (a .env file is read by main before this runs).
//
// Server:
// - APP_HOST: listen host (default: 127.0.0.1)
// - PORT: listen port (default: 15551)
// - UPLOAD_MAX_MB: upload size cap in MiB (default: 2048)
//
// Data:
// - APP_DATA_DIR: job data directory (default: ./data); the sqlite db lives at <dir>/jobs.db
//
// Worker:
// - WORKER_CONCURRENCY: worker slots (default: 1)
// - WHISPER_BIN: transcription binary (default: whisper-cli)
// - WHISPER_MODEL: model path or name (default: small)
// - WHISPER_DEVICE: cpu|gpu (default: cpu)
// - WHISPER_THREADS: cpu threads (default: 8)
//
// Mail:
// - AUTO_SEND_EMAIL: dispatch on completion (default: false)
// - SMTP_HOST, SMTP_PORT (587), SMTP_USER, SMTP_PASS, SMTP_SENDER, SMTP_SENDER_NAME
// - SMTP_USE_TLS (true), SMTP_USE_SSL (false), SMTP_VERIFY (true)
// - RECIPIENTS_DIR (./config), RECIPIENTS_FILE (<dir>/recipients.txt)
// - MAIL_SUBJECT, MAIL_BODY: templates with {name}/{slug} placeholders
// - RECIPIENTS_RELOAD_CRON: cache reload schedule (default: @every 5m)
//
// Notify:
// - WEBHOOK_URL: endpoint POSTed the finished job as JSON (default: unset)

type Config struct {
	Server ServerConfig `json:"server"`
	Data   DataConfig   `json:"data"`
	Worker WorkerConfig `json:"worker"`
	Mail   MailConfig   `json:"mail"`
	Notify NotifyConfig `json:"notify"`
}

type ServerConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	UploadMaxMB int64  `json:"upload_max_mb"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DataConfig struct {
	Dir    string `json:"dir"`
	DBPath string `json:"db_path"`
}

type WorkerConfig struct {
	Count         int    `json:"count"`
	WhisperBin    string `json:"whisper_bin"`
	WhisperModel  string `json:"whisper_model"`
	WhisperDevice string `json:"whisper_device"`
	Threads       int    `json:"threads"`
}

type MailConfig struct {
	AutoSend       bool   `json:"auto_send"`
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUser       string `json:"smtp_user"`
	SMTPPass       string `json:"-"`
	Sender         string `json:"sender"`
	SenderName     string `json:"sender_name"`
	UseTLS         bool   `json:"use_tls"`
	UseSSL         bool   `json:"use_ssl"`
	SkipVerify     bool   `json:"skip_verify"`
	RecipientsDir  string `json:"recipients_dir"`
	RecipientsFile string `json:"recipients_file"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	ReloadCron     string `json:"reload_cron"`
}

type NotifyConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("APP_DATA_DIR", "./data")
	recipientsDir := getEnvString("RECIPIENTS_DIR", "./config")

	config := &Config{
		Server: ServerConfig{
			Host:        getEnvString("APP_HOST", "127.0.0.1"),
			Port:        getEnvInt("PORT", 15551),
			UploadMaxMB: int64(getEnvInt("UPLOAD_MAX_MB", 2048)),
		},
		Data: DataConfig{
			Dir:    dataDir,
			DBPath: filepath.Join(dataDir, "jobs.db"),
		},
		Worker: WorkerConfig{
			Count:         getEnvInt("WORKER_CONCURRENCY", 1),
			WhisperBin:    getEnvString("WHISPER_BIN", "whisper-cli"),
			WhisperModel:  getEnvString("WHISPER_MODEL", "small"),
			WhisperDevice: getEnvString("WHISPER_DEVICE", "cpu"),
			Threads:       getEnvInt("WHISPER_THREADS", 8),
		},
		Mail: MailConfig{
			AutoSend:       getEnvBool("AUTO_SEND_EMAIL", false),
			SMTPHost:       getEnvString("SMTP_HOST", ""),
			SMTPPort:       getEnvInt("SMTP_PORT", 587),
			SMTPUser:       getEnvString("SMTP_USER", ""),
			SMTPPass:       getEnvString("SMTP_PASS", ""),
			Sender:         getEnvString("SMTP_SENDER", ""),
			SenderName:     getEnvString("SMTP_SENDER_NAME", ""),
			UseTLS:         getEnvBool("SMTP_USE_TLS", true),
			UseSSL:         getEnvBool("SMTP_USE_SSL", false),
			SkipVerify:     !getEnvBool("SMTP_VERIFY", true),
			RecipientsDir:  recipientsDir,
			RecipientsFile: getEnvString("RECIPIENTS_FILE", filepath.Join(recipientsDir, "recipients.txt")),
			Subject:        unescape(getEnvString("MAIL_SUBJECT", "Transcript: {name}")),
			Body:           unescape(getEnvString("MAIL_BODY", "Please find the transcript attached.\n\nJob: {name}\nSlug: {slug}\n")),
			ReloadCron:     getEnvString("RECIPIENTS_RELOAD_CRON", "@every 5m"),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnvString("WEBHOOK_URL", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("APP_DATA_DIR is required")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Server.UploadMaxMB < 1 {
		return fmt.Errorf("UPLOAD_MAX_MB must be at least 1")
	}
	return nil
}

// unescape turns literal \n and \t sequences from .env values into real ones.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, `\t`, "\t")
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
