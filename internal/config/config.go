package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Worker struct {
	Count              int           // Number of delivery loops in one worker process
	EmptyQueueBackoff  time.Duration // Sleep when the delivery queue is empty
	ErrorBackoff       time.Duration // Sleep after a failed delivery attempt
	QueueDepthInterval time.Duration // How often the queue depth gauge is sampled
	HTTPPort           string        // Worker HTTP metrics port
}

type Mail struct {
	Mode         string // "postmark" or "dev"
	ServerToken  string // Postmark server token
	AccountToken string // Postmark account token
	BaseURL      string // Override for the Postmark API base URL (fake-mailer in dev)
	SenderEmail  string // From address on outgoing issues
	ReplyToEmail string // Reply-To address on outgoing issues
	SendTimeout  time.Duration
}

type Auth struct {
	PublicKeyPEM string // RSA public key for verifying actor tokens
	Issuer       string
	Audience     string
}

type Idempotency struct {
	MaxKeyLength int // Longest accepted idempotency key, in bytes
}

type Config struct {
	AppName     string
	HTTPPort    string // :8080
	DB          DB
	Worker      Worker
	Mail        Mail
	Auth        Auth
	Idempotency Idempotency
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "postroom"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "postroom"),
		},
		Worker: Worker{
			Count:              getenvInt("WORKER_COUNT", 2),
			EmptyQueueBackoff:  getenvDuration("EMPTY_QUEUE_BACKOFF", 10*time.Second),
			ErrorBackoff:       getenvDuration("ERROR_BACKOFF", 1*time.Second),
			QueueDepthInterval: getenvDuration("QUEUE_DEPTH_INTERVAL", 15*time.Second),
			HTTPPort:           ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		Mail: Mail{
			Mode:         getenv("MAIL_MODE", "postmark"),
			ServerToken:  getenv("POSTMARK_SERVER_TOKEN", ""),
			AccountToken: getenv("POSTMARK_ACCOUNT_TOKEN", ""),
			BaseURL:      getenv("POSTMARK_BASE_URL", ""),
			SenderEmail:  getenv("SENDER_EMAIL", "newsletter@postroom.dev"),
			ReplyToEmail: getenv("REPLY_TO_EMAIL", "support@postroom.dev"),
			SendTimeout:  getenvDuration("MAIL_SEND_TIMEOUT", 15*time.Second),
		},
		Auth: Auth{
			PublicKeyPEM: getenv("AUTH_PUBLIC_KEY_PEM", ""),
			Issuer:       getenv("AUTH_ISSUER", "postroom"),
			Audience:     getenv("AUTH_AUDIENCE", "postroom-api"),
		},
		Idempotency: Idempotency{
			MaxKeyLength: getenvInt("IDEMPOTENCY_MAX_KEY_LENGTH", 50),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
