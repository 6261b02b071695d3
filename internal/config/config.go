// Package config loads configuration from environment variables and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/models"

	"github.com/spf13/viper"
)

// Env holds the configuration values for the application.
type Env struct {
	Region      string
	EndpointURL string // LocalStack or other S3/DynamoDB-compatible endpoint
	Tables      map[models.Kind]string
	Bucket      string

	WebhookURL    string
	PublicBaseURL string
	RedisEndpoint string

	DocumentURLTTL time.Duration // links embedded in submitted records
	PresignTTL     time.Duration // on-demand document links
	CacheTTL       time.Duration
	StoreTimeout   time.Duration
	NotifyTimeout  time.Duration
	NotifyQueue    int

	ListLimit           int
	ReservationPeriod   time.Duration
	DefaultDeliveryTime string

	AuthTokenSecret string
	HTTPAddr        string
	LogLevel        string
	AppEnv          string
}

var tableKeys = map[models.Kind]string{
	models.KindOrder:         "CAFETERIA_TABLE",
	models.KindTicket:        "SUPPORT_TICKETS_TABLE",
	models.KindJustification: "ABSENCE_JUSTIFICATIONS_TABLE",
	models.KindCertificate:   "CERTIFICATES_TABLE",
	models.KindReservation:   "RESERVATIONS_TABLE",
}

// New returns a viper instance with defaults applied, environment lookup
// enabled and, when UCEHUB_CONFIG names a file, that file read in.
func New() (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("DOCUMENT_URL_TTL_SECONDS", 604800)
	v.SetDefault("PRESIGN_TTL_SECONDS", 3600)
	v.SetDefault("CACHE_TTL_SECONDS", 60)
	v.SetDefault("STORE_TIMEOUT_SECONDS", 5)
	v.SetDefault("NOTIFY_TIMEOUT_SECONDS", 5)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 64)
	v.SetDefault("LIST_LIMIT", 100)
	v.SetDefault("RESERVATION_DAYS", 14)
	v.SetDefault("DEFAULT_DELIVERY_TIME", "12:00-13:00")
	v.SetDefault("AUTH_TOKEN_SECRET", "ucehub-dev-secret")
	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "production")
	v.AutomaticEnv()

	if path := os.Getenv("UCEHUB_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// FromViper builds an Env, failing when a required value is missing.
func FromViper(v *viper.Viper) (Env, error) {
	e := Env{
		Region:              v.GetString("AWS_REGION"),
		EndpointURL:         v.GetString("AWS_ENDPOINT_URL"),
		Tables:              make(map[models.Kind]string, len(tableKeys)),
		Bucket:              v.GetString("DOCUMENTS_BUCKET"),
		WebhookURL:          v.GetString("TEAMS_WEBHOOK_URL"),
		PublicBaseURL:       strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		RedisEndpoint:       v.GetString("REDIS_ENDPOINT"),
		DocumentURLTTL:      seconds(v, "DOCUMENT_URL_TTL_SECONDS"),
		PresignTTL:          seconds(v, "PRESIGN_TTL_SECONDS"),
		CacheTTL:            seconds(v, "CACHE_TTL_SECONDS"),
		StoreTimeout:        seconds(v, "STORE_TIMEOUT_SECONDS"),
		NotifyTimeout:       seconds(v, "NOTIFY_TIMEOUT_SECONDS"),
		NotifyQueue:         v.GetInt("NOTIFY_QUEUE_SIZE"),
		ListLimit:           v.GetInt("LIST_LIMIT"),
		ReservationPeriod:   time.Duration(v.GetInt("RESERVATION_DAYS")) * 24 * time.Hour,
		DefaultDeliveryTime: v.GetString("DEFAULT_DELIVERY_TIME"),
		AuthTokenSecret:     v.GetString("AUTH_TOKEN_SECRET"),
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		AppEnv:              v.GetString("APP_ENV"),
	}

	var missing []string
	for _, k := range models.Kinds {
		key := tableKeys[k]
		name := v.GetString(key)
		if name == "" {
			missing = append(missing, key)
			continue
		}
		e.Tables[k] = name
	}
	if e.Bucket == "" {
		missing = append(missing, "DOCUMENTS_BUCKET")
	}
	if len(missing) > 0 {
		return Env{}, fmt.Errorf("missing env %s", strings.Join(missing, ", "))
	}
	return e, nil
}

// Load reads the environment (and optional file) into an Env.
func Load() (Env, error) {
	v, err := New()
	if err != nil {
		return Env{}, err
	}
	return FromViper(v)
}

// MustLoad is Load that panics on error.
func MustLoad() Env {
	e, err := Load()
	if err != nil {
		panic(err)
	}
	return e
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}
