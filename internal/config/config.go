package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the negotiation service.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	WebhookEndpoint string

	// Negotiation behavior. OfferViewTrigger is "first_offer" or "window".
	OfferViewTrigger string
	OfferWindow      time.Duration
	TripDuration     time.Duration
	OfferVariance    float64
	MinOfferPrice    float64
	OfferDelayMin    time.Duration
	OfferDelayMax    time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		KafkaTopic:       "trip-events",
		OfferViewTrigger: "first_offer",
		OfferWindow:      3 * time.Second,
		TripDuration:     5 * time.Second,
		OfferVariance:    0.10,
		MinOfferPrice:    5.0,
		OfferDelayMin:    1 * time.Second,
		OfferDelayMax:    4 * time.Second,
		LogLevel:         "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.WebhookEndpoint = strings.TrimSpace(os.Getenv("WEBHOOK_ENDPOINT"))

	setStringFromEnv(&cfg.OfferViewTrigger, "OFFER_VIEW_TRIGGER")
	setDurationFromEnv(&cfg.OfferWindow, "OFFER_WINDOW", &errs)
	setDurationFromEnv(&cfg.TripDuration, "TRIP_DURATION", &errs)
	setFloatFromEnv(&cfg.OfferVariance, "OFFER_VARIANCE", &errs)
	setFloatFromEnv(&cfg.MinOfferPrice, "MIN_OFFER_PRICE", &errs)
	setDurationFromEnv(&cfg.OfferDelayMin, "OFFER_DELAY_MIN", &errs)
	setDurationFromEnv(&cfg.OfferDelayMax, "OFFER_DELAY_MAX", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	switch strings.ToLower(cfg.OfferViewTrigger) {
	case "first_offer", "window":
		cfg.OfferViewTrigger = strings.ToLower(cfg.OfferViewTrigger)
	default:
		errs = append(errs, fmt.Errorf("OFFER_VIEW_TRIGGER must be first_offer or window"))
	}
	if cfg.MinOfferPrice <= 0 {
		errs = append(errs, fmt.Errorf("MIN_OFFER_PRICE must be > 0"))
	}
	if cfg.OfferVariance < 0 || cfg.OfferVariance >= 1 {
		errs = append(errs, fmt.Errorf("OFFER_VARIANCE must be in [0, 1)"))
	}
	if cfg.OfferDelayMax < cfg.OfferDelayMin {
		errs = append(errs, fmt.Errorf("OFFER_DELAY_MAX must be >= OFFER_DELAY_MIN"))
	}
	if cfg.TripDuration <= 0 {
		errs = append(errs, fmt.Errorf("TRIP_DURATION must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
