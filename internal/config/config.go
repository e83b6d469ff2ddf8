// Package config reads service settings from the environment once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	StoreDriver  string
	StoreDSN     string
	StoreTimeout time.Duration

	RedisAddr string
	CartTTL   time.Duration

	AMQPURL      string
	KafkaBrokers string
	KafkaTopic   string

	PaymentScriptURL     string
	PaymentKeyID         string
	PaymentSecret        string
	PaymentWidgetTimeout time.Duration
	Currency             string

	InventoryMaxRetries int

	ReceiptDir    string
	PublicBaseURL string

	PendingOrderTTL     time.Duration
	FulfillRequiresPaid bool

	ShopName  string
	ShopPhone string
}

// FromEnv reads the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load reads settings through getenv. Every invalid value is reported, not
// just the first.
func Load(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		ServiceName: r.str("SERVICE_NAME", "freshcut"),
		Env:         r.str("ENV", "dev"),
		HTTPAddr:    r.str("HTTP_ADDR", ":8080"),

		StoreDriver:  strings.ToLower(r.str("STORE_DRIVER", StoreMemory)),
		StoreDSN:     r.str("STORE_DSN", ""),
		StoreTimeout: r.duration("STORE_TIMEOUT", 3*time.Second),

		RedisAddr: r.str("REDIS_ADDR", ""),
		CartTTL:   r.duration("CART_TTL", 7*24*time.Hour),

		AMQPURL:      r.str("AMQP_URL", ""),
		KafkaBrokers: r.str("KAFKA_BROKERS", ""),
		KafkaTopic:   r.str("KAFKA_TOPIC", "freshcut.events"),

		PaymentScriptURL:     r.str("PAYMENT_SCRIPT_URL", ""),
		PaymentKeyID:         r.str("PAYMENT_KEY_ID", ""),
		PaymentSecret:        r.str("PAYMENT_SECRET", ""),
		PaymentWidgetTimeout: r.duration("PAYMENT_WIDGET_TIMEOUT", 5*time.Second),
		Currency:             strings.ToUpper(r.str("CURRENCY", "INR")),

		InventoryMaxRetries: r.integer("INVENTORY_MAX_RETRIES", 5),

		ReceiptDir:    r.str("RECEIPT_DIR", ""),
		PublicBaseURL: strings.TrimRight(r.str("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		PendingOrderTTL:     r.duration("PENDING_ORDER_TTL", 0),
		FulfillRequiresPaid: r.boolean("FULFILL_REQUIRES_PAID", false),

		ShopName:  r.str("SHOP_NAME", "Fresh Cuts"),
		ShopPhone: r.str("SHOP_PHONE", ""),
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if cfg.StoreDSN == "" {
			r.fail("STORE_DSN is required for STORE_DRIVER=%s", cfg.StoreDriver)
		}
	default:
		r.fail("STORE_DRIVER: unsupported value %q", cfg.StoreDriver)
	}
	if cfg.InventoryMaxRetries < 1 {
		r.fail("INVENTORY_MAX_RETRIES: must be at least 1")
	}
	if cfg.PaymentWidgetTimeout <= 0 {
		r.fail("PAYMENT_WIDGET_TIMEOUT: must be positive")
	}
	if cfg.PendingOrderTTL < 0 {
		r.fail("PENDING_ORDER_TTL: must not be negative")
	}

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) fail(format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf(format, args...))
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail("%s: %w", key, err)
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail("%s: %w", key, err)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail("%s: %w", key, err)
		return def
	}
	return b
}
