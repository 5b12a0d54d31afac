package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Failure classes reported on membership.config.loads.
const (
	loadClassNone       = "none"
	loadClassEnvFile    = "env_file"
	loadClassParse      = "parse"
	loadClassValidation = "validation"
	loadClassUnknown    = "unknown"
)

// LoadError tags a Load failure with the stage that produced it.
type LoadError struct {
	Class string
	Err   error
}

func (e *LoadError) Error() string { return e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

func loadErrorClass(err error) string {
	if err == nil {
		return loadClassNone
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Class
	}
	return loadClassUnknown
}

var (
	loadCounterOnce sync.Once
	loadCounter     metric.Int64Counter
)

func recordConfigLoad(ctx context.Context, cfg *Config, err error) {
	loadCounterOnce.Do(func() {
		counter, cerr := otel.Meter("membership-service/config").Int64Counter(
			"membership.config.loads",
			metric.WithDescription("Configuration loads by profile and failure class"),
		)
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	profile := os.Getenv("APP_ENV")
	trustedProxies := 0
	if cfg != nil {
		profile = cfg.AppEnv
		trustedProxies = len(cfg.TrustedProxies)
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", loadErrorClass(err)),
		attribute.Bool("behind_proxy", trustedProxies > 0),
	))
}

// normalizeConfigProfile lowercases APP_ENV; unset or blank reads as "unknown".
func normalizeConfigProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	return v
}
