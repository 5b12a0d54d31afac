package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/karingamassive/membership-service/internal/config"
)

const meterName = "membership-service"

type appMetrics struct {
	authLogin           metric.Int64Counter
	authRefresh         metric.Int64Counter
	authLogout          metric.Int64Counter
	otpEvents           metric.Int64Counter
	accessTokenChecks   metric.Int64Counter
	guardRejections     metric.Int64Counter
	rateLimitDecisions  metric.Int64Counter
	rateLimitRetryAfter metric.Float64Histogram
	sideStoreFailures   metric.Int64Counter
	repositoryOps       metric.Int64Counter
	accountStatus       metric.Int64Counter
}

var (
	metricsMu sync.RWMutex
	current   *appMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		if err := bindMetrics(mp.Meter(meterName)); err != nil {
			return nil, err
		}
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	if err := bindMetrics(mp.Meter(meterName)); err != nil {
		return nil, err
	}
	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func bindMetrics(meter metric.Meter) error {
	m := &appMetrics{}
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authLogin, "auth.login.attempts"},
		{&m.authRefresh, "auth.refresh.attempts"},
		{&m.authLogout, "auth.logout.attempts"},
		{&m.otpEvents, "auth.otp.events"},
		{&m.accessTokenChecks, "auth.access_token.validations"},
		{&m.guardRejections, "auth.guard.rejections"},
		{&m.rateLimitDecisions, "ratelimit.decisions"},
		{&m.sideStoreFailures, "sidestore.failures"},
		{&m.repositoryOps, "repository.operations"},
		{&m.accountStatus, "account.status.changes"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name); err != nil {
			return fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	m.rateLimitRetryAfter, err = meter.Float64Histogram("ratelimit.retry_after", metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("create histogram ratelimit.retry_after: %w", err)
	}

	metricsMu.Lock()
	current = m
	metricsMu.Unlock()
	return nil
}

func load() *appMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return current
}

func RecordAuthLogin(ctx context.Context, outcome string) {
	if m := load(); m != nil {
		m.authLogin.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordAuthRefresh(ctx context.Context, outcome string) {
	if m := load(); m != nil {
		m.authRefresh.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordAuthLogout(ctx context.Context, outcome string) {
	if m := load(); m != nil {
		m.authLogout.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordOTPEvent(ctx context.Context, event string) {
	if m := load(); m != nil {
		m.otpEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	}
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	if m := load(); m != nil {
		m.accessTokenChecks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		))
	}
}

func RecordGuardRejection(ctx context.Context, guard string) {
	if m := load(); m != nil {
		m.guardRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("guard", guard)))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode string) {
	if m := load(); m != nil {
		m.rateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
			attribute.String("mode", mode),
		))
	}
}

func RecordRateLimitRetryAfter(ctx context.Context, scope string, retryAfter time.Duration) {
	if m := load(); m != nil {
		m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
	}
}

func RecordSideStoreFailure(ctx context.Context, component, operation string) {
	if m := load(); m != nil {
		m.sideStoreFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("operation", operation),
		))
	}
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	if m := load(); m != nil {
		m.repositoryOps.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordAccountStatusChange(ctx context.Context, from, to string) {
	if m := load(); m != nil {
		m.accountStatus.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		))
	}
}
