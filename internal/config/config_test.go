package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TOKEN_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("REFRESH_TOKEN_SECRET", "abcdefghijklmnopqrstuvwxyz654321")
}

func TestLoadDefaultsMatchLoginLimiterBudgets(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.JWTAccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, time.Hour, cfg.OTPTTL)

	assert.Equal(t, 10, cfg.LoginLimitByIP.Points)
	assert.Equal(t, 10*time.Minute, cfg.LoginLimitByIP.Duration)
	assert.Equal(t, 100, cfg.LoginLimitByIPPerDay.Points)
	assert.Equal(t, 24*time.Hour, cfg.LoginLimitByIPPerDay.BlockDuration)
	assert.Equal(t, 10, cfg.LoginLimitByContactIP.Points)
	assert.Equal(t, 2*time.Minute, cfg.LoginLimitByContactIP.BlockDuration)
	assert.Equal(t, 100, cfg.GenericLimit.Points)
	assert.Equal(t, time.Minute, cfg.GenericLimit.Duration)
	assert.Equal(t, time.Hour, cfg.GenericLimit.BlockDuration)
	assert.Equal(t, 2, cfg.GenericLimitCost)
	assert.Equal(t, FailOpen, cfg.GenericLimit.Failure)
	assert.Equal(t, FailClosed, cfg.LoginLimitByIP.Failure)
	assert.Equal(t, 10*time.Minute, cfg.SearchCacheTTL)
}

func TestLoadTrustedProxiesDefaultsToNone(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadTrustedProxiesParsesRangesAndBareAddresses(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7 ,fd00::/8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.TrustedProxies, 3)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedProxies[0].String())
	assert.Equal(t, "192.168.1.7/32", cfg.TrustedProxies[1].String())
	assert.Equal(t, "fd00::/8", cfg.TrustedProxies[2].String())
}

func TestLoadTrustedProxiesRejectsGarbage(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,not-an-ip")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse TRUSTED_PROXIES")
}

func TestLoadRejectsShortSecretsOutsideDev(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("TOKEN_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config:")
	assert.Equal(t, loadClassValidation, loadErrorClass(err))
}

func TestLoadDevProfileFillsSecrets(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("APP_ENV", "dev")
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDev())
	assert.NotEqual(t, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func TestLoadReportsParseErrors(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("JWT_ACCESS_TTL", "one hour")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, loadClassParse, loadErrorClass(err))
}

func TestLoadRejectsFailOpenLoginLimiter(t *testing.T) {
	setRequiredSecrets(t)
	cfg, err := fromEnv()
	require.NoError(t, err)

	cfg.LoginLimitByContactIP.Failure = FailOpen
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail closed")
}

func TestLoadReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	content := strings.Join([]string{
		"APP_ENV=prod",
		"TOKEN_SECRET=abcdefghijklmnopqrstuvwxyz123456",
		"REFRESH_TOKEN_SECRET=abcdefghijklmnopqrstuvwxyz654321",
		"HTTP_ADDR=:9999",
		"CORS_ALLOWED_ORIGINS=https://a.example, https://b.example",
	}, "\n")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	t.Setenv("ENV_FILE", file)
	t.Setenv("HTTP_ADDR", ":7777")
	// Variables loaded from the file are process-wide; clean them up after the test.
	for _, key := range []string{"APP_ENV", "TOKEN_SECRET", "REFRESH_TOKEN_SECRET", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestRedisAddrPrefersHostPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "ignored:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	assert.Equal(t, "cache:6380", redisAddr())
}
