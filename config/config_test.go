package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-engine/config"
	"github.com/warp/care-engine/generic"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.RecalcEnabled)
	assert.Equal(t, time.Hour, cfg.RecalcInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORSOrigins)

	s, err := cfg.Payroll()
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodBiweekly, s.Periods.Type)
	assert.Equal(t, generic.NewDate(2024, time.January, 1), s.Periods.Anchor)
	assert.Equal(t, time.UTC, s.Location)
	assert.True(t, s.OvertimeThreshold.Equal(decimal.NewFromInt(40)))
	assert.True(t, s.OvertimeMultiplier.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, s.Deductions.Federal.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, s.Deductions.Medicare.Equal(decimal.RequireFromString("0.0145")))
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CARE_HTTP_PORT", "9090")
	t.Setenv("CARE_PAY_PERIOD", "semimonthly")
	t.Setenv("CARE_TIMEZONE", "America/Chicago")
	t.Setenv("CARE_OVERTIME_THRESHOLD", "38.5")
	t.Setenv("CARE_STATE_RATE", "0")
	t.Setenv("CARE_RECALC_INTERVAL", "15m")
	t.Setenv("CARE_CORS_ORIGINS", "https://care.example.com,https://admin.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.RecalcInterval)
	assert.Equal(t, []string{"https://care.example.com", "https://admin.example.com"}, cfg.CORSOrigins)

	s, err := cfg.Payroll()
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodSemimonthly, s.Periods.Type)
	assert.Equal(t, "America/Chicago", s.Location.String())
	assert.True(t, s.OvertimeThreshold.Equal(decimal.RequireFromString("38.5")))
	assert.True(t, s.Deductions.State.IsZero())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown pay period", "CARE_PAY_PERIOD", "fortnightly"},
		{"bad anchor", "CARE_PAY_PERIOD_ANCHOR", "01/01/2024"},
		{"unknown timezone", "CARE_TIMEZONE", "Mars/Olympus"},
		{"negative rate", "CARE_FEDERAL_RATE", "-0.1"},
		{"non-numeric multiplier", "CARE_OVERTIME_MULTIPLIER", "one and a half"},
		{"bad port", "CARE_HTTP_PORT", "eighty"},
		{"bad interval", "CARE_RECALC_INTERVAL", "hourly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()

			assert.Error(t, err)
		})
	}
}
