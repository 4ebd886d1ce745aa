// Package config loads server configuration from CARE_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/payroll"
)

// Config captures environment driven configuration values for the server.
type Config struct {
	HTTPPort int    `env:"CARE_HTTP_PORT" envDefault:"8080"`
	DBPath   string `env:"CARE_DB_PATH"   envDefault:"care.db"`
	LogLevel string `env:"CARE_LOG_LEVEL" envDefault:"info"`
	Timezone string `env:"CARE_TIMEZONE"  envDefault:"UTC"`

	PayPeriod       string `env:"CARE_PAY_PERIOD"        envDefault:"biweekly"`
	PayPeriodAnchor string `env:"CARE_PAY_PERIOD_ANCHOR" envDefault:"2024-01-01"`

	OvertimeThreshold  string `env:"CARE_OVERTIME_THRESHOLD"  envDefault:"40"`
	OvertimeMultiplier string `env:"CARE_OVERTIME_MULTIPLIER" envDefault:"1.5"`

	FederalRate        string `env:"CARE_FEDERAL_RATE"         envDefault:"0.12"`
	StateRate          string `env:"CARE_STATE_RATE"           envDefault:"0.05"`
	SocialSecurityRate string `env:"CARE_SOCIAL_SECURITY_RATE" envDefault:"0.062"`
	MedicareRate       string `env:"CARE_MEDICARE_RATE"        envDefault:"0.0145"`

	RecalcEnabled  bool          `env:"CARE_RECALC_ENABLED"  envDefault:"true"`
	RecalcInterval time.Duration `env:"CARE_RECALC_INTERVAL" envDefault:"1h"`

	CORSOrigins []string `env:"CARE_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
}

// Load parses configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Payroll(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PayrollSettings is the payroll part of Config, parsed into domain types.
type PayrollSettings struct {
	Periods            generic.PeriodConfig
	Location           *time.Location
	OvertimeThreshold  decimal.Decimal
	OvertimeMultiplier decimal.Decimal
	Deductions         payroll.DeductionRates
}

// Payroll validates and converts the payroll settings.
func (c Config) Payroll() (PayrollSettings, error) {
	periodType, err := generic.ParsePeriodType(c.PayPeriod)
	if err != nil {
		return PayrollSettings{}, fmt.Errorf("CARE_PAY_PERIOD: %w", err)
	}
	anchor, err := generic.ParseDate(c.PayPeriodAnchor)
	if err != nil {
		return PayrollSettings{}, fmt.Errorf("CARE_PAY_PERIOD_ANCHOR: %w", err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return PayrollSettings{}, fmt.Errorf("CARE_TIMEZONE: %w", err)
	}

	s := PayrollSettings{
		Periods:  generic.PeriodConfig{Type: periodType, Anchor: anchor},
		Location: loc,
	}
	values := []decimalSetting{
		{"CARE_OVERTIME_THRESHOLD", c.OvertimeThreshold, &s.OvertimeThreshold},
		{"CARE_OVERTIME_MULTIPLIER", c.OvertimeMultiplier, &s.OvertimeMultiplier},
		{"CARE_FEDERAL_RATE", c.FederalRate, &s.Deductions.Federal},
		{"CARE_STATE_RATE", c.StateRate, &s.Deductions.State},
		{"CARE_SOCIAL_SECURITY_RATE", c.SocialSecurityRate, &s.Deductions.SocialSecurity},
		{"CARE_MEDICARE_RATE", c.MedicareRate, &s.Deductions.Medicare},
	}
	for _, v := range values {
		d, err := decimal.NewFromString(v.raw)
		if err != nil || d.IsNegative() {
			return PayrollSettings{}, fmt.Errorf("%s: invalid non-negative decimal %q", v.name, v.raw)
		}
		*v.target = d
	}
	return s, nil
}

type decimalSetting struct {
	name   string
	raw    string
	target *decimal.Decimal
}
