package aggregator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultRates maps ISO currency codes to units per USD.
var defaultRates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.85,
	"GBP": 0.73,
	"CAD": 1.35,
	"AUD": 1.52,
}

// ConvertToUSD converts an amount in the given currency to USD. Unknown
// currency codes pass through unchanged rather than failing: a missing rate
// must never make a billing record disappear from a report.
func (a *Aggregator) ConvertToUSD(amount float64, currency string) float64 {
	rate, ok := a.rates[strings.ToUpper(currency)]
	if !ok || rate <= 0 {
		return amount
	}
	return amount / rate
}

// UpdateCurrencyRates is a hook for a future live-rate fetch. It currently
// refreshes nothing; it must never fail, only log.
func (a *Aggregator) UpdateCurrencyRates(ctx context.Context) {
	a.logger.Debug("currency rate refresh skipped: no live rate source configured")
}

// LoadRatesFile merges rates from a YAML file into the table. Intended for
// host wiring before the aggregator starts serving; failures are logged and
// the built-in table stays in effect.
func (a *Aggregator) LoadRatesFile(path string) {
	rates, err := readRatesFile(path)
	if err != nil {
		a.logger.Warn("load currency rates failed, using built-in table", "path", path, "error", err)
		return
	}
	for code, rate := range rates {
		a.rates[strings.ToUpper(code)] = rate
	}
	a.logger.Info("currency rates loaded", "path", path, "count", len(rates))
}

func readRatesFile(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}

	var file struct {
		Rates map[string]float64 `yaml:"rates"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}
	if len(file.Rates) == 0 {
		return nil, fmt.Errorf("rates file %q defines no rates", path)
	}
	for code, rate := range file.Rates {
		if rate <= 0 {
			return nil, fmt.Errorf("rate for %q must be positive, got %v", code, rate)
		}
	}
	return file.Rates, nil
}
