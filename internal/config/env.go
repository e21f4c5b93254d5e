package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: invalid integer %q", key, val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: invalid number %q", key, val)
	}
	return f, nil
}

func getEnvDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: invalid decimal %q", key, val)
	}
	return d, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: invalid duration %q", key, val)
	}
	return d, nil
}

func getEnvTime(key string) (time.Time, error) {
	val := os.Getenv(key)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := ParseTime(val)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %v", key, err)
	}
	return t, nil
}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05" or a bare date, in UTC
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}
