package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConfigNotFound is returned when a pricing config id does not exist
	ErrConfigNotFound = errors.New("pricing config not found")
)

// Config is a rate table. Rates are in minor currency units; storage and
// bandwidth rates are per GiB.
type Config struct {
	ID                    int64     `json:"id" yaml:"-"`
	Name                  string    `json:"name" yaml:"name"`
	Version               int       `json:"version" yaml:"version"`
	Currency              string    `json:"currency" yaml:"currency"`
	PricePerActiveStudent int64     `json:"price_per_active_student" yaml:"price_per_active_student"`
	PricePerGBStorage     int64     `json:"price_per_gb_storage" yaml:"price_per_gb_storage"`
	PricePerGBBandwidth   int64     `json:"price_per_gb_bandwidth" yaml:"price_per_gb_bandwidth"`
	PricePerCertificate   int64     `json:"price_per_certificate" yaml:"price_per_certificate"`
	FreeStudentsLimit     int64     `json:"free_students_limit" yaml:"free_students_limit"`
	FreeStorageGB         int64     `json:"free_storage_gb" yaml:"free_storage_gb"`
	FreeBandwidthGB       int64     `json:"free_bandwidth_gb" yaml:"free_bandwidth_gb"`
	IsActive              bool      `json:"is_active" yaml:"-"`
	CreatedAt             time.Time `json:"created_at,omitempty" yaml:"-"`
}

// DefaultConfig is used when no pricing config is active
func DefaultConfig() Config {
	return Config{
		Name:                  "default",
		Version:               1,
		Currency:              "usd",
		PricePerActiveStudent: 200,
		PricePerGBStorage:     10,
		PricePerGBBandwidth:   5,
		PricePerCertificate:   50,
		FreeStudentsLimit:     10,
		FreeStorageGB:         1,
		FreeBandwidthGB:       5,
	}
}

// IsFallback reports whether the config did not come from the database
func (c *Config) IsFallback() bool {
	return c.ID == 0
}

// Validate checks the config for values that would produce negative or undefined charges
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("pricing config name is required")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code, got %q", c.Currency)
	}
	values := map[string]int64{
		"price_per_active_student": c.PricePerActiveStudent,
		"price_per_gb_storage":     c.PricePerGBStorage,
		"price_per_gb_bandwidth":   c.PricePerGBBandwidth,
		"price_per_certificate":    c.PricePerCertificate,
		"free_students_limit":      c.FreeStudentsLimit,
		"free_storage_gb":          c.FreeStorageGB,
		"free_bandwidth_gb":        c.FreeBandwidthGB,
	}
	for _, field := range []string{
		"price_per_active_student", "price_per_gb_storage", "price_per_gb_bandwidth",
		"price_per_certificate", "free_students_limit", "free_storage_gb", "free_bandwidth_gb",
	} {
		if values[field] < 0 {
			return fmt.Errorf("%s must not be negative", field)
		}
	}
	return nil
}
