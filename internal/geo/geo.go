// Package geo resolves request IPs to country names for audit records.
// Resolution is best-effort: lookups that fail for any reason yield the
// Unknown country and never abort a request.
package geo

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"

	"faucet/internal/models"
)

// Resolver maps an IP address to a country name.
type Resolver interface {
	// Country returns the country for the given IP, or models.CountryUnknown
	// when it cannot be determined.
	Country(ip string) string

	// Close releases any resources held by the resolver.
	Close() error
}

// NewResolver returns a MaxMind-backed resolver when geo lookup is enabled,
// otherwise a no-op resolver.
func NewResolver(cfg models.GeoConfig) (Resolver, error) {
	if !cfg.Enabled {
		return NoopResolver{}, nil
	}
	return NewMaxMindResolver(cfg.DatabasePath)
}

// MaxMindResolver resolves countries from a local GeoIP2/GeoLite2 database.
type MaxMindResolver struct {
	db *geoip2.Reader
}

// NewMaxMindResolver opens the GeoIP2 country database at the given path.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{db: db}, nil
}

// Country looks up the English country name for the IP.
func (r *MaxMindResolver) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return models.CountryUnknown
	}

	record, err := r.db.Country(parsed)
	if err != nil {
		slog.Debug("geo lookup failed", "ip", ip, "error", err)
		return models.CountryUnknown
	}
	if name := record.Country.Names["en"]; name != "" {
		return name
	}
	if record.Country.IsoCode != "" {
		return record.Country.IsoCode
	}
	return models.CountryUnknown
}

// Close closes the underlying database.
func (r *MaxMindResolver) Close() error {
	return r.db.Close()
}

// NoopResolver is used when geo lookup is disabled.
type NoopResolver struct{}

func (NoopResolver) Country(string) string { return models.CountryUnknown }
func (NoopResolver) Close() error          { return nil }
