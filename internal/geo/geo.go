package geo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver maps client IPs to ISO country codes. Implementations must be
// safe for concurrent use.
type Resolver interface {
	Country(ip string) (string, error)
	Close() error
}

// MaxMindResolver resolves countries from a MaxMind GeoLite2 database
// with a small TTL cache in front, since ingest traffic repeats IPs.
type MaxMindResolver struct {
	reader *maxminddb.Reader

	mu    sync.RWMutex
	cache map[string]cachedCountry
	ttl   time.Duration
}

type cachedCountry struct {
	code      string
	expiresAt time.Time
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

func NewMaxMindResolver(dbPath string, cacheTTL time.Duration) (*MaxMindResolver, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}

	return &MaxMindResolver{
		reader: reader,
		cache:  make(map[string]cachedCountry),
		ttl:    cacheTTL,
	}, nil
}

// Country returns the ISO country code for an IP, or "" when unknown.
func (r *MaxMindResolver) Country(ip string) (string, error) {
	r.mu.RLock()
	entry, ok := r.cache[ip]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.code, nil
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}

	var record countryRecord
	if err := r.reader.Lookup(parsed, &record); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[ip] = cachedCountry{code: record.Country.ISOCode, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return record.Country.ISOCode, nil
}

func (r *MaxMindResolver) Close() error {
	if r.reader != nil {
		return r.reader.Close()
	}
	return nil
}
