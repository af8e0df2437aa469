// Package geo resolves a client IP into an approximate city and country.
// Lookups are best effort: they are bounded by a timeout and never fail.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	Unknown = "Unknown"
	Local   = "Local"

	defaultEndpoint = "https://ipapi.co/%s/json/"
	defaultTimeout  = 3 * time.Second
)

type Location struct {
	City    string
	Country string
}

var (
	unknownLocation = Location{City: Unknown, Country: Unknown}
	localLocation   = Location{City: Local, Country: Local}
)

// Locator is the geolocation collaborator.
type Locator interface {
	Lookup(ctx context.Context, ip string) Location
}

type Config struct {
	// Endpoint is a fmt pattern with one %s for the IP.
	Endpoint string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{Endpoint: os.Getenv("GEO_ENDPOINT"), Timeout: defaultTimeout}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if d, err := time.ParseDuration(os.Getenv("GEO_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

// HTTPLocator queries an ipapi.co compatible JSON endpoint.
type HTTPLocator struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

func NewHTTPLocator(cfg Config, client *http.Client, logger *zap.SugaredLogger) *HTTPLocator {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPLocator{client: client, endpoint: cfg.Endpoint, timeout: cfg.Timeout, logger: logger}
}

type ipapiResponse struct {
	City        string `json:"city"`
	CountryName string `json:"country_name"`
	Error       bool   `json:"error"`
}

// Lookup resolves ip. Loopback addresses are Local; every failure is Unknown.
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) Location {
	ip = strings.TrimSpace(ip)
	if isLoopback(ip) {
		return localLocation
	}
	if net.ParseIP(ip) == nil {
		return unknownLocation
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	loc, err := l.fetch(ctx, ip)
	if err != nil {
		if l.logger != nil {
			l.logger.Debugw("geolocation lookup failed", "ip", ip, "err", err)
		}
		return unknownLocation
	}
	return loc
}

func (l *HTTPLocator) fetch(ctx context.Context, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(l.endpoint, ip), nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, err
	}
	if body.Error {
		return Location{}, fmt.Errorf("lookup rejected")
	}
	return Location{City: orUnknown(body.City), Country: orUnknown(body.CountryName)}, nil
}

func isLoopback(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
