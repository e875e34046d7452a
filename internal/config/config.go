package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values (production)
const (
	DefaultDomain       = "warpcall.qzz.io"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultSTUNFallback = "stun:stun1.l.google.com:19302"
	DefaultMediaTimeout = 10 * time.Second
)

// Config holds the caller-side configuration.
type Config struct {
	// Domain is the relay domain, or a full ws(s)/http(s) URL for local relays.
	Domain string

	// WebSocketURL is derived from Domain.
	WebSocketURL string

	// STUNServers are handed to the peer connection as ICE servers.
	STUNServers []string

	// MediaTimeout bounds how long a role assignment waits for local media.
	MediaTimeout time.Duration
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	ConfigFile   string
	Domain       string
	STUNServer   string
	MediaTimeout time.Duration
}

// fileConfig is the optional YAML config file layout.
type fileConfig struct {
	Domain       string   `yaml:"domain"`
	STUNServers  []string `yaml:"stun_servers"`
	MediaTimeout string   `yaml:"media_timeout"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file (--config or WARPCALL_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv("WARPCALL_CONFIG")
	}

	var file fileConfig
	if path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	domain := firstNonEmpty(opts.Domain, os.Getenv("DOMAIN"), file.Domain, DefaultDomain)

	stunServers := []string{DefaultSTUN, DefaultSTUNFallback}
	switch {
	case opts.STUNServer != "":
		stunServers = []string{opts.STUNServer}
	case os.Getenv("STUN_SERVER") != "":
		stunServers = splitList(os.Getenv("STUN_SERVER"))
	case len(file.STUNServers) > 0:
		stunServers = file.STUNServers
	}

	mediaTimeout := DefaultMediaTimeout
	if file.MediaTimeout != "" {
		d, err := time.ParseDuration(file.MediaTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid media_timeout in %s: %w", path, err)
		}
		mediaTimeout = d
	}
	if v := os.Getenv("MEDIA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MEDIA_TIMEOUT: %w", err)
		}
		mediaTimeout = d
	}
	if opts.MediaTimeout > 0 {
		mediaTimeout = opts.MediaTimeout
	}
	if mediaTimeout <= 0 {
		return nil, errors.New("media timeout must be positive")
	}

	wsURL, err := websocketURL(domain)
	if err != nil {
		return nil, err
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: wsURL,
		STUNServers:  stunServers,
		MediaTimeout: mediaTimeout,
	}, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// websocketURL turns a bare domain into wss://domain/ws. A domain given as a
// URL keeps its host and path; http(s) schemes are mapped to ws(s).
func websocketURL(domain string) (string, error) {
	if !strings.Contains(domain, "://") {
		return fmt.Sprintf("wss://%s/ws", domain), nil
	}

	u, err := url.Parse(domain)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in domain", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// GetRoomLink returns the shareable URL for a room ID.
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/r/%s", c.httpBase(), roomID)
}

// RoomEndpoint is the relay endpoint that hands out fresh room IDs.
func (c *Config) RoomEndpoint() string {
	return c.httpBase() + "/room"
}

func (c *Config) httpBase() string {
	u, err := url.Parse(c.WebSocketURL)
	if err != nil {
		return "https://" + c.Domain
	}
	scheme := "https"
	if u.Scheme == "ws" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return append([]string(nil), c.STUNServers...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
