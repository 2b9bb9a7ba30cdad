// Package config reads the gateway's environment-driven configuration and
// loads the initial credential pool from a newline-delimited file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Config holds everything the gateway needs at startup.
type Config struct {
	ListenAddr      string
	AdminKey        string
	UpstreamBaseURL string
	CredentialsFile string

	// OtelExporterEndpoint, if set, enables tracing and is the OTLP/HTTP
	// collector endpoint spans are exported to. Empty disables tracing.
	OtelExporterEndpoint string
	// OtelInsecure disables TLS on the OTLP/HTTP exporter connection, for
	// talking to a local collector. Defaults to true.
	OtelInsecure bool
}

const (
	defaultListenAddr      = ":8080"
	defaultUpstreamBaseURL = "https://codewhisperer.us-east-1.amazonaws.com"
)

// Load reads Config from the environment, applying defaults for
// KIROGATE_LISTEN_ADDR and KIROGATE_UPSTREAM_BASE_URL. KIROGATE_ADMIN_KEY
// is required; without it the admin surface would be unauthenticated.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:           envOr("KIROGATE_LISTEN_ADDR", defaultListenAddr),
		AdminKey:             os.Getenv("KIROGATE_ADMIN_KEY"),
		UpstreamBaseURL:      envOr("KIROGATE_UPSTREAM_BASE_URL", defaultUpstreamBaseURL),
		CredentialsFile:      os.Getenv("KIROGATE_CREDENTIALS_FILE"),
		OtelExporterEndpoint: os.Getenv("KIROGATE_OTEL_EXPORTER_ENDPOINT"),
		OtelInsecure:         envOr("KIROGATE_OTEL_INSECURE", "true") == "true",
	}
	if cfg.AdminKey == "" {
		return Config{}, fmt.Errorf("KIROGATE_ADMIN_KEY must be set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadCredentialTokens reads one refresh token per non-blank line from
// path. Lines starting with '#' are treated as comments.
func LoadCredentialTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan credentials file: %w", err)
	}
	return tokens, nil
}
