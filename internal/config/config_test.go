package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"KIROGATE_LISTEN_ADDR",
		"KIROGATE_ADMIN_KEY",
		"KIROGATE_UPSTREAM_BASE_URL",
		"KIROGATE_CREDENTIALS_FILE",
		"KIROGATE_OTEL_EXPORTER_ENDPOINT",
		"KIROGATE_OTEL_INSECURE",
	} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_RequiresAdminKey(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("KIROGATE_ADMIN_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.AdminKey)
	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, defaultUpstreamBaseURL, cfg.UpstreamBaseURL)
	assert.Empty(t, cfg.CredentialsFile)
	assert.Empty(t, cfg.OtelExporterEndpoint)
	assert.True(t, cfg.OtelInsecure)
}

func TestLoad_OtelExporterEndpointOptIn(t *testing.T) {
	clearEnv(t)
	os.Setenv("KIROGATE_ADMIN_KEY", "secret")
	os.Setenv("KIROGATE_OTEL_EXPORTER_ENDPOINT", "collector.internal:4318")
	os.Setenv("KIROGATE_OTEL_INSECURE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "collector.internal:4318", cfg.OtelExporterEndpoint)
	assert.False(t, cfg.OtelInsecure)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("KIROGATE_ADMIN_KEY", "secret")
	os.Setenv("KIROGATE_LISTEN_ADDR", ":9090")
	os.Setenv("KIROGATE_UPSTREAM_BASE_URL", "https://upstream.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "https://upstream.example", cfg.UpstreamBaseURL)
}

func TestLoadCredentialTokens_SkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.txt")
	content := "# a comment\n\n  token-one  \ntoken-two\n   \n# another\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tokens, err := LoadCredentialTokens(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"token-one", "token-two"}, tokens)
}

func TestLoadCredentialTokens_MissingFile(t *testing.T) {
	_, err := LoadCredentialTokens("/nonexistent/path/creds.txt")
	require.Error(t, err)
}
