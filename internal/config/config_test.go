package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMarlinEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				if len(e) > 7 && e[:7] == "MARLIN_" {
					os.Unsetenv(e[:i])
				}
				break
			}
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearMarlinEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "plain", cfg.Encryption.Level)
	assert.True(t, cfg.Server.HTTPCompression)
	assert.Equal(t, int64(1048576), cfg.Server.StreamingLimit)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.TracingStdout)
}

func TestLoad_RejectsEncryptionWithoutPassword(t *testing.T) {
	clearMarlinEnv(t)
	t.Setenv("MARLIN_ENCRYPTION_LEVEL", "body")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidEncryptionLevel(t *testing.T) {
	clearMarlinEnv(t)
	t.Setenv("MARLIN_ENCRYPTION_LEVEL", "ultra")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsStreamingLimitTooSmall(t *testing.T) {
	clearMarlinEnv(t)
	t.Setenv("MARLIN_SERVER_STREAMING_LIMIT", "100")

	_, err := Load()
	assert.Error(t, err)
}

func TestServerConfig_Address(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9090}
	assert.Equal(t, "127.0.0.1:9090", s.Address())
}
