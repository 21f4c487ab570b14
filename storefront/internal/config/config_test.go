package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, BackendSQLite, cfg.CartBackend)
	assert.Equal(t, "cart", cfg.CartSlot)
	assert.Equal(t, "default", cfg.SessionID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CART_BACKEND", "redis")
	t.Setenv("SESSION_ID", "tab-1")
	t.Setenv("SUBMIT_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.CartBackend)
	assert.Equal(t, "tab-1", cfg.SessionID)
	assert.Equal(t, 3*time.Second, cfg.SubmitTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"CART_BACKEND":   "etcd",
		"SUBMIT_TIMEOUT": "0s",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
