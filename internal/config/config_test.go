package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	require.NoError(t, Load(""))
	c := Get()

	assert.Equal(t, ":8080", c.HttpListenAddr)
	assert.Equal(t, time.Minute, c.SweepInterval)
	assert.Equal(t, 10*time.Minute, c.SweepGracePeriod)
	assert.Equal(t, 24*time.Hour, c.SweepExpireAfter)
	assert.Equal(t, 1000, c.DispatchMaxRecipients)
	assert.Equal(t, uint(1), c.PaymentRechargeCreditsPerUnit)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nSWEEP_BATCH_SIZE=7\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("SWEEP_BATCH_SIZE")
	})

	require.NoError(t, Load(path))
	assert.Equal(t, "from-file", Get().JWTSecret)
	assert.Equal(t, 7, Get().SweepBatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.env")))
}
