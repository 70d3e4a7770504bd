package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 90*time.Second, cfg.ExecuteTimeout())
	assert.Equal(t, 2*time.Minute, cfg.ClaimTTL())
	assert.Equal(t, 5*time.Minute, cfg.FailureCooldown())
	assert.Equal(t, int64(50), cfg.SlippageBufferBps())
	assert.Equal(t, int64(20), cfg.OnchainToleranceBps())
	assert.Equal(t, uint32(1_400_000), cfg.Keeper.PartialComputeUnits)
	assert.Equal(t, "keeper.db", cfg.Storage.DSN)
	assert.Equal(t, "STOP_KEEPER", cfg.Keeper.StopFile)
}

func TestLoad_YAMLValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
keeper:
  poll_interval_seconds: 2
  slippage_buffer_bps: 75
ledger:
  program_id: Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS
  skip_preflight: true
order_store:
  base_url: http://store:9000
`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, int64(75), cfg.SlippageBufferBps())
	assert.True(t, cfg.Ledger.SkipPreflight)
	assert.Equal(t, "http://store:9000", cfg.OrderStore.BaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KEEPER_RPC_URL", "http://rpc:8899")
	t.Setenv("KEEPER_PROGRAM_ID", "prog")
	t.Setenv("KEEPER_DB", ":memory:")
	t.Setenv("ORDER_STORE_URL", "http://env-store")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("KEEPER_SLIPPAGE_BUFFER_BPS", "30")

	cfg, err := Load(writeConfig(t, "ledger:\n  rpc_url: http://yaml-rpc\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://rpc:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, "prog", cfg.Ledger.ProgramID)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "http://env-store", cfg.OrderStore.BaseURL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int64(30), cfg.SlippageBufferBps())
}

func TestLoad_ExplicitZeroBuffers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "keeper:\n  slippage_buffer_bps: 0\n  onchain_tolerance_bps: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.SlippageBufferBps(), "0 disables the buffer")
	assert.Equal(t, int64(0), cfg.OnchainToleranceBps())

	t.Setenv("KEEPER_ONCHAIN_TOLERANCE_BPS", "0")
	cfg, err = Load(writeConfig(t, "keeper:\n  onchain_tolerance_bps: 35\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.OnchainToleranceBps(), "env 0 overrides YAML")
	assert.Equal(t, int64(50), cfg.SlippageBufferBps(), "unset still defaults")

	var bare Config
	assert.Equal(t, int64(50), bare.SlippageBufferBps())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read")

	_, err = Load(writeConfig(t, "keeper: [unclosed"))
	assert.ErrorContains(t, err, "parse YAML")

	_, err = Load(writeConfig(t, "keeper:\n  slippage_buffer_bps: 20000\n"))
	assert.ErrorContains(t, err, "out of range")

	t.Setenv("KEEPER_ONCHAIN_TOLERANCE_BPS", "abc")
	_, err = Load(writeConfig(t, "log:\n  level: info\n"))
	assert.ErrorContains(t, err, "KEEPER_ONCHAIN_TOLERANCE_BPS")
}
