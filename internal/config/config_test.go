package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
markets:
  - id: BTC/USD
    base_asset: BTC
    quote_asset: USD
    tick_size: "0.01"
    step_size: "0.001"
    min_price: "0.01"
    max_price: "1000000"
    min_quantity: "0.001"
    max_quantity: "10000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1000, cfg.MarketData.RecentTradesCapacity)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "BTC/USD", cfg.Markets[0].ID)

	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNoMarkets(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingAssets(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
markets:
  - id: BTC/USD
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
