package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3600*time.Second, cfg.CacheTTL)
	require.Equal(t, 32, cfg.GetLogsDOP)
	require.Equal(t, 100_000, cfg.ChecksumCacheSize)
	require.Equal(t, "embedded", cfg.DBProvider)
	require.Equal(t, "https://ydaemon-price-api.yearn.fi", cfg.YpriceAPIURL)
	require.Equal(t, 8, cfg.YpriceAPISemaphore)
	require.Equal(t, time.Duration(0), cfg.ContractCacheTTL)
}

func TestLoadParsesContractCacheTTL(t *testing.T) {
	t.Setenv("CONTRACT_CACHE_TTL", "120")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 120*time.Second, cfg.ContractCacheTTL)
}

func TestLoadRejectsPartialSignerPair(t *testing.T) {
	t.Setenv("YPRICEAPI_SIGNER", "0xabc")
	t.Setenv("YPRICEAPI_SIGNATURE", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAcceptsCompleteSignerPair(t *testing.T) {
	t.Setenv("YPRICEAPI_SIGNER", "0xabc")
	t.Setenv("YPRICEAPI_SIGNATURE", "0xdef")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0xabc", cfg.YpriceAPISigner)
	require.Equal(t, "0xdef", cfg.YpriceAPISignature)
}

func TestLoadRejectsNetworkedWithoutHost(t *testing.T) {
	t.Setenv("DB_PROVIDER", "networked")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAcceptsNetworkedWithRequiredFields(t *testing.T) {
	t.Setenv("DB_PROVIDER", "networked")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "yprice")
	t.Setenv("DB_DATABASE", "yprice")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "networked", cfg.DBProvider)
}

func TestLoadFallsBackOnUnparseableInt(t *testing.T) {
	t.Setenv("GETLOGS_DOP", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 32, cfg.GetLogsDOP)
}
