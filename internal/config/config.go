// Package config loads the environment-variable surface of spec §6.2
// into a typed Config, following the teacher's godotenv-then-os.Getenv
// convention: a .env file is loaded if present, then every recognized
// variable is read from the process environment with a default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yearn/yprice-go/internal/rtlog"
)

var logger = rtlog.New("config")

// Config is the fully-resolved, validated process configuration; there
// are no package-level globals downstream of this (spec §9: "realize as
// an explicit Runtime object... avoid package-global mutables").
type Config struct {
	ChainID uint64
	RPCURL  string

	CacheTTL           time.Duration
	ContractCacheTTL   time.Duration // zero means "never evict"
	GetLogsBatchSize   uint64        // 0 = auto
	GetLogsDOP         int
	ChecksumCacheSize  int

	DBProvider string
	SQLitePath string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	SkipCache      bool
	SkipYpriceAPI  bool
	YpriceAPIURL       string
	YpriceAPITimeout   time.Duration
	YpriceAPISemaphore int
	YpriceAPISigner    string
	YpriceAPISignature string
}

// Load reads .env (if present) then the process environment, applying
// spec §6.2's defaults and failing fast on the one documented
// inconsistency: a partially-set YPRICEAPI_SIGNER/SIGNATURE pair.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("config: failed to load .env, continuing with process environment only", "error", err)
	}

	cfg := Config{
		ChainID:            envUint64("CHAIN_ID", 1),
		RPCURL:             envString("RPC_URL", ""),
		CacheTTL:           time.Duration(envInt("CACHE_TTL", 3600)) * time.Second,
		GetLogsDOP:         envInt("GETLOGS_DOP", 32),
		GetLogsBatchSize:   envUint64("GETLOGS_BATCH_SIZE", 0),
		ChecksumCacheSize:  envInt("CHECKSUM_CACHE_MAXSIZE", 100_000),
		DBProvider:         envString("DB_PROVIDER", "embedded"),
		SQLitePath:         envString("SQLITE_PATH", defaultSQLitePath()),
		DBHost:             envString("DB_HOST", ""),
		DBPort:             envInt("DB_PORT", 5432),
		DBUser:             envString("DB_USER", ""),
		DBPassword:         envString("DB_PASSWORD", ""),
		DBName:             envString("DB_DATABASE", ""),
		SkipCache:          envBool("SKIP_CACHE", false),
		SkipYpriceAPI:      envBool("SKIP_YPRICEAPI", false),
		YpriceAPIURL:       envString("YPRICEAPI_URL", "https://ydaemon-price-api.yearn.fi"),
		YpriceAPITimeout:   time.Duration(envInt("YPRICEAPI_TIMEOUT", 10)) * time.Second,
		YpriceAPISemaphore: envInt("YPRICEAPI_SEMAPHORE", 8),
		YpriceAPISigner:    envString("YPRICEAPI_SIGNER", ""),
		YpriceAPISignature: envString("YPRICEAPI_SIGNATURE", ""),
	}

	if raw, ok := os.LookupEnv("CONTRACT_CACHE_TTL"); ok && raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: CONTRACT_CACHE_TTL: %w", err)
		}
		cfg.ContractCacheTTL = time.Duration(secs) * time.Second
	}

	if (cfg.YpriceAPISigner == "") != (cfg.YpriceAPISignature == "") {
		return Config{}, fmt.Errorf("config: YPRICEAPI_SIGNER and YPRICEAPI_SIGNATURE must both be set or both be empty")
	}
	if strings.ToLower(cfg.DBProvider) == "networked" {
		if cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBName == "" {
			return Config{}, fmt.Errorf("config: DB_PROVIDER=networked requires DB_HOST, DB_USER and DB_DATABASE")
		}
	}
	return cfg, nil
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "yprice.sqlite"
	}
	return filepath.Join(home, ".yprice", "yprice.sqlite")
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("config: invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envUint64(key string, def uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		logger.Warn("config: invalid unsigned integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("config: invalid boolean, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}
