// Package config loads application configuration from an optional TOML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"
)

// Store backends.
const (
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
)

// Credential codecs.
const (
	CodecBase64 = "base64"
	CodecAESGCM = "aesgcm"
)

// DefaultByteCost is the default price of one byte of state: 10^19 units.
const DefaultByteCost = "10000000000000000000"

// Config holds the application configuration. Field tags name the keys of
// the optional TOML file; each key can be overridden by PASSVAULT_<KEY>.
type Config struct {
	ListenAddr      string  `toml:"listen_addr"`
	StoreBackend    string  `toml:"store_backend"`
	DBPath          string  `toml:"db_path"`
	LevelDBPath     string  `toml:"leveldb_path"`
	OwnerID         string  `toml:"owner_id"`
	StorageByteCost string  `toml:"storage_byte_cost"`
	RefundFloor     string  `toml:"refund_floor"`
	RefundQueue     int     `toml:"refund_queue"`
	Codec           string  `toml:"codec"`
	Secret          string  `toml:"secret"`
	RateLimit       float64 `toml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst"`
	LogLevel        string  `toml:"log_level"`
	LogFormat       string  `toml:"log_format"`

	byteCost    *uint256.Int
	refundFloor *uint256.Int
	level       slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:8080",
		StoreBackend:    BackendSQLite,
		DBPath:          "passvault.db",
		LevelDBPath:     "passvault.ldb",
		OwnerID:         "passvault",
		StorageByteCost: DefaultByteCost,
		RefundFloor:     "1",
		RefundQueue:     256,
		Codec:           CodecBase64,
		RateLimit:       50,
		RateBurst:       100,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// ByteCost returns the parsed price of one byte.
func (c *Config) ByteCost() *uint256.Int { return new(uint256.Int).Set(c.byteCost) }

// RefundFloorAmount returns the parsed refund floor.
func (c *Config) RefundFloorAmount() *uint256.Int { return new(uint256.Int).Set(c.refundFloor) }

// Level returns the parsed log level.
func (c *Config) Level() slog.Level { return c.level }

// Load reads configuration and returns a validated Config. If PASSVAULT_CONFIG
// names a TOML file it is decoded over the defaults first; PASSVAULT_* env
// vars then override individual keys.
func Load() (*Config, error) {
	cfg := Default()

	if path, ok := os.LookupEnv("PASSVAULT_CONFIG"); ok && path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PASSVAULT_LISTEN_ADDR":       &c.ListenAddr,
		"PASSVAULT_STORE_BACKEND":     &c.StoreBackend,
		"PASSVAULT_DB_PATH":           &c.DBPath,
		"PASSVAULT_LEVELDB_PATH":      &c.LevelDBPath,
		"PASSVAULT_OWNER_ID":          &c.OwnerID,
		"PASSVAULT_STORAGE_BYTE_COST": &c.StorageByteCost,
		"PASSVAULT_REFUND_FLOOR":      &c.RefundFloor,
		"PASSVAULT_CODEC":             &c.Codec,
		"PASSVAULT_SECRET":            &c.Secret,
		"PASSVAULT_LOG_LEVEL":         &c.LogLevel,
		"PASSVAULT_LOG_FORMAT":        &c.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PASSVAULT_REFUND_QUEUE": &c.RefundQueue,
		"PASSVAULT_RATE_BURST":   &c.RateBurst,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("PASSVAULT_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PASSVAULT_RATE_LIMIT has invalid number %q: %w", v, err)
		}
		c.RateLimit = f
	}
	return nil
}

// Validate checks every field and caches the parsed amounts and log level.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendSQLite, BackendLevelDB:
	default:
		errs = append(errs, fmt.Errorf("store backend %q: want %s or %s", c.StoreBackend, BackendSQLite, BackendLevelDB))
	}

	switch c.Codec {
	case CodecBase64:
	case CodecAESGCM:
		if c.Secret == "" {
			errs = append(errs, errors.New("codec aesgcm requires PASSVAULT_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("codec %q: want %s or %s", c.Codec, CodecBase64, CodecAESGCM))
	}

	if strings.TrimSpace(c.OwnerID) == "" {
		errs = append(errs, errors.New("owner id must not be empty"))
	}

	var err error
	if c.byteCost, err = uint256.FromDecimal(c.StorageByteCost); err != nil {
		errs = append(errs, fmt.Errorf("storage byte cost %q: %w", c.StorageByteCost, err))
	} else if c.byteCost.IsZero() {
		errs = append(errs, errors.New("storage byte cost must be positive"))
	}
	if c.refundFloor, err = uint256.FromDecimal(c.RefundFloor); err != nil {
		errs = append(errs, fmt.Errorf("refund floor %q: %w", c.RefundFloor, err))
	}

	if c.RefundQueue < 0 {
		errs = append(errs, fmt.Errorf("refund queue %d must not be negative", c.RefundQueue))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit %v must not be negative", c.RateLimit))
	}

	if err := c.level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log level %q: %w", c.LogLevel, err))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q: want text or json", c.LogFormat))
	}

	return errors.Join(errs...)
}
