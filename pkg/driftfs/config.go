package driftfs

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefaultMetaURL is used when a config leaves the metadata endpoint empty.
const DefaultMetaURL = "redis://127.0.0.1:6379/1"

// SessionConfig carries the mount options for one session. The yaml tags
// serve file-based configuration; the json tags produce the exact option
// map the native client expects at mount time. Durations are whole seconds
// because that is how the native client reads them.
type SessionConfig struct {
	Meta           string `yaml:"meta" json:"meta"`
	ReadOnly       bool   `yaml:"read_only" json:"readOnly"`
	CacheDir       string `yaml:"cache_dir" json:"cacheDir"`
	CacheSizeMB    int    `yaml:"cache_size_mb" json:"cacheSize"`
	CacheFullBlock bool   `yaml:"cache_full_block" json:"cacheFullBlock"`
	MemorySizeMB   int    `yaml:"memory_size_mb" json:"memorySize"`
	FreeSpace      string `yaml:"free_space" json:"freeSpace"`
	AutoCreate     bool   `yaml:"auto_create" json:"autoCreate"`
	FastResolve    bool   `yaml:"fast_resolve" json:"fastResolve"`
	OpenCache      bool   `yaml:"open_cache" json:"opencache"`
	Prefetch       int    `yaml:"prefetch" json:"prefetch"`
	ReadAhead      int    `yaml:"readahead" json:"readahead"`
	Writeback      bool   `yaml:"writeback" json:"writeback"`
	MaxUploads     int    `yaml:"max_uploads" json:"maxUploads"`
	UploadLimit    int    `yaml:"upload_limit" json:"uploadLimit"`
	GetTimeoutSec  int    `yaml:"get_timeout_sec" json:"getTimeout"`
	PutTimeoutSec  int    `yaml:"put_timeout_sec" json:"putTimeout"`
	AccessLog      string `yaml:"access_log" json:"accessLog"`
	Debug          bool   `yaml:"debug" json:"debug"`
	NoUsageReport  bool   `yaml:"no_usage_report" json:"noUsageReport"`
	PushGateway    string `yaml:"push_gateway" json:"pushGateway"`
	PushAuth       string `yaml:"push_auth" json:"pushAuth"`
	PushIntervalS  int    `yaml:"push_interval_sec" json:"pushInterval"`

	// Extra is passed through to the native client verbatim, for mount
	// flags this SDK does not model.
	Extra map[string]interface{} `yaml:"extra" json:"-"`
}

// NewDefaultConfig returns a configuration with the native client's
// defaults.
func NewDefaultConfig() *SessionConfig {
	return &SessionConfig{
		Meta:           "",
		ReadOnly:       false,
		CacheDir:       "memory",
		CacheSizeMB:    100,
		CacheFullBlock: true,
		MemorySizeMB:   300,
		FreeSpace:      "0.1",
		AutoCreate:     true,
		FastResolve:    true,
		OpenCache:      false,
		Prefetch:       1,
		ReadAhead:      0,
		Writeback:      false,
		MaxUploads:     20,
		UploadLimit:    0,
		GetTimeoutSec:  5,
		PutTimeoutSec:  60,
		AccessLog:      "",
		Debug:          false,
		NoUsageReport:  true,
		PushGateway:    "",
		PushAuth:       "",
		PushIntervalS:  10,
	}
}

// LoadFromFile overlays configuration from a YAML file.
func (c *SessionConfig) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays configuration from DRIFTFS_* environment variables.
func (c *SessionConfig) LoadFromEnv() {
	if val := os.Getenv("DRIFTFS_META"); val != "" {
		c.Meta = val
	}
	if val := os.Getenv("DRIFTFS_CACHE_DIR"); val != "" {
		c.CacheDir = val
	}
	if val := os.Getenv("DRIFTFS_CACHE_SIZE_MB"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.CacheSizeMB = size
		}
	}
	if val := os.Getenv("DRIFTFS_READ_ONLY"); val != "" {
		c.ReadOnly = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DRIFTFS_MAX_UPLOADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxUploads = n
		}
	}
	if val := os.Getenv("DRIFTFS_PUSH_GATEWAY"); val != "" {
		c.PushGateway = val
	}
	if val := os.Getenv("DRIFTFS_DEBUG"); val != "" {
		c.Debug = strings.ToLower(val) == "true"
	}
}

// Validate checks the configuration before it is handed to the native
// client.
func (c *SessionConfig) Validate() error {
	if c.CacheSizeMB <= 0 {
		return fmt.Errorf("cache_size_mb must be greater than 0")
	}
	if c.MemorySizeMB <= 0 {
		return fmt.Errorf("memory_size_mb must be greater than 0")
	}
	if c.MaxUploads <= 0 {
		return fmt.Errorf("max_uploads must be greater than 0")
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch cannot be negative")
	}
	if c.GetTimeoutSec <= 0 || c.PutTimeoutSec <= 0 {
		return fmt.Errorf("get/put timeouts must be greater than 0")
	}
	if c.PushGateway != "" && c.PushIntervalS <= 0 {
		return fmt.Errorf("push_interval_sec must be greater than 0 when a push gateway is set")
	}
	return nil
}

// nativeOptions encodes the config as the JSON option map the native mount
// call consumes, with Extra merged on top.
func (c *SessionConfig) nativeOptions() ([]byte, error) {
	base, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// withDefaults returns a copy with unset fields resolved against the
// defaults. A nil receiver yields the full default configuration. Boolean
// options keep their zero value; there is no way to tell "unset" from
// "false".
func (c *SessionConfig) withDefaults() *SessionConfig {
	cfg := NewDefaultConfig()
	if c == nil {
		cfg.Meta = DefaultMetaURL
		return cfg
	}
	def := *cfg
	*cfg = *c
	if cfg.Meta == "" {
		cfg.Meta = DefaultMetaURL
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = def.CacheDir
	}
	if cfg.CacheSizeMB == 0 {
		cfg.CacheSizeMB = def.CacheSizeMB
	}
	if cfg.MemorySizeMB == 0 {
		cfg.MemorySizeMB = def.MemorySizeMB
	}
	if cfg.FreeSpace == "" {
		cfg.FreeSpace = def.FreeSpace
	}
	if cfg.MaxUploads == 0 {
		cfg.MaxUploads = def.MaxUploads
	}
	if cfg.GetTimeoutSec == 0 {
		cfg.GetTimeoutSec = def.GetTimeoutSec
	}
	if cfg.PutTimeoutSec == 0 {
		cfg.PutTimeoutSec = def.PutTimeoutSec
	}
	if cfg.PushIntervalS == 0 {
		cfg.PushIntervalS = def.PushIntervalS
	}
	return cfg
}
