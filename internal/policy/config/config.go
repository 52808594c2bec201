// Package config loads and validates the policy engine's configuration from
// environment variables, layered over defaults, following the same
// koanf + validator pattern as the rest of the rr-dns-derived stack.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds every configuration key recognized by the core
// (SPEC_FULL.md §6).
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log   LoggingConfig   `koanf:"log" validate:"required"`
	Store StoreConfig     `koanf:"store" validate:"required"`
	LRU   LRUConfig       `koanf:"lru" validate:"required"`
	Bloom BloomConfig     `koanf:"bloom" validate:"required"`
	Regex RegexConfig     `koanf:"regex" validate:"required"`
	Alias AliasConfig     `koanf:"alias" validate:"required"`
	Sink  SinkholeConfig  `koanf:"sinkhole" validate:"required"`
	Up    UpstreamsConfig `koanf:"upstream" validate:"required"`
}

type LoggingConfig struct {
	// Level defines the logging level: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// StoreConfig configures the Persistent Store Gateway (spec.md §4.2, §6).
type StoreConfig struct {
	// Path to the sqlite database file backing all rule tables.
	Path string `koanf:"path" validate:"required"`

	// PoolSize is P, the number of pooled read-only connections. Default 32.
	PoolSize int `koanf:"poolsize" validate:"required,gte=1,lte=1024"`

	// PageCacheBytes is C, the shared page cache size in bytes. Default 40 GiB.
	PageCacheBytes int64 `koanf:"pagecachebytes" validate:"required,gte=0"`
}

// LRUConfig configures the LRU Disposition Cache (spec.md §4.4).
type LRUConfig struct {
	// Capacity is the total number of cached entries across all shards.
	// 0 disables the cache. Default 10000.
	Capacity int `koanf:"capacity" validate:"gte=0"`

	// Shards is the number of independent LRU shards (spec.md §4.4 explicitly
	// permits and encourages sharding to relieve lock contention).
	Shards int `koanf:"shards" validate:"required,gte=1,lte=256"`
}

// BloomConfig configures the Bloom Pre-filter (spec.md §4.3).
type BloomConfig struct {
	// Capacity is the expected exact-block cardinality the filter is sized for.
	Capacity uint64 `koanf:"capacity" validate:"required,gte=1"`

	// FPRate is the target false-positive rate. Default 0.01.
	FPRate float64 `koanf:"fprate" validate:"required,gt=0,lt=1"`
}

// RegexConfig configures the Regex Bucket Engine (spec.md §4.5).
type RegexConfig struct {
	// HardCap refuses to load block_regex if the pattern count exceeds this.
	// Default 1_000_000.
	HardCap int `koanf:"hardcap" validate:"required,gte=1"`

	// WarnAt logs a warning once the loaded pattern count crosses this.
	// Default 100_000.
	WarnAt int `koanf:"warnat" validate:"required,gte=1"`
}

// AliasConfig configures domain_alias expansion (spec.md §4.6.3).
type AliasConfig struct {
	// MaxDepth bounds alias re-entry into Classify. Default 4.
	MaxDepth int `koanf:"maxdepth" validate:"required,gte=1,lte=64"`
}

// SinkholeConfig configures the synthetic TERMINATE answer (spec.md §3.1).
type SinkholeConfig struct {
	V4 string `koanf:"v4" validate:"required,ip4_addr"`
	V6 string `koanf:"v6" validate:"required,ip6_addr"`
}

// UpstreamsConfig names the forwarding targets for non-TERMINATE dispositions
// (spec.md §6). These are consumed by the DNS front-end, not the core, but
// are validated here since the core is the component that decides which one
// applies.
type UpstreamsConfig struct {
	DNSBlockResolver string `koanf:"dnsblockresolver" validate:"required,ip_port"`
	DNSAllowResolver string `koanf:"dnsallowresolver" validate:"required,ip_port"`
	DefaultUpstream  string `koanf:"defaultupstream" validate:"required,ip_port"`
}

// DefaultAppConfig defines the default configuration, matching the defaults
// called out throughout spec.md §4 and §6.
var DefaultAppConfig = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Store: StoreConfig{
		Path:           "/var/lib/policyengine/rules.db",
		PoolSize:       32,
		PageCacheBytes: 40 << 30, // 40 GiB
	},
	LRU: LRUConfig{
		Capacity: 10_000,
		Shards:   16,
	},
	Bloom: BloomConfig{
		Capacity: 100_000_000,
		FPRate:   0.01,
	},
	Regex: RegexConfig{
		HardCap: 1_000_000,
		WarnAt:  100_000,
	},
	Alias: AliasConfig{
		MaxDepth: 4,
	},
	Sink: SinkholeConfig{
		V4: "0.0.0.0",
		V6: "::",
	},
	Up: UpstreamsConfig{
		DNSBlockResolver: "127.0.0.1:5301",
		DNSAllowResolver: "127.0.0.1:5302",
		DefaultUpstream:  "1.1.1.1:53",
	},
}

// validIPPort validates "ip:port" shaped strings (e.g. upstream resolver
// targets).
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

func validIP4Addr(fl validator.FieldLevel) bool {
	ip := net.ParseIP(fl.Field().String())
	return ip != nil && ip.To4() != nil
}

func validIP6Addr(fl validator.FieldLevel) bool {
	ip := net.ParseIP(fl.Field().String())
	return ip != nil && ip.To4() == nil
}

// envLoader loads environment variables with the prefix "POLICY_", lower-
// casing keys and replacing "_" with "." to match the nested koanf schema.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "POLICY_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "POLICY_")), "_", ".")
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

var registerValidations = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	if err := v.RegisterValidation("ip4_addr", validIP4Addr); err != nil {
		return err
	}
	return v.RegisterValidation("ip6_addr", validIP6Addr)
}

// Load parses environment variables into an AppConfig, applying defaults
// and validating the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidations(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
