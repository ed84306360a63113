// Package config はアプリケーション設定の読み込みを提供する。
// YAMLファイル（任意）を読み込んだ後、環境変数で上書きする。
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnv は設定ファイルのパスを指定する環境変数名。
const ConfigFileEnv = "BOOKMAN_CONFIG"

// 設定キー。YAMLのキーは小文字、環境変数は同じ名前の大文字で指定する。
const (
	keyDatabaseURL       = "database_url"
	keyDBMaxOpenConns    = "db_max_open_conns"
	keyDBMaxIdleConns    = "db_max_idle_conns"
	keyDBConnMaxLifetime = "db_conn_max_lifetime"
	keyServerPort        = "server_port"
	keyTokenTTL          = "token_ttl"
	keyTokenStoreDir     = "token_store_dir"
	keyBcryptCost        = "bcrypt_cost"
	keyCORSAllowedOrigin = "cors_allowed_origin"
	keyTrustedProxies    = "trusted_proxies"
	keyRateLimitGeneral  = "rate_limit_general"
	keyRateLimitLogin    = "rate_limit_login"
	keyLoanPeriod        = "loan_period"
	keyOverdueInterval   = "overdue_interval"
	keyLogLevel          = "log_level"
)

var knownKeys = map[string]bool{
	keyDatabaseURL:       true,
	keyDBMaxOpenConns:    true,
	keyDBMaxIdleConns:    true,
	keyDBConnMaxLifetime: true,
	keyServerPort:        true,
	keyTokenTTL:          true,
	keyTokenStoreDir:     true,
	keyBcryptCost:        true,
	keyCORSAllowedOrigin: true,
	keyTrustedProxies:    true,
	keyRateLimitGeneral:  true,
	keyRateLimitLogin:    true,
	keyLoanPeriod:        true,
	keyOverdueInterval:   true,
	keyLogLevel:          true,
}

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Server
	ServerPort string

	// Token
	TokenTTL      time.Duration
	TokenStoreDir string // 空の場合はインメモリ

	// Password
	BcryptCost int

	// CORS
	CORSAllowedOrigin string

	// 転送ヘッダー（X-Forwarded-For等）を信頼するプロキシのCIDR。空の場合は信頼しない
	TrustedProxies []netip.Prefix

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitLogin   int

	// Overdue
	LoanPeriod      time.Duration
	OverdueInterval time.Duration

	// Logging
	LogLevel string
}

// Option はLoadの挙動を変更する。
type Option func(*loader)

type loader struct {
	filePath string
}

// WithConfigFile は読み込むYAMLファイルのパスを指定する。
// 指定がない場合はBOOKMAN_CONFIG環境変数を参照する。
func WithConfigFile(path string) Option {
	return func(l *loader) {
		l.filePath = path
	}
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// 環境変数はファイルの値より優先される。
// 必須項目が未設定の場合、または値が範囲外の場合はエラーを返す。
func Load(opts ...Option) (*Config, error) {
	l := &loader{filePath: os.Getenv(ConfigFileEnv)}
	for _, opt := range opts {
		opt(l)
	}

	k := koanf.New(".")

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", l.filePath, err)
		}
	}

	// DATABASE_URL -> database_url。未知の環境変数と空の値は読み込まない
	if err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, interface{}) {
		key := strings.ToLower(name)
		if !knownKeys[key] || value == "" {
			return "", nil
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}

	cfg.DatabaseURL = k.String(keyDatabaseURL)
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required configuration is not set: %v", []string{"DATABASE_URL"})
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getInt(k, keyDBMaxOpenConns, 20)
	cfg.DBMaxIdleConns = getInt(k, keyDBMaxIdleConns, 5)
	cfg.DBConnMaxLifetime = getDuration(k, keyDBConnMaxLifetime, 30*time.Minute)
	cfg.ServerPort = getString(k, keyServerPort, "8080")
	cfg.TokenTTL = getDuration(k, keyTokenTTL, 24*time.Hour)
	cfg.TokenStoreDir = getString(k, keyTokenStoreDir, "")
	cfg.BcryptCost = getInt(k, keyBcryptCost, 10)
	cfg.CORSAllowedOrigin = getString(k, keyCORSAllowedOrigin, "*")
	trustedProxies, err := parseTrustedProxies(getStrings(k, keyTrustedProxies))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = trustedProxies
	cfg.RateLimitGeneral = getInt(k, keyRateLimitGeneral, 120)
	cfg.RateLimitLogin = getInt(k, keyRateLimitLogin, 10)
	cfg.LoanPeriod = getDuration(k, keyLoanPeriod, 14*24*time.Hour)
	cfg.OverdueInterval = getDuration(k, keyOverdueInterval, time.Hour)
	cfg.LogLevel = strings.ToLower(getString(k, keyLogLevel, "info"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var invalid []string

	if c.TokenTTL <= 0 {
		invalid = append(invalid, "TOKEN_TTL")
	}
	// bcryptが受け付けるコストの範囲
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		invalid = append(invalid, "BCRYPT_COST")
	}
	if c.RateLimitGeneral <= 0 {
		invalid = append(invalid, "RATE_LIMIT_GENERAL")
	}
	if c.RateLimitLogin <= 0 {
		invalid = append(invalid, "RATE_LIMIT_LOGIN")
	}
	if c.LoanPeriod <= 0 {
		invalid = append(invalid, "LOAN_PERIOD")
	}
	if c.OverdueInterval <= 0 {
		invalid = append(invalid, "OVERDUE_INTERVAL")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "LOG_LEVEL")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %v", invalid)
	}
	return nil
}

func getString(k *koanf.Koanf, key, defaultVal string) string {
	if v := k.String(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(k *koanf.Koanf, key string, defaultVal int) int {
	v := k.String(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getDuration(k *koanf.Koanf, key string, defaultVal time.Duration) time.Duration {
	v := k.String(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getStrings はYAMLのリスト、またはカンマ区切りの文字列を読み込む。
func getStrings(k *koanf.Koanf, key string) []string {
	var raw []string
	if _, ok := k.Get(key).([]interface{}); ok {
		raw = k.Strings(key)
	} else {
		raw = strings.Split(k.String(key), ",")
	}

	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// parseTrustedProxies はCIDRまたは単一IPの一覧を解析する。単一IPは/32（IPv6は/128）として扱う。
func parseTrustedProxies(specs []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(specs))
	for _, spec := range specs {
		if prefix, err := netip.ParsePrefix(spec); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration values: [TRUSTED_PROXIES] (%q)", spec)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
