// Package config loads service configuration from a TOML file and the
// environment via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/geoatlas/tileserv/internal/tms"
)

type Config struct {
	Addr     string
	BasePath string

	LogLevel   string
	LogConsole bool

	DatabaseURL string
	MaxConns    int
	PoolTimeout time.Duration

	DefaultScheme  string
	CustomSchemes  []tms.TilingScheme
	IncludeSchemas []string
	Functions      []FunctionConfig
	DefaultMinZoom *int
	DefaultMaxZoom *int

	RefreshInterval time.Duration

	CacheEnabled bool
	RedisAddr    string
	CacheLRUSize int
	CacheTTL     time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// FunctionConfig declares one function layer in the config file.
type FunctionConfig struct {
	ID       string          `mapstructure:"id"`
	Schema   string          `mapstructure:"schema"`
	Function string          `mapstructure:"function"`
	Params   []FunctionParam `mapstructure:"params"`
	Bounds   []float64       `mapstructure:"bounds"`
	MinZoom  *int            `mapstructure:"minzoom"`
	MaxZoom  *int            `mapstructure:"maxzoom"`
}

type FunctionParam struct {
	Name    string  `mapstructure:"name"`
	Type    string  `mapstructure:"type"`
	Default *string `mapstructure:"default"`
}

type schemeConfig struct {
	ID           string    `mapstructure:"id"`
	Title        string    `mapstructure:"title"`
	CRS          string    `mapstructure:"crs"`
	SRID         int       `mapstructure:"srid"`
	MinZoom      int       `mapstructure:"minzoom"`
	MaxZoom      int       `mapstructure:"maxzoom"`
	Extent       []float64 `mapstructure:"extent"`
	MatrixWidth  int       `mapstructure:"matrix_width"`
	MatrixHeight int       `mapstructure:"matrix_height"`
	TileSize     int       `mapstructure:"tile_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":7800")
	v.SetDefault("server.base_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
	v.SetDefault("database.url", "postgres://localhost:5432/gis")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.pool_timeout", "5s")
	v.SetDefault("tms.default", "WebMercatorQuad")
	v.SetDefault("catalog.refresh_interval", "0s")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.lru_size", 512)
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.brokers", "localhost:9092")
	v.SetDefault("refresh.topic", "catalog-changes")
	v.SetDefault("refresh.group_id", "tileserv")
}

// Load reads the config file at path (optional) plus matching environment
// variables, e.g. TILESERV_SERVER_ADDR for server.addr.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("tileserv")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigType("toml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Addr:            v.GetString("server.addr"),
		BasePath:        normalizeBasePath(v.GetString("server.base_path")),
		LogLevel:        v.GetString("log.level"),
		LogConsole:      v.GetBool("log.console"),
		DatabaseURL:     v.GetString("database.url"),
		MaxConns:        v.GetInt("database.max_conns"),
		PoolTimeout:     v.GetDuration("database.pool_timeout"),
		DefaultScheme:   v.GetString("tms.default"),
		IncludeSchemas:  v.GetStringSlice("catalog.schemas"),
		RefreshInterval: v.GetDuration("catalog.refresh_interval"),
		CacheEnabled:    v.GetBool("cache.enabled"),
		RedisAddr:       v.GetString("cache.redis_addr"),
		CacheLRUSize:    v.GetInt("cache.lru_size"),
		CacheTTL:        v.GetDuration("cache.ttl"),
		KafkaEnabled:    v.GetBool("refresh.enabled"),
		KafkaBrokers:    splitCSV(v.GetString("refresh.brokers")),
		KafkaTopic:      v.GetString("refresh.topic"),
		KafkaGroupID:    v.GetString("refresh.group_id"),
	}

	if v.IsSet("catalog.minzoom") {
		z := v.GetInt("catalog.minzoom")
		cfg.DefaultMinZoom = &z
	}
	if v.IsSet("catalog.maxzoom") {
		z := v.GetInt("catalog.maxzoom")
		cfg.DefaultMaxZoom = &z
	}

	var schemes []schemeConfig
	if err := v.UnmarshalKey("tms.custom", &schemes); err != nil {
		return Config{}, fmt.Errorf("decode tms.custom: %w", err)
	}
	for _, sc := range schemes {
		s, err := sc.toScheme()
		if err != nil {
			return Config{}, err
		}
		cfg.CustomSchemes = append(cfg.CustomSchemes, s)
	}

	if err := v.UnmarshalKey("functions", &cfg.Functions); err != nil {
		return Config{}, fmt.Errorf("decode functions: %w", err)
	}
	return cfg, nil
}

func (sc schemeConfig) toScheme() (tms.TilingScheme, error) {
	if len(sc.Extent) != 4 {
		return tms.TilingScheme{}, fmt.Errorf("custom scheme %q: extent needs 4 values", sc.ID)
	}
	s := tms.TilingScheme{
		ID:           sc.ID,
		Title:        sc.Title,
		CRS:          sc.CRS,
		SRID:         sc.SRID,
		MinZoom:      sc.MinZoom,
		MaxZoom:      sc.MaxZoom,
		Extent:       tms.Extent{sc.Extent[0], sc.Extent[1], sc.Extent[2], sc.Extent[3]},
		MatrixWidth:  sc.MatrixWidth,
		MatrixHeight: sc.MatrixHeight,
		TileSize:     sc.TileSize,
	}
	if s.MatrixWidth == 0 {
		s.MatrixWidth = 1
	}
	if s.MatrixHeight == 0 {
		s.MatrixHeight = 1
	}
	if s.TileSize == 0 {
		s.TileSize = 256
	}
	return s, nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
