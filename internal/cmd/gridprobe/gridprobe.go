// Package gridprobe parses gridprobe command flags and runs the grid probe.
package gridprobe

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/pricedesk/internal/platform/cmd"
	"github.com/louisbranch/pricedesk/internal/platform/discovery"
	gridapp "github.com/louisbranch/pricedesk/internal/services/grid/app"
)

// Config holds gridprobe command configuration.
type Config struct {
	Transport   string        `env:"GRIDPROBE_TRANSPORT" envDefault:"http"`
	Source      string        `env:"GRIDPROBE_SOURCE"`
	Endpoint    string        `env:"GRIDPROBE_ENDPOINT" envDefault:"/dashboard/products"`
	GRPCAddr    string        `env:"GRIDPROBE_GRPC_ADDR"`
	GRPCMethod  string        `env:"GRIDPROBE_GRPC_METHOD"`
	BearerToken string        `env:"GRIDPROBE_BEARER_TOKEN"`
	DialTimeout time.Duration `env:"GRIDPROBE_DIAL_TIMEOUT" envDefault:"2s"`

	Strategy      string        `env:"GRIDPROBE_STRATEGY" envDefault:"strict"`
	PageSize      int           `env:"GRIDPROBE_PAGE_SIZE" envDefault:"100"`
	PageSizes     []int         `env:"GRIDPROBE_PAGE_SIZES" envDefault:"20,50,100,200,500"`
	CacheTTL      time.Duration `env:"GRIDPROBE_CACHE_TTL" envDefault:"30s"`
	CacheCapacity int           `env:"GRIDPROBE_CACHE_CAPACITY" envDefault:"20"`
	Coalesce      time.Duration `env:"GRIDPROBE_COALESCE" envDefault:"100ms"`

	Pages    []int  `env:"GRIDPROBE_PAGES"`
	ResizeTo int    `env:"GRIDPROBE_RESIZE_TO"`
	Sort     string `env:"GRIDPROBE_SORT"`
	Filter   string `env:"GRIDPROBE_FILTER"`
	Dataset  string `env:"GRIDPROBE_DATASET"`

	Table        string   `env:"GRIDPROBE_TABLE"`
	Columns      []string `env:"GRIDPROBE_COLUMNS"`
	Hide         []string `env:"GRIDPROBE_HIDE"`
	VisibilityDB string   `env:"GRIDPROBE_VISIBILITY_DB"`

	Locale string `env:"GRIDPROBE_LOCALE" envDefault:"en-US"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Source = discovery.OrDefaultHTTPBaseURL(cfg.Source, discovery.ServiceQuotes)
	cfg.GRPCAddr = discovery.OrDefaultGRPCAddr(cfg.GRPCAddr, discovery.ServiceQuotes)

	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "The data transport: http or grpc")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "The data API base URL")
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "The data API path")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The data gRPC server address")
	fs.StringVar(&cfg.GRPCMethod, "grpc-method", cfg.GRPCMethod, "The full gRPC method listing rows")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "The gRPC dial timeout")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "The fetch strategy: strict or block")
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "The initial page size")
	fs.Func("page-sizes", "Comma-separated allowed page sizes", intListFlag(&cfg.PageSizes))
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "The page cache TTL; negative disables the cache")
	fs.IntVar(&cfg.CacheCapacity, "cache-capacity", cfg.CacheCapacity, "The number of cached pages")
	fs.DurationVar(&cfg.Coalesce, "coalesce", cfg.Coalesce, "The window that merges bursts of commands")
	fs.Func("pages", "Comma-separated zero-based pages to visit", intListFlag(&cfg.Pages))
	fs.IntVar(&cfg.ResizeTo, "resize-to", cfg.ResizeTo, "A page size to switch to after the walk")
	fs.StringVar(&cfg.Sort, "sort", cfg.Sort, `The order-by, e.g. "price desc, sku"`)
	fs.StringVar(&cfg.Filter, "filter", cfg.Filter, "The filter as a JSON object")
	fs.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "The dataset identity")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "The table key for column visibility")
	fs.Func("columns", "Comma-separated table columns", stringListFlag(&cfg.Columns))
	fs.Func("hide", "Comma-separated columns to hide", stringListFlag(&cfg.Hide))
	fs.StringVar(&cfg.VisibilityDB, "visibility-db", cfg.VisibilityDB, "The SQLite file for column visibility")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "The output locale")

	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run probes the configured grid.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGridProbe, func(ctx context.Context) error {
		return gridapp.Run(ctx, runtimeConfig(cfg))
	})
}

func runtimeConfig(cfg Config) gridapp.RuntimeConfig {
	return gridapp.RuntimeConfig{
		Transport:      cfg.Transport,
		HTTPURL:        joinURL(cfg.Source, cfg.Endpoint),
		GRPCAddr:       cfg.GRPCAddr,
		GRPCMethod:     cfg.GRPCMethod,
		BearerToken:    cfg.BearerToken,
		DialTimeout:    cfg.DialTimeout,
		Strategy:       cfg.Strategy,
		PageSize:       cfg.PageSize,
		PageSizes:      cfg.PageSizes,
		CacheTTL:       cfg.CacheTTL,
		CacheCapacity:  cfg.CacheCapacity,
		CoalesceWindow: cfg.Coalesce,
		Pages:          cfg.Pages,
		ResizeTo:       cfg.ResizeTo,
		Sort:           cfg.Sort,
		Filter:         cfg.Filter,
		Dataset:        cfg.Dataset,
		Table:          cfg.Table,
		Columns:        cfg.Columns,
		Hide:           cfg.Hide,
		VisibilityDB:   cfg.VisibilityDB,
		Locale:         cfg.Locale,
	}
}

func joinURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

func intListFlag(target *[]int) func(string) error {
	return func(value string) error {
		var out []int
		for _, part := range splitList(value) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("invalid integer %q", part)
			}
			out = append(out, n)
		}
		*target = out
		return nil
	}
}

func stringListFlag(target *[]string) func(string) error {
	return func(value string) error {
		*target = splitList(value)
		return nil
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
