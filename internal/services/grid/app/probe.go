// Package app wires a grid controller to a remote data source and walks it
// from the command line.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/pricedesk/internal/platform/grpc"
	"github.com/louisbranch/pricedesk/internal/platform/timeouts"
	"github.com/louisbranch/pricedesk/internal/services/grid/domain"
	"github.com/louisbranch/pricedesk/internal/services/grid/gateway/grpcdata"
	"github.com/louisbranch/pricedesk/internal/services/grid/gateway/httpdata"
	gridsqlite "github.com/louisbranch/pricedesk/internal/services/grid/storage/sqlite"
	"github.com/louisbranch/pricedesk/internal/services/grid/visibility"
	"golang.org/x/text/message"
)

// Transports accepted by RuntimeConfig.Transport.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Row is one untyped grid row as decoded from the data API.
type Row = map[string]any

// ErrWindowsFailed is returned when at least one probed window ended in a
// fetch failure.
var ErrWindowsFailed = errors.New("grid windows failed")

// RuntimeConfig controls one probe run.
type RuntimeConfig struct {
	Transport   string
	HTTPURL     string
	GRPCAddr    string
	GRPCMethod  string
	BearerToken string
	DialTimeout time.Duration

	Strategy       string
	PageSize       int
	PageSizes      []int
	CacheTTL       time.Duration
	CacheCapacity  int
	CoalesceWindow time.Duration

	// Pages are visited in order after the first window loads.
	Pages []int
	// ResizeTo, when set, changes the page size after the walk.
	ResizeTo int
	Sort     string
	// Filter is a JSON object.
	Filter  string
	Dataset string

	// Table enables column visibility for the probed grid.
	Table        string
	Columns      []string
	Hide         []string
	VisibilityDB string

	Locale string
	Out    io.Writer
	Logf   func(string, ...any)

	// Fetcher overrides the transport.
	Fetcher domain.Fetcher
}

// Run walks the configured windows and prints a summary of each.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	fetcher, closeFetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFetcher()

	controllerCfg, err := controllerConfig(cfg)
	if err != nil {
		return err
	}
	grid, err := domain.NewController(fetcher, controllerCfg)
	if err != nil {
		return fmt.Errorf("build grid controller: %w", err)
	}
	defer func() {
		_ = grid.Close()
	}()

	p := &probe{
		grid:    grid,
		printer: newPrinter(cfg.Locale),
		out:     cfg.Out,
		locale:  cfg.Locale,
	}
	if err := grid.Start(); err != nil {
		return fmt.Errorf("start grid: %w", err)
	}
	if err := p.settle(ctx); err != nil {
		return err
	}

	for _, page := range cfg.Pages {
		if err := grid.SetPage(page); err != nil {
			return fmt.Errorf("set page %d: %w", page, err)
		}
		if err := p.settle(ctx); err != nil {
			return err
		}
	}
	if cfg.ResizeTo > 0 {
		if err := grid.SetPageSize(cfg.ResizeTo); err != nil {
			return fmt.Errorf("set page size %d: %w", cfg.ResizeTo, err)
		}
		if err := p.settle(ctx); err != nil {
			return err
		}
	}

	if strings.TrimSpace(cfg.Table) != "" {
		if err := p.columns(ctx, cfg); err != nil {
			return err
		}
	}
	p.stats()

	if p.failures > 0 {
		return fmt.Errorf("%w: %d", ErrWindowsFailed, p.failures)
	}
	return nil
}

func controllerConfig(cfg RuntimeConfig) (domain.Config[Row], error) {
	strategy, err := domain.ParseStrategy(cfg.Strategy)
	if err != nil {
		return domain.Config[Row]{}, err
	}
	sort, err := domain.ParseSort(cfg.Sort)
	if err != nil {
		return domain.Config[Row]{}, err
	}
	var filter domain.Filter
	if strings.TrimSpace(cfg.Filter) != "" {
		if err := json.Unmarshal([]byte(cfg.Filter), &filter); err != nil {
			return domain.Config[Row]{}, fmt.Errorf("parse filter: %w", err)
		}
	}
	var dataset domain.ResetKey
	if cfg.Dataset != "" {
		dataset = domain.NewResetKey(cfg.Dataset)
	}
	return domain.Config[Row]{
		Strategy:        strategy,
		PageSizes:       cfg.PageSizes,
		InitialPageSize: cfg.PageSize,
		CacheTTL:        cfg.CacheTTL,
		CacheCapacity:   cfg.CacheCapacity,
		CoalesceWindow:  cfg.CoalesceWindow,
		Filter:          filter,
		Sort:            sort,
		Dataset:         dataset,
		Logf:            cfg.Logf,
	}, nil
}

func newFetcher(ctx context.Context, cfg RuntimeConfig) (domain.Fetcher, func(), error) {
	noop := func() {}
	if cfg.Fetcher != nil {
		return cfg.Fetcher, noop, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportHTTP:
		client, err := httpdata.NewClient(httpdata.Config{URL: cfg.HTTPURL, BearerToken: cfg.BearerToken})
		if err != nil {
			return nil, noop, err
		}
		return client, noop, nil
	case TransportGRPC:
		conn, err := platformgrpc.Dial(ctx, platformgrpc.DialConfig{
			Addr:          cfg.GRPCAddr,
			Timeout:       cfg.DialTimeout,
			HealthService: grpcdata.DefaultService,
			Logf:          cfg.Logf,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("dial data service: %w", err)
		}
		closeConn := func() {
			if err := conn.Close(); err != nil {
				cfg.Logf("close data connection: %v", err)
			}
		}
		client, err := grpcdata.NewClient(conn, grpcdata.Config{Method: cfg.GRPCMethod})
		if err != nil {
			closeConn()
			return nil, noop, err
		}
		return client, closeConn, nil
	default:
		return nil, noop, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

type probe struct {
	grid     *domain.Controller[Row]
	printer  *message.Printer
	out      io.Writer
	locale   string
	failures int
}

// settle waits for the current window and prints it.
func (p *probe) settle(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeouts.ProbeWindow)
	defer cancel()
	if err := p.grid.Wait(waitCtx); err != nil {
		return fmt.Errorf("wait for window: %w", err)
	}
	p.window(p.grid.Snapshot())
	return nil
}

func (p *probe) window(state domain.WindowState[Row]) {
	page := state.Page + 1
	switch {
	case state.Err != nil:
		p.failures++
		msg := state.Err.Error()
		var failure *domain.FetchFailure
		if errors.As(state.Err, &failure) {
			msg = failure.UserMessage(p.locale)
		}
		p.printer.Fprintf(p.out, msgWindowFailed, page, msg)
	case len(state.Rows) == 0:
		p.printer.Fprintf(p.out, msgWindowEmpty, page)
	case state.Total == domain.UnknownTotal:
		p.printer.Fprintf(p.out, msgWindowUnknown, page, len(state.Rows))
	default:
		first := state.FirstRow() + 1
		p.printer.Fprintf(p.out, msgWindow, page, state.PageCount(), first, first+len(state.Rows)-1, state.Total)
	}
	fmt.Fprintln(p.out)
}

func (p *probe) columns(ctx context.Context, cfg RuntimeConfig) error {
	var store visibility.Store = visibility.NewMemoryStore()
	if path := strings.TrimSpace(cfg.VisibilityDB); path != "" {
		sqliteStore, err := gridsqlite.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("open visibility store: %w", err)
		}
		defer func() {
			if err := sqliteStore.Close(); err != nil {
				cfg.Logf("close visibility store: %v", err)
			}
		}()
		store = sqliteStore
	}

	fields := cfg.Columns
	if len(fields) == 0 {
		fields = rowFields(p.grid.Snapshot().Rows)
	}
	svc, err := visibility.NewService(ctx, store, cfg.Table, fields, cfg.Logf)
	if err != nil {
		return err
	}
	for _, field := range cfg.Hide {
		if err := svc.SetVisible(ctx, field, false); err != nil {
			return err
		}
	}
	p.printer.Fprintf(p.out, msgColumns, strings.Join(svc.Visible(), ", "))
	fmt.Fprintln(p.out)
	return nil
}

func (p *probe) stats() {
	stats := p.grid.Stats()
	p.printer.Fprintf(p.out, msgStats, stats.Requests, stats.CacheHits, stats.CacheMisses, stats.Stale, stats.Failures)
	fmt.Fprintln(p.out)
	p.printer.Fprintf(p.out, msgLatency, stats.LastLatency.Round(time.Millisecond), stats.AverageLatency.Round(time.Millisecond), stats.Speed())
	fmt.Fprintln(p.out)

	sizes := make([]string, 0, len(p.grid.PageSizes()))
	for _, size := range p.grid.PageSizes() {
		sizes = append(sizes, strconv.Itoa(size))
	}
	p.printer.Fprintf(p.out, msgSettings, p.grid.Strategy(), strings.Join(sizes, ", "))
	fmt.Fprintln(p.out)
}

// rowFields returns the sorted keys of the first row.
func rowFields(rows []Row) []string {
	if len(rows) == 0 {
		return nil
	}
	fields := make([]string, 0, len(rows[0]))
	for field := range rows[0] {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return fields
}
