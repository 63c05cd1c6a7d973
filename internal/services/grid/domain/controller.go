package domain

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/louisbranch/pricedesk/internal/platform/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/louisbranch/pricedesk/internal/services/grid/domain"

// Config controls one grid controller.
type Config[R any] struct {
	Strategy Strategy
	// PageSizes is the allowed page size set. Empty uses
	// pagination.DefaultPageSizes.
	PageSizes       []int
	InitialPageSize int
	// CacheTTL of zero uses DefaultCacheTTL; a negative TTL disables caching.
	CacheTTL      time.Duration
	CacheCapacity int
	// CoalesceWindow delays fetches so bursts of commands issue one request.
	// Zero fetches immediately.
	CoalesceWindow time.Duration

	Filter Filter
	Sort   Sort
	// SortableFields restricts SetSort. Empty accepts any field.
	SortableFields []string
	Dataset        ResetKey

	RowID  func(R) string
	Clock  func() time.Time
	Logf   func(string, ...any)
	Tracer trace.Tracer
}

type subscriber[R any] struct {
	id int
	fn func(WindowState[R])
}

// Controller keeps one visible window over a remote result set.
//
// Commands never block on the network: they update the window under a lock
// and start fetches in the background. Each fetch carries a token and its
// outcome is applied only if no later command superseded it, so the window
// always reflects the most recent command. Controller is safe for
// concurrent use.
type Controller[R any] struct {
	fetcher  Fetcher
	strategy Strategy
	sizes    pagination.PageSizeConfig
	sortable []string
	coalesce time.Duration
	rowID    func(R) string
	clock    func() time.Time
	logf     func(string, ...any)
	tracer   trace.Tracer

	tokens  TokenIssuer
	cache   *PageCache[R]
	dataset *Invalidator
	flights singleflight.Group
	stats   statsRecorder

	mu         sync.Mutex
	state      WindowState[R]
	buffer     rollingBuffer[R]
	genCtx     context.Context
	genCancel  context.CancelFunc
	timer      *time.Timer
	timerSeq   uint64
	timerArmed bool
	inflight   int
	// totalSet is the result set state.Total was counted over.
	totalSet   string
	settled    chan struct{}
	started    bool
	closed     bool
	subs       []subscriber[R]
	nextSub    int
}

// NewController builds a controller over fetcher. No fetch happens until
// Start.
func NewController[R any](fetcher Fetcher, cfg Config[R]) (*Controller[R], error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	strategy := cfg.Strategy
	if strategy == 0 {
		strategy = StrategyStrict
	}
	if strategy != StrategyStrict && strategy != StrategyBlock {
		return nil, &InvalidTransitionError{Field: "strategy", Value: strategy.String(), Reason: "unknown strategy"}
	}
	sizes := pagination.PageSizeConfig{Default: cfg.InitialPageSize, Allowed: cfg.PageSizes}.Normalize()
	if cfg.InitialPageSize != 0 && !sizes.Allows(cfg.InitialPageSize) {
		return nil, invalidPageSize(cfg.InitialPageSize, sizes.Allowed)
	}
	if err := cfg.Sort.Validate(cfg.SortableFields...); err != nil {
		return nil, &InvalidTransitionError{Field: "sort", Value: cfg.Sort.Signature(), Reason: err.Error()}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	genCtx, genCancel := context.WithCancel(context.Background())
	return &Controller[R]{
		fetcher:  fetcher,
		strategy: strategy,
		sizes:    sizes,
		sortable: slices.Clone(cfg.SortableFields),
		coalesce: cfg.CoalesceWindow,
		rowID:    cfg.RowID,
		clock:    clock,
		logf:     logf,
		tracer:   tracer,
		cache:    NewPageCache[R](cfg.CacheTTL, cfg.CacheCapacity, clock),
		dataset:  NewInvalidator(cfg.Dataset),
		state: WindowState[R]{
			PageSize: sizes.Default,
			Total:    UnknownTotal,
			Rows:     []R{},
			Filter:   cfg.Filter.Clone(),
			Sort:     cfg.Sort.Clone(),
			Dataset:  cfg.Dataset,
		},
		genCtx:    genCtx,
		genCancel: genCancel,
		settled:   make(chan struct{}),
	}, nil
}

// Strategy returns the fetch strategy.
func (c *Controller[R]) Strategy() Strategy { return c.strategy }

// PageSizes returns the allowed page sizes.
func (c *Controller[R]) PageSizes() []int { return slices.Clone(c.sizes.Allowed) }

// Start fetches the current window. Commands issued before Start only
// update the window.
func (c *Controller[R]) Start() error {
	return c.update(func() bool {
		if c.started {
			return false
		}
		c.started = true
		c.refetchLocked()
		return true
	})
}

// SetPage moves the window to page.
func (c *Controller[R]) SetPage(page int) error {
	if page < 0 {
		return invalidPage(page)
	}
	return c.update(func() bool {
		if page == c.state.Page {
			return false
		}
		c.state.Page = page
		c.refetchLocked()
		return true
	})
}

// SetPageSize changes the page size and rewinds to page 0.
func (c *Controller[R]) SetPageSize(size int) error {
	if !c.sizes.Allows(size) {
		return invalidPageSize(size, c.sizes.Allowed)
	}
	return c.update(func() bool {
		if size == c.state.PageSize {
			return false
		}
		c.state.PageSize = size
		c.state.Page = 0
		c.state.Rows = []R{}
		c.buffer.drop()
		c.refetchLocked()
		return true
	})
}

// SetSort changes the sort order and rewinds to page 0.
func (c *Controller[R]) SetSort(sort Sort) error {
	if err := sort.Validate(c.sortable...); err != nil {
		return &InvalidTransitionError{Field: "sort", Value: sort.Signature(), Reason: err.Error()}
	}
	return c.update(func() bool {
		if sort.Signature() == c.state.Sort.Signature() {
			return false
		}
		c.state.Sort = sort.Clone()
		c.state.Page = 0
		c.buffer.drop()
		c.refetchLocked()
		return true
	})
}

// SetFilter changes the filter and rewinds to page 0.
func (c *Controller[R]) SetFilter(filter Filter) error {
	return c.update(func() bool {
		if filter.Signature() == c.state.Filter.Signature() {
			return false
		}
		c.state.Filter = filter.Clone()
		c.state.Page = 0
		c.buffer.drop()
		c.refetchLocked()
		return true
	})
}

// Reset switches the controller to the dataset identified by key. A key
// equal to the current one is ignored and Reset reports false. Otherwise
// the cache is cleared, in-flight fetches are abandoned and page 0 of the
// new dataset is fetched.
func (c *Controller[R]) Reset(key ResetKey) (bool, error) {
	changed := false
	err := c.update(func() bool {
		if !c.dataset.Observe(key) {
			return false
		}
		changed = true
		c.newGenerationLocked()
		c.state.Dataset = key
		c.state.Page = 0
		c.state.Total = UnknownTotal
		c.state.Rows = []R{}
		c.state.Err = nil
		c.state.Loading = false
		c.refetchLocked()
		return true
	})
	return changed, err
}

// Retry fetches the current window again, reusing cached pages.
func (c *Controller[R]) Retry() error {
	return c.update(func() bool {
		c.refetchLocked()
		return true
	})
}

// Refresh drops every cached page and fetches the current window again.
func (c *Controller[R]) Refresh() error {
	return c.update(func() bool {
		c.newGenerationLocked()
		c.refetchLocked()
		return true
	})
}

// Snapshot returns a copy of the current window.
func (c *Controller[R]) Snapshot() WindowState[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn for window changes and returns its cancel func.
// fn runs outside the controller lock and may call controller methods;
// concurrent fetch outcomes can deliver snapshots out of order, so callers
// that care compare Revision.
func (c *Controller[R]) Subscribe(fn func(WindowState[R])) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber[R]{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(s subscriber[R]) bool { return s.id == id })
	}
}

// Stats returns fetch counters.
func (c *Controller[R]) Stats() Stats {
	return c.stats.snapshot()
}

// Find returns the visible row whose RowID is id.
func (c *Controller[R]) Find(id string) (R, bool) {
	var zero R
	if c.rowID == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.state.Rows {
		if c.rowID(row) == id {
			return row, true
		}
	}
	return zero, false
}

// Wait blocks until no fetch is in flight and no coalesced fetch is pending.
func (c *Controller[R]) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		c.mu.Lock()
		if c.idleLocked() {
			c.mu.Unlock()
			return nil
		}
		settled := c.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close abandons pending work and aborts in-flight transports. Later
// commands return ErrClosed.
func (c *Controller[R]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerArmed = false
	c.tokens.Issue()
	c.genCancel()
	c.state.Loading = false
	c.subs = nil
	c.signalIdleLocked()
	return nil
}

// update runs fn under the lock and publishes the window when fn reports a
// change.
func (c *Controller[R]) update(fn func() bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	publish := func() {}
	if fn() {
		publish = c.publishLocked()
	}
	c.mu.Unlock()
	publish()
	return nil
}

func (c *Controller[R]) publishLocked() func() {
	if len(c.subs) == 0 {
		return func() {}
	}
	snapshot := c.state.clone()
	subs := slices.Clone(c.subs)
	return func() {
		for _, s := range subs {
			s.fn(snapshot)
		}
	}
}

// newGenerationLocked clears the cache and aborts transports started for
// the previous generation.
func (c *Controller[R]) newGenerationLocked() {
	c.cache.Clear()
	c.genCancel()
	c.genCtx, c.genCancel = context.WithCancel(context.Background())
	c.buffer.drop()
}

// refetchLocked supersedes outstanding fetches and schedules the current
// window.
func (c *Controller[R]) refetchLocked() {
	c.tokens.Issue()
	if !c.started || c.closed {
		return
	}
	if c.coalesce <= 0 {
		c.loadLocked()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerSeq++
	seq := c.timerSeq
	c.timerArmed = true
	c.timer = time.AfterFunc(c.coalesce, func() { c.fire(seq) })
}

func (c *Controller[R]) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timerArmed = false
	c.loadLocked()
	publish := c.publishLocked()
	c.signalIdleLocked()
	c.mu.Unlock()
	publish()
}

func (c *Controller[R]) loadLocked() {
	if c.strategy == StrategyBlock {
		c.loadBlockLocked()
		return
	}
	c.loadStrictLocked()
}

func (c *Controller[R]) loadStrictLocked() {
	key := c.keyLocked(c.state.Page)
	token := c.tokens.Issue()
	if entry, ok := c.cache.Get(key); ok {
		c.stats.cacheHit()
		c.applyLocked(entry.Rows, entry.Total)
		return
	}
	c.stats.cacheMiss()
	c.state.Loading = true
	c.launchLocked(token, key)
}

func (c *Controller[R]) loadBlockLocked() {
	page, size := c.state.Page, c.state.PageSize
	first, second := BlockPages(page)
	token := c.tokens.Issue()
	if !c.buffer.holds(first, size) {
		c.buffer.reset(first, size)
	}

	visibleTotal, visibleHit := 0, false
	var missing []FetchKey
	for _, p := range []int{first, second} {
		key := c.keyLocked(p)
		if entry, ok := c.cache.Get(key); ok {
			c.buffer.fill(p, entry.Rows)
			if p == page {
				visibleTotal, visibleHit = entry.Total, true
			}
			continue
		}
		// Nothing to prefetch past the known end of the result set.
		if p != page && c.totalKnownLocked() && pagination.Offset(p, size) >= c.state.Total {
			continue
		}
		missing = append(missing, key)
	}

	if visibleHit {
		c.stats.cacheHit()
		rows, _ := c.buffer.window(page)
		c.applyLocked(rows, visibleTotal)
	} else {
		c.stats.cacheMiss()
		c.state.Loading = true
	}
	for _, key := range missing {
		c.launchLocked(token, key)
	}
}

func (c *Controller[R]) launchLocked(token Token, key FetchKey) {
	c.inflight++
	gen := c.cache.Generation()
	ctx := c.genCtx
	q := c.queryLocked(key.Page)
	go c.await(ctx, token, gen, key, q)
}

func (c *Controller[R]) await(ctx context.Context, token Token, gen uint64, key FetchKey, q Query) {
	flight := strconv.FormatUint(gen, 10) + "#" + key.String()
	res := <-c.flights.DoChan(flight, func() (any, error) {
		return c.fetchRemote(ctx, gen, key, q)
	})
	var entry CacheEntry[R]
	if res.Err == nil {
		entry = res.Val.(CacheEntry[R])
	}
	c.complete(token, key, entry, res.Err)
}

// fetchRemote performs one remote call. Successful pages are cached unless
// the cache was cleared since the call started.
func (c *Controller[R]) fetchRemote(ctx context.Context, gen uint64, key FetchKey, q Query) (CacheEntry[R], error) {
	ctx, span := c.tracer.Start(ctx, "grid.fetch_page", trace.WithAttributes(
		attribute.Int("grid.page", q.Page),
		attribute.Int("grid.page_size", q.PageSize),
		attribute.String("grid.strategy", c.strategy.String()),
	))
	defer span.End()

	started := c.clock()
	raw, err := c.fetcher.FetchPage(ctx, q)
	c.stats.observe(c.clock().Sub(started))
	if err == nil {
		var rows []R
		var total int
		rows, total, err = DecodePage[R](raw)
		if err == nil {
			entry := CacheEntry[R]{Rows: rows, Total: total, InsertedAt: c.clock()}
			c.cache.PutIfGeneration(gen, key, entry)
			span.SetAttributes(attribute.Int("grid.rows", len(rows)), attribute.Int("grid.total", total))
			return entry, nil
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return CacheEntry[R]{}, err
}

func (c *Controller[R]) complete(token Token, key FetchKey, entry CacheEntry[R], err error) {
	c.mu.Lock()
	c.inflight--
	publish := func() {}
	if c.closed || !c.tokens.IsCurrent(token) {
		c.stats.stale()
	} else if c.applyResultLocked(key, entry, err) {
		publish = c.publishLocked()
	}
	c.signalIdleLocked()
	c.mu.Unlock()
	publish()
}

// applyResultLocked applies a current fetch outcome and reports whether the
// visible window changed.
func (c *Controller[R]) applyResultLocked(key FetchKey, entry CacheEntry[R], err error) bool {
	visible := key.Page == c.state.Page
	if c.strategy == StrategyBlock {
		if err == nil {
			c.buffer.fill(key.Page, entry.Rows)
		}
		if !visible {
			if err != nil {
				c.logf("grid prefetch page %d failed: %v", key.Page, err)
			}
			return false
		}
		if err == nil {
			rows, _ := c.buffer.window(key.Page)
			c.applyLocked(rows, entry.Total)
			return true
		}
	}
	if err != nil {
		c.failLocked(c.queryLocked(key.Page), err)
		return true
	}
	c.applyLocked(entry.Rows, entry.Total)
	return true
}

func (c *Controller[R]) applyLocked(rows []R, total int) {
	if len(rows) > c.state.PageSize {
		rows = rows[:c.state.PageSize]
	}
	c.state.Rows = append(make([]R, 0, len(rows)), rows...)
	c.state.Total = total
	c.totalSet = c.resultSetLocked()
	c.state.Err = nil
	c.state.Loading = false
	c.state.Revision++
}

func (c *Controller[R]) failLocked(q Query, err error) {
	failure := newFetchFailure(q, err)
	c.state.Rows = []R{}
	c.state.Total = 0
	c.totalSet = ""
	c.state.Err = failure
	c.state.Loading = false
	c.state.Revision++
	c.stats.failure()
	c.logf("grid fetch page %d failed: %v", q.Page, err)
}

func (c *Controller[R]) keyLocked(page int) FetchKey {
	return FetchKey{
		Page:     page,
		PageSize: c.state.PageSize,
		Filter:   c.state.Filter.Signature(),
		Sort:     c.state.Sort.Signature(),
		Dataset:  c.state.Dataset,
	}
}

// resultSetLocked identifies the rows a total counts, independent of paging.
func (c *Controller[R]) resultSetLocked() string {
	return string(c.state.Dataset) + "|" + c.state.Filter.Signature() + "|" + c.state.Sort.Signature()
}

// totalKnownLocked reports whether state.Total counts the current result set.
func (c *Controller[R]) totalKnownLocked() bool {
	return c.state.Total >= 0 && c.totalSet != "" && c.totalSet == c.resultSetLocked()
}

func (c *Controller[R]) queryLocked(page int) Query {
	return Query{
		Page:     page,
		PageSize: c.state.PageSize,
		Filter:   c.state.Filter.Clone(),
		Sort:     c.state.Sort.Clone(),
	}
}

func (c *Controller[R]) idleLocked() bool {
	return c.inflight == 0 && !c.timerArmed
}

func (c *Controller[R]) signalIdleLocked() {
	if !c.idleLocked() {
		return
	}
	close(c.settled)
	c.settled = make(chan struct{})
}
