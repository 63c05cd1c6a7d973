package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/pricedesk/internal/platform/errors"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func sku(i int) string {
	return fmt.Sprintf("SKU-%03d", i)
}

// fakeSource serves pages from an in-memory dataset. Pages can be gated to
// hold their response until released.
type fakeSource struct {
	mu      sync.Mutex
	rows    []quoteRow
	calls   []Query
	gates   map[int]chan struct{}
	fail    map[int]error
	raw     map[int]string
	started chan int
}

func newFakeSource(n int) *fakeSource {
	rows := make([]quoteRow, n)
	for i := range rows {
		rows[i] = quoteRow{SKU: sku(i), Price: float64(i) + 0.5}
	}
	return &fakeSource{
		rows:    rows,
		gates:   map[int]chan struct{}{},
		fail:    map[int]error{},
		raw:     map[int]string{},
		started: make(chan int, 64),
	}
}

func (s *fakeSource) FetchPage(ctx context.Context, q Query) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	gate := s.gates[q.Page]
	failErr := s.fail[q.Page]
	raw, hasRaw := s.raw[q.Page]
	rows := s.rows
	s.mu.Unlock()

	select {
	case s.started <- q.Page:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if hasRaw {
		return json.RawMessage(raw), nil
	}
	lo := min(q.Page*q.PageSize, len(rows))
	hi := min(lo+q.PageSize, len(rows))
	return json.Marshal(map[string]any{"rows": rows[lo:hi], "total": len(rows)})
}

func (s *fakeSource) gate(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates[page] = make(chan struct{})
}

func (s *fakeSource) release(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.gates[page])
}

func (s *fakeSource) setFail(page int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, page)
		return
	}
	s.fail[page] = err
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSource) pagesCalled() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]int, 0, len(s.calls))
	for _, q := range s.calls {
		pages = append(pages, q.Page)
	}
	return pages
}

func (s *fakeSource) lastCall() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func (s *fakeSource) awaitStart(t *testing.T, page int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p := <-s.started:
			if p == page {
				return
			}
		case <-timeout:
			t.Fatalf("fetch of page %d never started", page)
		}
	}
}

func newTestController(t *testing.T, src Fetcher, cfg Config[quoteRow]) *Controller[quoteRow] {
	t.Helper()
	if cfg.InitialPageSize == 0 {
		cfg.InitialPageSize = 20
	}
	c, err := NewController(src, cfg)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitIdle(t *testing.T, c *Controller[quoteRow]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func mustStart(t *testing.T, c *Controller[quoteRow]) {
	t.Helper()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestNewControllerValidatesConfig(t *testing.T) {
	if _, err := NewController[quoteRow](nil, Config[quoteRow]{}); !errors.Is(err, ErrFetcherRequired) {
		t.Fatalf("nil fetcher error = %v, want ErrFetcherRequired", err)
	}

	src := newFakeSource(10)
	_, err := NewController(src, Config[quoteRow]{InitialPageSize: 33})
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) || transition.Field != "page size" {
		t.Fatalf("page size error = %v, want page size transition error", err)
	}

	_, err = NewController(src, Config[quoteRow]{
		Sort:           Sort{{Field: "color"}},
		SortableFields: []string{"price"},
	})
	if !errors.As(err, &transition) || transition.Field != "sort" {
		t.Fatalf("sort error = %v, want sort transition error", err)
	}
}

func TestControllerDoesNotFetchBeforeStart(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
	state := c.Snapshot()
	if state.Page != 1 || state.Total != UnknownTotal || len(state.Rows) != 0 {
		t.Fatalf("state = %+v, want page 1 with unknown total", state)
	}
}

func TestControllerLoadsFirstPage(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)

	state := c.Snapshot()
	if state.Page != 0 || state.PageSize != 20 {
		t.Fatalf("window = %d/%d, want 0/20", state.Page, state.PageSize)
	}
	if len(state.Rows) != 20 || state.Rows[0].SKU != sku(0) {
		t.Fatalf("rows = %d starting %v, want 20 starting %s", len(state.Rows), state.Rows, sku(0))
	}
	if state.Total != 57 {
		t.Fatalf("Total = %d, want 57", state.Total)
	}
	if state.Loading || state.Err != nil {
		t.Fatalf("Loading = %v, Err = %v, want settled", state.Loading, state.Err)
	}
	if state.Revision != 1 {
		t.Fatalf("Revision = %d, want 1", state.Revision)
	}
}

func TestControllerLastPartialPage(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{InitialPageSize: 50})

	mustStart(t, c)
	waitIdle(t, c)
	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)

	state := c.Snapshot()
	if len(state.Rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(state.Rows))
	}
	if state.Rows[0].SKU != sku(50) || state.Rows[6].SKU != sku(56) {
		t.Fatalf("rows = %v, want %s..%s", state.Rows, sku(50), sku(56))
	}
	if state.Total != 57 || state.PageCount() != 2 || state.HasNext() {
		t.Fatalf("Total = %d, PageCount = %d, HasNext = %v", state.Total, state.PageCount(), state.HasNext())
	}
}

func TestControllerRejectsNegativePage(t *testing.T) {
	c := newTestController(t, newFakeSource(10), Config[quoteRow]{})

	err := c.SetPage(-1)
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) || transition.Field != "page" {
		t.Fatalf("SetPage(-1) error = %v, want page transition error", err)
	}
	if got := transition.DomainError().Code; got != apperrors.CodeGridInvalidPage {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeGridInvalidPage)
	}
}

func TestControllerCacheHitSkipsNetwork(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)
	for _, page := range []int{1, 0} {
		if err := c.SetPage(page); err != nil {
			t.Fatalf("SetPage(%d) error = %v", page, err)
		}
		waitIdle(t, c)
	}

	if got := src.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	stats := c.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 2 || stats.Requests != 2 {
		t.Fatalf("stats = %+v, want 1 hit 2 misses 2 requests", stats)
	}
	if state := c.Snapshot(); state.Rows[0].SKU != sku(0) || state.Loading {
		t.Fatalf("state = %+v, want page 0 from cache", state)
	}
}

func TestControllerDisabledCacheAlwaysFetches(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{CacheTTL: -1})

	mustStart(t, c)
	waitIdle(t, c)
	for _, page := range []int{1, 0} {
		if err := c.SetPage(page); err != nil {
			t.Fatalf("SetPage(%d) error = %v", page, err)
		}
		waitIdle(t, c)
	}
	if got := src.callCount(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestControllerDiscardsStaleResponses(t *testing.T) {
	src := newFakeSource(100)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)

	src.gate(1)
	src.gate(2)
	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage(1) error = %v", err)
	}
	src.awaitStart(t, 1)
	if err := c.SetPage(2); err != nil {
		t.Fatalf("SetPage(2) error = %v", err)
	}
	src.awaitStart(t, 2)

	// The older response lands first and must not reach the window.
	src.release(1)
	eventually(t, "stale response", func() bool { return c.Stats().Stale == 1 })
	state := c.Snapshot()
	if !state.Loading || state.Page != 2 || state.Rows[0].SKU != sku(0) {
		t.Fatalf("state = %+v, want page 2 still loading over page 0 rows", state)
	}

	src.release(2)
	waitIdle(t, c)
	state = c.Snapshot()
	if state.Loading || state.Rows[0].SKU != sku(40) {
		t.Fatalf("state = %+v, want page 2 rows", state)
	}
	if state.Revision != 2 {
		t.Fatalf("Revision = %d, want 2", state.Revision)
	}
}

func TestControllerLateOlderResponseIsIgnored(t *testing.T) {
	src := newFakeSource(100)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)

	src.gate(1)
	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage(1) error = %v", err)
	}
	src.awaitStart(t, 1)
	if err := c.SetPage(2); err != nil {
		t.Fatalf("SetPage(2) error = %v", err)
	}
	eventually(t, "page 2 applied", func() bool { return !c.Snapshot().Loading })

	src.release(1)
	waitIdle(t, c)
	if state := c.Snapshot(); state.Page != 2 || state.Rows[0].SKU != sku(40) {
		t.Fatalf("state = %+v, want page 2 rows", state)
	}
	if got := c.Stats().Stale; got != 1 {
		t.Fatalf("Stale = %d, want 1", got)
	}
}

func TestControllerResetClearsCache(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{Dataset: NewResetKey("v1")})

	mustStart(t, c)
	waitIdle(t, c)

	src.gate(0)
	changed, err := c.Reset(NewResetKey(map[string]any{"version": 2}))
	if err != nil || !changed {
		t.Fatalf("Reset() = %v, %v, want true", changed, err)
	}
	src.awaitStart(t, 0)

	state := c.Snapshot()
	if state.Page != 0 || state.Total != UnknownTotal || len(state.Rows) != 0 || !state.Loading {
		t.Fatalf("state = %+v, want empty loading page 0", state)
	}

	src.release(0)
	waitIdle(t, c)
	if got := src.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if state := c.Snapshot(); state.Total != 57 || len(state.Rows) != 20 {
		t.Fatalf("state = %+v, want reloaded page 0", state)
	}

	changed, err = c.Reset(NewResetKey(map[string]any{"version": 2}))
	if err != nil || changed {
		t.Fatalf("Reset(equal key) = %v, %v, want false", changed, err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != 2 {
		t.Fatalf("calls after equal reset = %d, want 2", got)
	}
}

func TestControllerResetAbortsInFlightFetch(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	src.gate(0)
	mustStart(t, c)
	src.awaitStart(t, 0)

	if _, err := c.Reset(NewResetKey("v2")); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	// The replacement fetch is still gated; only the aborted one returns.
	eventually(t, "aborted fetch", func() bool { return c.Stats().Stale == 1 })
	if state := c.Snapshot(); state.Err != nil || !state.Loading {
		t.Fatalf("state = %+v, want loading without error", state)
	}
	src.release(0)
	waitIdle(t, c)
	if state := c.Snapshot(); len(state.Rows) != 20 || state.Err != nil {
		t.Fatalf("state = %+v, want page 0", state)
	}
}

func TestControllerSetPageSize(t *testing.T) {
	src := newFakeSource(120)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)
	if err := c.SetPage(2); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)

	if err := c.SetPageSize(50); err != nil {
		t.Fatalf("SetPageSize() error = %v", err)
	}
	state := c.Snapshot()
	if state.Page != 0 || state.PageSize != 50 || len(state.Rows) != 0 {
		t.Fatalf("state = %+v, want empty page 0 of size 50", state)
	}
	waitIdle(t, c)
	if state := c.Snapshot(); len(state.Rows) != 50 || state.Rows[49].SKU != sku(49) {
		t.Fatalf("rows = %d, want 50", len(state.Rows))
	}

	err := c.SetPageSize(33)
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) || transition.Field != "page size" {
		t.Fatalf("SetPageSize(33) error = %v, want page size transition error", err)
	}
	if got := c.Snapshot().PageSize; got != 50 {
		t.Fatalf("PageSize = %d, want 50", got)
	}

	calls := src.callCount()
	if err := c.SetPageSize(50); err != nil {
		t.Fatalf("SetPageSize(same) error = %v", err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != calls {
		t.Fatalf("calls = %d, want %d", got, calls)
	}
}

func TestControllerBlockFetchesAlignedPairs(t *testing.T) {
	src := newFakeSource(200)
	c := newTestController(t, src, Config[quoteRow]{Strategy: StrategyBlock})

	if err := c.SetPage(3); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	mustStart(t, c)
	waitIdle(t, c)

	pages := src.pagesCalled()
	slices.Sort(pages)
	if !slices.Equal(pages, []int{2, 3}) {
		t.Fatalf("pages = %v, want [2 3]", pages)
	}
	if state := c.Snapshot(); state.Rows[0].SKU != sku(60) || len(state.Rows) != 20 {
		t.Fatalf("rows = %v, want page 3", state.Rows)
	}

	if err := c.SetPage(2); err != nil {
		t.Fatalf("SetPage(2) error = %v", err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if state := c.Snapshot(); state.Rows[0].SKU != sku(40) || state.Loading {
		t.Fatalf("state = %+v, want page 2 from the block", state)
	}

	if err := c.SetPage(4); err != nil {
		t.Fatalf("SetPage(4) error = %v", err)
	}
	waitIdle(t, c)
	pages = src.pagesCalled()[2:]
	slices.Sort(pages)
	if !slices.Equal(pages, []int{4, 5}) {
		t.Fatalf("pages = %v, want [4 5]", pages)
	}
	if state := c.Snapshot(); state.Rows[0].SKU != sku(80) {
		t.Fatalf("rows = %v, want page 4", state.Rows)
	}
}

func TestControllerBlockPrefetchIsQuiet(t *testing.T) {
	src := newFakeSource(200)
	src.gate(1)
	c := newTestController(t, src, Config[quoteRow]{Strategy: StrategyBlock})

	mustStart(t, c)
	eventually(t, "visible page", func() bool { return !c.Snapshot().Loading })
	state := c.Snapshot()
	if len(state.Rows) != 20 || state.Err != nil {
		t.Fatalf("state = %+v, want page 0 while page 1 is pending", state)
	}

	revision := state.Revision
	src.release(1)
	waitIdle(t, c)
	if got := c.Snapshot().Revision; got != revision {
		t.Fatalf("Revision = %d, want %d after prefetch", got, revision)
	}
}

func TestControllerBlockPrefetchFailureIsNotSurfaced(t *testing.T) {
	src := newFakeSource(200)
	src.setFail(1, errors.New("boom"))
	var logged []string
	var logMu sync.Mutex
	c := newTestController(t, src, Config[quoteRow]{
		Strategy: StrategyBlock,
		Logf: func(format string, args ...any) {
			logMu.Lock()
			defer logMu.Unlock()
			logged = append(logged, fmt.Sprintf(format, args...))
		},
	})

	mustStart(t, c)
	waitIdle(t, c)
	if state := c.Snapshot(); state.Err != nil || len(state.Rows) != 20 {
		t.Fatalf("state = %+v, want page 0 without error", state)
	}
	logMu.Lock()
	gotLogs := len(logged)
	logMu.Unlock()
	if gotLogs != 1 {
		t.Fatalf("logs = %d, want 1", gotLogs)
	}

	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)
	if state := c.Snapshot(); state.Err == nil {
		t.Fatal("expected visible page failure")
	}
}

func TestControllerBlockSkipsPagesPastTotal(t *testing.T) {
	src := newFakeSource(15)
	c := newTestController(t, src, Config[quoteRow]{Strategy: StrategyBlock})

	mustStart(t, c)
	waitIdle(t, c)
	if got := src.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2 while total is unknown", got)
	}

	if err := c.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitIdle(t, c)
	if got := src.pagesCalled()[2:]; !slices.Equal(got, []int{0}) {
		t.Fatalf("pages after refresh = %v, want [0]", got)
	}
	if state := c.Snapshot(); len(state.Rows) != 15 || state.Total != 15 {
		t.Fatalf("state = %+v, want 15 rows", state)
	}
}

func TestControllerBlockPrefetchesAfterFilterChange(t *testing.T) {
	var mu sync.Mutex
	var filtered []int
	src := FetcherFunc(func(ctx context.Context, q Query) (json.RawMessage, error) {
		total := 20
		if q.Filter["all"] == true {
			total = 100
			mu.Lock()
			filtered = append(filtered, q.Page)
			mu.Unlock()
		}
		lo := min(q.Page*q.PageSize, total)
		hi := min(lo+q.PageSize, total)
		rows := make([]quoteRow, 0, hi-lo)
		for i := lo; i < hi; i++ {
			rows = append(rows, quoteRow{SKU: sku(i)})
		}
		return json.Marshal(map[string]any{"rows": rows, "total": total})
	})
	c := newTestController(t, src, Config[quoteRow]{Strategy: StrategyBlock})

	mustStart(t, c)
	waitIdle(t, c)
	if state := c.Snapshot(); state.Total != 20 {
		t.Fatalf("total = %d, want 20", state.Total)
	}

	if err := c.SetFilter(Filter{"all": true}); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	waitIdle(t, c)
	mu.Lock()
	pages := slices.Sorted(slices.Values(filtered))
	mu.Unlock()
	if !slices.Equal(pages, []int{0, 1}) {
		t.Fatalf("pages under new filter = %v, want [0 1]", pages)
	}

	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	state := c.Snapshot()
	if state.Loading || len(state.Rows) != 20 || state.Rows[0].SKU != sku(20) || state.Total != 100 {
		t.Fatalf("state = %+v, want page 1 from the prefetched block", state)
	}
}

func TestControllerFetchFailure(t *testing.T) {
	src := newFakeSource(57)
	src.setFail(0, errors.New("connection reset"))
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)

	state := c.Snapshot()
	var failure *FetchFailure
	if !errors.As(state.Err, &failure) {
		t.Fatalf("Err = %v, want *FetchFailure", state.Err)
	}
	if failure.Code != apperrors.CodeGridFetchFailed || failure.Query.Page != 0 || failure.Query.PageSize != 20 {
		t.Fatalf("failure = %+v", failure)
	}
	if len(state.Rows) != 0 || state.Total != 0 || state.Loading {
		t.Fatalf("state = %+v, want empty settled window", state)
	}

	time.Sleep(20 * time.Millisecond)
	if got := src.callCount(); got != 1 {
		t.Fatalf("calls = %d, want 1 without retry", got)
	}
	if got := c.Stats().Failures; got != 1 {
		t.Fatalf("Failures = %d, want 1", got)
	}

	src.setFail(0, nil)
	if err := c.Retry(); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	waitIdle(t, c)
	if state := c.Snapshot(); state.Err != nil || len(state.Rows) != 20 || state.Total != 57 {
		t.Fatalf("state = %+v, want recovered page", state)
	}
}

func TestControllerFetchFailureCodes(t *testing.T) {
	tests := []struct {
		name string
		fail error
		raw  string
		want apperrors.Code
	}{
		{name: "remote unavailable", fail: apperrors.New(apperrors.CodeGridRemoteUnavailable, "down"), want: apperrors.CodeGridRemoteUnavailable},
		{name: "malformed payload", raw: `not json`, want: apperrors.CodeGridPayloadInvalid},
		{name: "bad total", raw: `{"rows":[],"total":"many"}`, want: apperrors.CodeGridPayloadInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(10)
			if tt.fail != nil {
				src.setFail(0, tt.fail)
			}
			if tt.raw != "" {
				src.raw[0] = tt.raw
			}
			c := newTestController(t, src, Config[quoteRow]{})
			mustStart(t, c)
			waitIdle(t, c)

			var failure *FetchFailure
			if !errors.As(c.Snapshot().Err, &failure) {
				t.Fatalf("Err = %v, want *FetchFailure", c.Snapshot().Err)
			}
			if failure.Code != tt.want {
				t.Fatalf("Code = %s, want %s", failure.Code, tt.want)
			}
		})
	}
}

func TestControllerFailedPageIsNotCached(t *testing.T) {
	src := newFakeSource(57)
	src.raw[0] = `{"rows":7}`
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)
	delete(src.raw, 0)
	if err := c.Retry(); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestControllerCoalescesCommands(t *testing.T) {
	src := newFakeSource(200)
	c := newTestController(t, src, Config[quoteRow]{CoalesceWindow: 20 * time.Millisecond})

	mustStart(t, c)
	for page := 1; page <= 3; page++ {
		if err := c.SetPage(page); err != nil {
			t.Fatalf("SetPage(%d) error = %v", page, err)
		}
	}
	waitIdle(t, c)

	if got := src.pagesCalled(); !slices.Equal(got, []int{3}) {
		t.Fatalf("pages = %v, want [3]", got)
	}
	if state := c.Snapshot(); state.Rows[0].SKU != sku(60) {
		t.Fatalf("rows = %v, want page 3", state.Rows)
	}
}

func TestControllerSortAndFilter(t *testing.T) {
	src := newFakeSource(100)
	c := newTestController(t, src, Config[quoteRow]{SortableFields: []string{"price", "sku"}})

	mustStart(t, c)
	waitIdle(t, c)
	if err := c.SetPage(2); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)

	if err := c.SetSort(Sort{{Field: "price", Desc: true}}); err != nil {
		t.Fatalf("SetSort() error = %v", err)
	}
	waitIdle(t, c)
	last := src.lastCall()
	if last.Page != 0 || last.Sort.Signature() != "price desc" {
		t.Fatalf("last query = %+v, want page 0 sorted by price desc", last)
	}

	err := c.SetSort(Sort{{Field: "color"}})
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) || transition.Field != "sort" {
		t.Fatalf("SetSort(color) error = %v, want sort transition error", err)
	}

	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)
	if err := c.SetFilter(Filter{"sku": "SKU-01"}); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	waitIdle(t, c)
	last = src.lastCall()
	if last.Page != 0 || last.Filter["sku"] != "SKU-01" {
		t.Fatalf("last query = %+v, want filtered page 0", last)
	}

	calls := src.callCount()
	if err := c.SetFilter(Filter{"sku": "SKU-01"}); err != nil {
		t.Fatalf("SetFilter(same) error = %v", err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != calls {
		t.Fatalf("calls = %d, want %d", got, calls)
	}
}

func TestControllerClose(t *testing.T) {
	src := newFakeSource(57)
	src.gate(0)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	src.awaitStart(t, 0)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.SetPage(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("SetPage() after Close error = %v, want ErrClosed", err)
	}
	if _, err := c.Reset(NewResetKey("v2")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Reset() after Close error = %v, want ErrClosed", err)
	}

	waitIdle(t, c)
	state := c.Snapshot()
	if state.Loading || state.Err != nil || len(state.Rows) != 0 {
		t.Fatalf("state = %+v, want untouched window", state)
	}
	if got := c.Stats().Stale; got != 1 {
		t.Fatalf("Stale = %d, want 1", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestControllerSubscribe(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	var mu sync.Mutex
	var seen []WindowState[quoteRow]
	cancel := c.Subscribe(func(s WindowState[quoteRow]) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	mustStart(t, c)
	waitIdle(t, c)

	mu.Lock()
	count := len(seen)
	last := seen[len(seen)-1]
	mu.Unlock()
	if count != 2 {
		t.Fatalf("notifications = %d, want 2", count)
	}
	if last.Loading || len(last.Rows) != 20 || last.Revision != 1 {
		t.Fatalf("last = %+v, want loaded page", last)
	}

	cancel()
	if err := c.SetPage(1); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	waitIdle(t, c)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != count {
		t.Fatalf("notifications after cancel = %d, want %d", len(seen), count)
	}
}

func TestControllerFind(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{RowID: func(r quoteRow) string { return r.SKU }})

	mustStart(t, c)
	waitIdle(t, c)

	row, ok := c.Find(sku(3))
	if !ok || row.Price != 3.5 {
		t.Fatalf("Find() = %+v, %v, want %s", row, ok, sku(3))
	}
	if _, ok := c.Find(sku(30)); ok {
		t.Fatal("expected rows outside the window to be missing")
	}
}

func TestControllerRefreshRefetches(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)
	if err := c.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitIdle(t, c)
	if got := src.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if got := c.Snapshot().Revision; got != 2 {
		t.Fatalf("Revision = %d, want 2", got)
	}
}

func TestControllerTracesFetches(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{Tracer: provider.Tracer("grid-test")})
	mustStart(t, c)
	waitIdle(t, c)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "grid.fetch_page" {
		t.Fatalf("span name = %q, want grid.fetch_page", spans[0].Name())
	}
	want := attribute.Int("grid.page_size", 20)
	if !slices.Contains(spans[0].Attributes(), want) {
		t.Fatalf("attributes = %v, want %v", spans[0].Attributes(), want)
	}
}

func TestControllerSameValueIsNoOp(t *testing.T) {
	src := newFakeSource(57)
	c := newTestController(t, src, Config[quoteRow]{})

	mustStart(t, c)
	waitIdle(t, c)
	sort, err := ParseSort("price desc")
	if err != nil {
		t.Fatalf("ParseSort() error = %v", err)
	}
	if err := c.SetSort(sort); err != nil {
		t.Fatalf("SetSort() error = %v", err)
	}
	if err := c.SetFilter(Filter{"brand": "acme"}); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	waitIdle(t, c)

	var mu sync.Mutex
	notified := 0
	cancel := c.Subscribe(func(WindowState[quoteRow]) {
		mu.Lock()
		defer mu.Unlock()
		notified++
	})
	defer cancel()
	calls := src.callCount()
	before := c.Snapshot()

	same, err := ParseSort("price desc")
	if err != nil {
		t.Fatalf("ParseSort() error = %v", err)
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{name: "page", run: func() error { return c.SetPage(before.Page) }},
		{name: "page size", run: func() error { return c.SetPageSize(before.PageSize) }},
		{name: "sort", run: func() error { return c.SetSort(same) }},
		{name: "filter", run: func() error { return c.SetFilter(Filter{"brand": "acme"}) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("set %s error = %v", step.name, err)
		}
		waitIdle(t, c)
		if got := src.callCount(); got != calls {
			t.Fatalf("set %s: calls = %d, want %d", step.name, got, calls)
		}
		mu.Lock()
		got := notified
		mu.Unlock()
		if got != 0 {
			t.Fatalf("set %s: notifications = %d, want 0", step.name, got)
		}
	}
	if after := c.Snapshot(); after.Revision != before.Revision {
		t.Fatalf("revision = %d, want %d", after.Revision, before.Revision)
	}
}

// steppingClock advances only when told to, and is safe across goroutines.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestControllerMeasuresLatencyWithClock(t *testing.T) {
	clock := &steppingClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := newFakeSource(57)
	slow := FetcherFunc(func(ctx context.Context, q Query) (json.RawMessage, error) {
		clock.Advance(250 * time.Millisecond)
		return src.FetchPage(ctx, q)
	})
	c := newTestController(t, slow, Config[quoteRow]{Clock: clock.Now})

	mustStart(t, c)
	waitIdle(t, c)
	stats := c.Stats()
	if stats.LastLatency != 250*time.Millisecond || stats.AverageLatency != 250*time.Millisecond {
		t.Fatalf("latency = %v avg %v, want 250ms", stats.LastLatency, stats.AverageLatency)
	}
	if got := stats.Speed(); got != SpeedMedium {
		t.Fatalf("speed = %v, want %v", got, SpeedMedium)
	}
}
