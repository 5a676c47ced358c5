// Package filter implements the ordered, replayable, cache-backed stream
// materializer of spec §4.3: a background loop pulls chunks of T (Log or
// Trace) from an RPC-backed fetch function, commits them to the Store and
// DiskCache strictly in block order even though fetches themselves run
// concurrently, and serves many concurrent consumers cursoring at
// different blocks.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/yearn/yprice-go/internal/blocksem"
	"github.com/yearn/yprice-go/internal/rtlog"
)

// ErrPruned is returned by ObjectsThru when a non-reusable Filter has
// already discarded objects the caller is asking for.
var ErrPruned = errors.New("filter: requested range already pruned")

// chunkState is the per-chunk state machine from spec §4.3.
type chunkState int

const (
	stateQueued chunkState = iota
	stateInFlight
	stateFetchDone
	stateWaitingForPrev
	stateCommitted
	stateMetadataAdvanced
	stateFailed
)

// DiskCache is the persistence adapter a Filter[T] drives. LogDiskCache and
// TraceDiskCache both satisfy it against T = store.LogRow / store.TraceRow.
type DiskCache[T any] interface {
	IsCachedThru(ctx context.Context, fromBlock uint64) (uint64, error)
	CheckAndSelect(ctx context.Context, from, to uint64) ([]T, error)
	SetMetadata(ctx context.Context, from, thru uint64) error
}

// FetchFunc retrieves every T in [from, to] from the chain, in no
// particular order; the Filter imposes ordering itself before committing.
type FetchFunc[T any] func(ctx context.Context, from, to uint64) ([]T, error)

// InsertFunc persists a fetched chunk to the Store. Called once per chunk,
// strictly in block order, by the commit chain.
type InsertFunc[T any] func(ctx context.Context, rows []T) error

// BlockOrderFunc reports whether a sorts before b in this stream's
// canonical order ((block, txHash, logIndex) for logs, insertion order for
// traces already satisfies this trivially).
type BlockOrderFunc[T any] func(a, b T) bool

// Config configures one Filter instance.
type Config struct {
	FromBlock      uint64
	ChunkSize      uint64
	ChunksPerBatch int
	SleepTime      time.Duration
	Semaphore      *blocksem.BlockSemaphore
	IsReusable     bool
	Verbose        bool
}

func (c *Config) setDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 2_000
	}
	if c.ChunksPerBatch == 0 {
		c.ChunksPerBatch = 1
	}
	if c.SleepTime == 0 {
		c.SleepTime = 60 * time.Second
	}
	if c.Semaphore == nil {
		c.Semaphore = blocksem.New(4)
	}
}

// Filter is the generic LogFilter/TraceFilter engine.
type Filter[T any] struct {
	cfg     Config
	fetch   FetchFunc[T]
	insert  InsertFunc[T]
	cache   DiskCache[T]
	headFn  func(ctx context.Context) (uint64, error)
	less    BlockOrderFunc[T]
	logger  log.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	buf        []T
	cursor     uint64
	prunedThru uint64
	err      error
	started  bool
	cancel   context.CancelFunc
	warnedOnce map[string]bool
}

// New builds a Filter[T]. fetch retrieves raw rows for a block range;
// insert persists a chunk to the Store; cache resolves/advances the
// cachedThru range; less orders two T within a chunk (ties broken by
// txHash/logIndex for logs; traces are already insertion-ordered).
func New[T any](cfg Config, fetch FetchFunc[T], insert InsertFunc[T], cache DiskCache[T], headFn func(context.Context) (uint64, error), less BlockOrderFunc[T]) *Filter[T] {
	cfg.setDefaults()
	// cursor is doneThru, so it starts one block before FromBlock and
	// catchUp's first chunk begins at FromBlock itself. With FromBlock 0
	// the cursor starts at 0 and block 0 is not fetched.
	start := cfg.FromBlock
	if start > 0 {
		start--
	}
	f := &Filter[T]{
		cfg:        cfg,
		fetch:      fetch,
		insert:     insert,
		cache:      cache,
		headFn:     headFn,
		less:       less,
		logger:     rtlog.New("filter"),
		cursor:     start,
		warnedOnce: make(map[string]bool),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Start launches the background fetch loop. Idempotent.
func (f *Filter[T]) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	go f.run(runCtx)
}

// Stop cancels the background loop. In-flight HTTP calls are abandoned;
// pending commits are allowed to drain up to the caller's own shutdown
// grace period, not enforced here.
func (f *Filter[T]) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cursor returns doneThru: every block up to and including this has been
// committed.
func (f *Filter[T]) Cursor() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// Err returns the sticky background-loop error, if any.
func (f *Filter[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Filter[T]) run(ctx context.Context) {
	if err := f.loadCache(ctx); err != nil {
		f.fail(err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := f.catchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.fail(err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.SleepTime):
		}
	}
}

// loadCache reads DiskCache metadata and, if present, bulk-loads the
// already-cached range into the buffer, establishing the starting cursor.
func (f *Filter[T]) loadCache(ctx context.Context) error {
	thru, err := f.cache.IsCachedThru(ctx, f.cfg.FromBlock)
	if err != nil {
		return fmt.Errorf("filter: load cache: %w", err)
	}
	if thru < f.cfg.FromBlock {
		return nil
	}
	rows, err := f.cache.CheckAndSelect(ctx, f.cfg.FromBlock, thru)
	if err != nil {
		return fmt.Errorf("filter: initial select: %w", err)
	}
	f.mu.Lock()
	f.buf = append(f.buf, rows...)
	f.cursor = thru
	f.mu.Unlock()
	f.cond.Broadcast()
	return nil
}

// catchUp fetches from the current cursor to the chain head, one in-order
// commit chain per invocation.
func (f *Filter[T]) catchUp(ctx context.Context) error {
	head, err := f.headFn(ctx)
	if err != nil {
		return err
	}
	cursor := f.Cursor()
	if head <= cursor {
		return nil
	}

	type chunkResult struct {
		idx      int
		from, to uint64
		rows     []T
		err      error
		state    chunkState
	}

	ranges := chunkRanges(cursor+1, head, f.cfg.ChunkSize)
	results := make([]chunkResult, len(ranges))
	var wg sync.WaitGroup

	for i, rng := range ranges {
		results[i] = chunkResult{idx: i, from: rng.from, to: rng.to, state: stateQueued}
		wg.Add(1)
		go func(i int, from, to uint64) {
			defer wg.Done()
			results[i].state = stateInFlight
			if err := f.cfg.Semaphore.Acquire(ctx, to); err != nil {
				results[i].err, results[i].state = err, stateFailed
				return
			}
			defer f.cfg.Semaphore.Release()
			rows, err := f.fetchWithRetry(ctx, from, to)
			results[i].rows, results[i].err = rows, err
			if err != nil {
				results[i].state = stateFailed
			} else {
				results[i].state = stateFetchDone
			}
		}(i, rng.from, rng.to)
	}
	wg.Wait()

	// Commit strictly in order i=0,1,2,...; every chunk has already been
	// fetched above, and a failed chunk fails every successor, which is
	// marked stateFailed and never inserted or committed (spec §4.3's
	// chunk-chain failure propagation).
	var chain error
	for idx := range results {
		res := &results[idx]
		if chain != nil {
			res.state = stateFailed
			continue
		}
		if res.err != nil {
			chain = res.err
			continue
		}
		res.state = stateWaitingForPrev
		if f.less != nil {
			sort.SliceStable(res.rows, func(a, b int) bool { return f.less(res.rows[a], res.rows[b]) })
		}
		if err := f.insert(ctx, res.rows); err != nil {
			chain, res.state = fmt.Errorf("filter: insert chunk [%d,%d]: %w", res.from, res.to, err), stateFailed
			continue
		}
		res.state = stateCommitted
		if err := f.cache.SetMetadata(ctx, res.from, res.to); err != nil {
			chain, res.state = fmt.Errorf("filter: advance metadata [%d,%d]: %w", res.from, res.to, err), stateFailed
			continue
		}
		res.state = stateMetadataAdvanced
		f.commit(res.rows, res.to)
	}
	return chain
}

// commit appends a chunk's rows to the buffer and advances the cursor,
// waking any blocked consumers. For a non-reusable Filter it also records
// prunedThru; the buffer itself is dropped by ObjectsThru once it has
// handed the rows out.
func (f *Filter[T]) commit(rows []T, to uint64) {
	f.mu.Lock()
	f.buf = append(f.buf, rows...)
	f.cursor = to
	if !f.cfg.IsReusable {
		// Non-reusable Filters are single-shot streams: the buffer exists
		// only to bridge fetch completion to the next ObjectsThru call,
		// which empties it; a later call over the pruned range with an
		// empty buffer sees ErrPruned.
		f.prunedThru = to
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

// fetchWithRetry applies the provider-sync-error recovery rules of spec
// §4.3: an error matching a known recoverable substring retries the same
// [from, to] range after a fixed 2s pause, with no retry limit, instead of
// failing the chunk outright. The range is not widened between attempts.
func (f *Filter[T]) fetchWithRetry(ctx context.Context, from, to uint64) ([]T, error) {
	for {
		rows, err := f.fetch(ctx, from, to)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !isRecoverableFetchErr(err) {
			return nil, err
		}
		f.warnOnce(err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *Filter[T]) warnOnce(msg string) {
	f.mu.Lock()
	already := f.warnedOnce[msg]
	f.warnedOnce[msg] = true
	f.mu.Unlock()
	if !already {
		f.logger.Warn("filter: recoverable fetch error, retrying", "error", msg)
	}
}

func (f *Filter[T]) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.cond.Broadcast()
	f.logger.Error("filter: background loop failed", "error", err)
}

// ObjectsThru blocks until the cursor reaches block (or the context is
// cancelled, or the Filter hits a sticky error), then returns every
// buffered T with obj in [fromBlock, block], in stream order.
func (f *Filter[T]) ObjectsThru(ctx context.Context, fromBlock, block uint64, blockOf func(T) uint64) ([]T, error) {
	// cond.Wait() only unblocks on Broadcast/Signal; bridge ctx
	// cancellation into that by broadcasting once when ctx is done.
	stop := make(chan struct{})
	defer close(stop)
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				f.cond.Broadcast()
			case <-stop:
			}
		}()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.cursor < block && f.err == nil && ctx.Err() == nil {
		f.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if !f.cfg.IsReusable && f.prunedThru > 0 && fromBlock <= f.prunedThru && len(f.buf) == 0 {
		return nil, ErrPruned
	}
	out := make([]T, 0, len(f.buf))
	for _, row := range f.buf {
		b := blockOf(row)
		if b >= fromBlock && b <= block {
			out = append(out, row)
		}
	}
	if !f.cfg.IsReusable {
		f.buf = nil
	}
	return out, nil
}

type blockRange struct{ from, to uint64 }

func chunkRanges(from, to, size uint64) []blockRange {
	if size == 0 {
		size = 2_000
	}
	var out []blockRange
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}
		out = append(out, blockRange{start, end})
	}
	return out
}

func isRecoverableFetchErr(err error) bool {
	msg := err.Error()
	for _, substr := range []string{
		"missing trie node",
		"no state at block",
		"one of the blocks specified in filter cannot be found",
		"block range too large",
	} {
		if containsFold(msg, substr) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return len(n) == 0
	}
	lower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if lower(h[i+j]) != lower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
