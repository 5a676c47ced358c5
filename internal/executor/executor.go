// Package executor provides named, bounded worker pools so that different
// workload classes (bulk writes, metadata reads, per-domain RPC-bound work)
// never queue behind one another. Spec §4.2 / §9: "do not unify everything
// onto one pool, because mixing metadata and bulk work re-introduces the
// thundering herd the original design avoids."
package executor

import "context"

// Pool is a bounded concurrency gate: Run blocks until a slot is free, runs
// fn, and releases the slot on return.
type Pool struct {
	name string
	sem  chan struct{}
}

// NewPool allocates a pool with the given name and concurrency size.
func NewPool(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{name: name, sem: make(chan struct{}, size)}
}

func (p *Pool) Name() string { return p.name }

// Run executes fn on this pool, blocking for a free slot or until ctx is
// cancelled, whichever comes first.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}

// Submit runs fn and returns its typed result, for call sites that want a
// value back rather than side effects alone.
func Submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	runErr := p.Run(ctx, func() error {
		result, err = fn()
		return err
	})
	if runErr != nil && err == nil {
		return result, runErr
	}
	return result, err
}

// Backend selects pool sizing: the embedded (sqlite) backend runs much
// smaller pools than the networked one, per spec §4.2.
type Backend int

const (
	Embedded Backend = iota
	Networked
)

// Pools bundles the named pools spec §4.2 enumerates. Sizes below are the
// reference implementation's minimums; Networked pools are sized larger to
// match what a real Postgres instance can sustain.
type Pools struct {
	Read         *Pool
	Write        *Pool
	MetaRead     *Pool
	MetaWrite    *Pool
	Token        *Pool
	Log          *Pool
	Trace        *Pool
	Timestamp    *Pool
}

// NewPools builds the standard pool set for backend.
func NewPools(backend Backend) *Pools {
	if backend == Embedded {
		return &Pools{
			Read:      NewPool("read", 4),
			Write:     NewPool("write", 2),
			MetaRead:  NewPool("meta-read", 2),
			MetaWrite: NewPool("meta-write", 1),
			Token:     NewPool("token", 10),
			Log:       NewPool("log", 4),
			Trace:     NewPool("trace", 4),
			Timestamp: NewPool("timestamp", 4),
		}
	}
	return &Pools{
		Read:      NewPool("read", 16),
		Write:     NewPool("write", 8),
		MetaRead:  NewPool("meta-read", 4),
		MetaWrite: NewPool("meta-write", 2),
		Token:     NewPool("token", 10),
		Log:       NewPool("log", 10),
		Trace:     NewPool("trace", 10),
		Timestamp: NewPool("timestamp", 8),
	}
}
