package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Pool manages a fixed set of independent Bridges. Each Bridge serializes its
// own engine; distinct Bridges from one Pool may be used in parallel.
type Pool struct {
	bridges chan *Bridge
	cfg     Config
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool creates Config.PoolSize bridges up front.
func NewPool(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool := &Pool{
		bridges: make(chan *Bridge, cfg.PoolSize),
		cfg:     cfg,
		log:     cfg.Logger,
	}

	for i := 0; i < cfg.PoolSize; i++ {
		b, err := New(cfg)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("creating pool bridge %d: %w", i, err)
		}
		pool.bridges <- b
	}

	return pool, nil
}

// Get acquires a Bridge from the pool. Blocks until one is available or ctx
// is done.
func (p *Pool) Get(ctx context.Context) (*Bridge, error) {
	select {
	case b, ok := <-p.bridges:
		if !ok {
			return nil, ErrPoolClosed
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a Bridge to the pool. A broken Bridge is closed and replaced
// with a fresh one.
func (p *Pool) Put(b *Bridge) {
	if b.Broken() {
		p.log.Warn("discarding interrupted bridge")
		_ = b.Close()
		fresh, err := New(p.cfg)
		if err != nil {
			p.log.Error("replacing interrupted bridge", zap.Error(err))
			return
		}
		b = fresh
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = b.Close()
		return
	}
	select {
	case p.bridges <- b:
	default:
		// Pool full: b did not come from this pool.
		_ = b.Close()
	}
}

// Close closes every idle Bridge. Bridges checked out at the time are
// closed when they are put back.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	for {
		select {
		case b := <-p.bridges:
			err = multierr.Append(err, b.Close())
		default:
			close(p.bridges)
			return err
		}
	}
}
