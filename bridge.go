package bridge

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/bridge/internal/core"
	"github.com/cryguy/bridge/internal/protocol"
)

// Bridge is the only path into a foreign engine. It owns one engine and
// serializes every crossing into it, so at most one call is in flight per
// engine. A Bridge is safe for concurrent use.
//
// The Bridge keeps a ledger of the handles it has issued and not yet
// released. Handles are allocated monotonically and never reused, so a
// handle that is issued but no longer live has been released.
type Bridge struct {
	mu     sync.Mutex
	engine core.ForeignEngine
	cfg    Config
	log    *zap.Logger

	live      map[Handle]struct{}
	maxIssued Handle
	broken    bool
	closed    bool

	// calls feeds the dedicated engine goroutine; nil unless Config.Dedicated.
	calls chan func()
	done  chan struct{}
}

// New creates a Bridge over a fresh engine of the compiled-in backend
// (QuickJS, or V8 with -tags v8) and loads Config.Modules into it.
func New(cfg Config) (*Bridge, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := open(cfg, func() (core.ForeignEngine, error) {
		rt, err := newRuntime(cfg.engineConfig())
		if err != nil {
			return nil, err
		}
		eng, err := protocol.New(rt, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return eng, nil
	})
	if err != nil {
		return nil, err
	}
	if err := b.loadModules(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// NewWithEngine creates a Bridge over an existing engine. The Bridge takes
// ownership of engine and closes it on Close. Config.Modules is ignored.
func NewWithEngine(engine ForeignEngine, cfg Config) (*Bridge, error) {
	if engine == nil {
		return nil, errors.New("bridge: nil engine")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return open(cfg, func() (core.ForeignEngine, error) { return engine, nil })
}

func open(cfg Config, create func() (core.ForeignEngine, error)) (*Bridge, error) {
	b := &Bridge{
		cfg:  cfg,
		log:  cfg.Logger,
		live: make(map[Handle]struct{}),
	}
	if !cfg.Dedicated {
		engine, err := create()
		if err != nil {
			return nil, fmt.Errorf("creating engine: %w", err)
		}
		b.engine = engine
		return b, nil
	}

	b.calls = make(chan func())
	b.done = make(chan struct{})
	ready := make(chan error, 1)
	go b.serve(create, ready)
	if err := <-ready; err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return b, nil
}

// serve runs every crossing of a dedicated Bridge on one OS thread. The
// engine is created on that thread too.
func (b *Bridge) serve(create func() (core.ForeignEngine, error), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(b.done)

	engine, err := create()
	if err != nil {
		ready <- err
		return
	}
	b.engine = engine
	ready <- nil

	for fn := range b.calls {
		fn()
	}
}

func (b *Bridge) loadModules() error {
	names := make([]string, 0, len(b.cfg.Modules))
	for name := range b.cfg.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src, err := os.ReadFile(b.cfg.Modules[name])
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		if err := b.LoadModule(name, string(src)); err != nil {
			return err
		}
	}
	return nil
}

// cross runs fn against the engine. The caller holds b.mu. With a
// CallTimeout set, a watchdog interrupts the engine once limit passes; an
// interrupted engine is left in an unknown state, so the Bridge refuses
// further calls.
func (b *Bridge) cross(op string, limit time.Duration, fn func(e core.ForeignEngine) error) error {
	if b.closed {
		return ErrEngineClosed
	}
	if b.broken {
		return fmt.Errorf("engine was interrupted: %w", ErrEngineClosed)
	}

	run := func() error {
		if limit <= 0 {
			return fn(b.engine)
		}
		t := time.AfterFunc(limit, b.engine.Interrupt)
		err := fn(b.engine)
		if !t.Stop() {
			b.broken = true
			b.log.Warn("foreign call interrupted", zap.String("op", op), zap.Duration("limit", limit))
			return ErrInterrupted
		}
		return err
	}

	if b.calls == nil {
		return run()
	}
	res := make(chan error, 1)
	b.calls <- func() { res <- run() }
	return <-res
}

func (b *Bridge) track(h Handle) {
	b.live[h] = struct{}{}
	if h > b.maxIssued {
		b.maxIssued = h
	}
}

// check verifies that every handle is live. The caller holds b.mu.
func (b *Bridge) check(hs ...Handle) error {
	if b.closed {
		return ErrEngineClosed
	}
	for _, h := range hs {
		if _, ok := b.live[h]; !ok {
			return fmt.Errorf("handle %d: %w", h, ErrInvalidHandle)
		}
	}
	return nil
}

// failure adds op context to err. A foreign exception's payload is tracked
// and wrapped so the caller owns it.
func (b *Bridge) failure(op string, err error) error {
	var fe *core.ForeignException
	if errors.As(err, &fe) {
		out := &ForeignException{Name: fe.Name, Message: fe.Message, Stack: fe.Stack}
		if fe.Payload != 0 {
			b.track(fe.Payload)
			out.Payload = b.Wrap(fe.Payload)
		}
		err = out
	}
	return fmt.Errorf("%s: %w", op, err)
}

// pinned runs one crossing that answers with a fresh pin and records it.
func (b *Bridge) pinned(op string, limit time.Duration, fn func(e core.ForeignEngine) (Handle, error)) (Handle, error) {
	var h Handle
	err := b.cross(op, limit, func(e core.ForeignEngine) error {
		var err error
		h, err = fn(e)
		return err
	})
	if err != nil {
		return 0, b.failure(op, err)
	}
	b.track(h)
	b.log.Debug("crossed", zap.String("op", op), zap.Uint64("handle", uint64(h)))
	return h, nil
}

// InvokeMethod calls method name on the value behind receiver with the
// values behind args, in order, and returns a fresh handle on the result.
// The result handle never aliases receiver or any argument, even when the
// method returns its receiver; use Variant.Same to compare identities.
func (b *Bridge) InvokeMethod(receiver Handle, name string, args []Handle) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "invoke " + name
	if err := b.check(receiver); err != nil {
		return 0, fmt.Errorf("%s: receiver: %w", op, err)
	}
	if err := b.check(args...); err != nil {
		return 0, fmt.Errorf("%s: argument: %w", op, err)
	}
	return b.pinned(op, b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.Invoke(receiver, name, args)
	})
}

// applyMethod is InvokeMethod with the arguments read from the foreign
// array behind args.
func (b *Bridge) applyMethod(receiver Handle, name string, args Handle) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "invoke " + name
	if err := b.check(receiver, args); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return b.pinned(op, b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.Apply(receiver, name, args)
	})
}

// GetProperty resolves the foreign value behind key against the value behind
// receiver. A missing key yields a handle on undefined, or ErrKeyNotFound
// when Config.StrictKeys is set.
func (b *Bridge) GetProperty(receiver, key Handle) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(receiver, key); err != nil {
		return 0, fmt.Errorf("get: %w", err)
	}
	return b.pinned("get", b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.Lookup(receiver, key, b.cfg.StrictKeys)
	})
}

// Duplicate pins the value behind h a second time under a new handle.
func (b *Bridge) Duplicate(h Handle) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(h); err != nil {
		return 0, fmt.Errorf("duplicate: %w", err)
	}
	return b.pinned("pin", b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.Pin(h)
	})
}

// Release unpins the value behind h. Releasing a handle twice fails with
// ErrDoubleRelease; a handle this Bridge never issued fails with
// ErrInvalidHandle.
func (b *Bridge) Release(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("release %d: %w", h, ErrEngineClosed)
	}
	if _, ok := b.live[h]; !ok {
		if h != 0 && h <= b.maxIssued {
			return fmt.Errorf("release %d: %w", h, ErrDoubleRelease)
		}
		return fmt.Errorf("release %d: %w", h, ErrInvalidHandle)
	}
	delete(b.live, h)
	if err := b.cross("unpin", b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		return e.Unpin(h)
	}); err != nil {
		return b.failure(fmt.Sprintf("release %d", h), err)
	}
	b.log.Debug("released", zap.Uint64("handle", uint64(h)))
	return nil
}

// Wrap takes ownership of h without pinning it again. The Variant's Handle
// is exactly h.
func (b *Bridge) Wrap(h Handle) *Variant {
	return &Variant{b: b, h: h}
}

// Value constructs a foreign value from a JSON-encodable Go value. nil
// becomes null; pass Undefined for undefined.
func (b *Bridge) Value(v any) (*Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, err := b.pinned("construct", b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.FromGo(v)
	})
	if err != nil {
		return nil, err
	}
	return b.Wrap(h), nil
}

// NewObject constructs an empty foreign object.
func (b *Bridge) NewObject() (*Object, error) {
	v, err := b.Value(map[string]any{})
	if err != nil {
		return nil, err
	}
	return v.AsObject(), nil
}

// FromBytes constructs a foreign ArrayBuffer holding a copy of data.
func (b *Bridge) FromBytes(data []byte) (*Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, err := b.pinned("construct bytes", b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.FromBytes(data)
	})
	if err != nil {
		return nil, err
	}
	return b.Wrap(h), nil
}

// Args builds an argument list for Object.Invoke. The result is a real
// foreign array holding the values of vs, and it remembers their handles so
// Handles is a pure projection. Args does not take ownership of vs; they
// must stay live until the list is used.
func (b *Bridge) Args(vs ...*Variant) (*Array, error) {
	hs := make([]Handle, len(vs))
	for i, v := range vs {
		if err := v.usable(); err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		hs[i] = v.h
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(hs...); err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}
	h, err := b.pinned("construct array", b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.NewArray(hs)
	})
	if err != nil {
		return nil, err
	}
	elems := make([]*Variant, len(vs))
	copy(elems, vs)
	return &Array{Variant: b.Wrap(h), elems: elems}, nil
}

// Global returns the engine's global property name.
func (b *Bridge) Global(name string) (*Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, err := b.pinned("global "+name, b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.Global(name)
	})
	if err != nil {
		return nil, err
	}
	return b.Wrap(h), nil
}

// LoadModule evaluates ES module source and registers its exports under
// name. A default export replaces the namespace.
func (b *Bridge) LoadModule(name, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.cross("load "+name, b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		return e.LoadModule(name, source)
	})
	if err != nil {
		return b.failure("load "+name, err)
	}
	b.log.Debug("module loaded", zap.String("module", name))
	return nil
}

// Module returns the exports of a loaded module.
func (b *Bridge) Module(name string) (*Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, err := b.pinned("module "+name, b.cfg.CallTimeout, func(e core.ForeignEngine) (Handle, error) {
		return e.Module(name)
	})
	if err != nil {
		return nil, err
	}
	return b.Wrap(h).AsObject(), nil
}

// Await settles the promise behind v, running the engine's jobs and timers
// for up to Config.AwaitTimeout. A non-promise resolves to a new pin on
// itself. A rejection is returned as *ForeignException.
func (b *Bridge) Await(v *Variant) (*Variant, error) {
	if err := v.usable(); err != nil {
		return nil, fmt.Errorf("await: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(v.h); err != nil {
		return nil, fmt.Errorf("await: %w", err)
	}
	limit := b.cfg.CallTimeout
	if limit > 0 {
		limit += b.cfg.AwaitTimeout
	}
	deadline := time.Now().Add(b.cfg.AwaitTimeout)
	h, err := b.pinned("await", limit, func(e core.ForeignEngine) (Handle, error) {
		return e.Await(v.h, deadline)
	})
	if err != nil {
		return nil, err
	}
	return b.Wrap(h), nil
}

// Live reports how many pins the engine holds. It includes pins owned by
// exception payloads and any handle the caller has not released.
func (b *Bridge) Live() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int
	err := b.cross("live", b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		var err error
		n, err = e.Live()
		return err
	})
	return n, err
}

// Pinned reports how many handles this Bridge has issued and not released.
func (b *Bridge) Pinned() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Broken reports whether a crossing was interrupted. A broken Bridge fails
// every further call; close it.
func (b *Bridge) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}

// Do runs fn with a Scope that is closed when fn returns, on every path.
// The error from fn takes precedence; release failures are appended.
func (b *Bridge) Do(fn func(s *Scope) error) (err error) {
	s := &Scope{}
	defer func() {
		err = appendErr(err, s.Close())
	}()
	return fn(s)
}

// Close disposes the engine, dropping every pin at once. Handles still held
// by the caller become invalid. Close is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	if n := len(b.live); n > 0 {
		b.log.Warn("closing bridge with unreleased handles", zap.Int("count", n))
	}
	b.live = map[Handle]struct{}{}

	var err error
	if b.calls == nil {
		err = b.engine.Close()
	} else {
		res := make(chan error, 1)
		b.calls <- func() { res <- b.engine.Close() }
		err = <-res
		close(b.calls)
		<-b.done
	}
	b.closed = true
	if err != nil {
		return fmt.Errorf("closing engine: %w", err)
	}
	return nil
}
