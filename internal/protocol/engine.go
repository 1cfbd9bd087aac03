package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/bridge/internal/core"
	"github.com/cryguy/bridge/internal/eventloop"
)

// stageGlobal is the temporary global used to move bytes across the boundary.
const stageGlobal = "__bridge_stage"

// Engine implements core.ForeignEngine on top of any core.Runtime by
// installing the value table and speaking its JSON protocol.
type Engine struct {
	rt     core.Runtime
	el     *eventloop.EventLoop
	log    *zap.Logger
	closed atomic.Bool
}

var _ core.ForeignEngine = (*Engine)(nil)

// setupFunc installs one piece of host support into a fresh runtime.
type setupFunc func(rt core.JSRuntime, el *eventloop.EventLoop, log *zap.Logger) error

var setupFuncs = []setupFunc{
	SetupConsole,
	SetupTimers,
	func(rt core.JSRuntime, _ *eventloop.EventLoop, _ *zap.Logger) error {
		return rt.Eval(valueTableJS)
	},
}

// New takes ownership of rt and prepares it for the bridge. On error rt is
// closed.
func New(rt core.Runtime, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	el := eventloop.New(log.With(zap.String("source", "foreign")))
	for _, setup := range setupFuncs {
		if err := setup(rt, el, log); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	return &Engine{rt: rt, el: el, log: log}, nil
}

// call evaluates one protocol entry point and decodes its reply.
func (e *Engine) call(js string) (*envelope, error) {
	if e.closed.Load() {
		return nil, core.ErrEngineClosed
	}
	raw, err := e.rt.EvalString(js)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	return env, nil
}

// pinCall is call for entry points that answer with a fresh pin.
func (e *Engine) pinCall(js string) (core.Handle, error) {
	env, err := e.call(js)
	if err != nil {
		return 0, err
	}
	return core.Handle(env.H), nil
}

// jsString renders s as a JavaScript string literal. A JSON string is one;
// Go quoting is not, since JS reads \a and \U as plain letters.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func handleList(hs []core.Handle) string {
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = strconv.FormatUint(uint64(h), 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (e *Engine) Invoke(recv core.Handle, name string, args []core.Handle) (core.Handle, error) {
	h, err := e.pinCall(fmt.Sprintf("__bridge.invoke(%d, %s, %s)", recv, jsString(name), handleList(args)))
	if !e.closed.Load() {
		e.rt.RunMicrotasks()
	}
	return h, err
}

func (e *Engine) Apply(recv core.Handle, name string, args core.Handle) (core.Handle, error) {
	h, err := e.pinCall(fmt.Sprintf("__bridge.apply(%d, %s, %d)", recv, jsString(name), args))
	if !e.closed.Load() {
		e.rt.RunMicrotasks()
	}
	return h, err
}

func (e *Engine) Lookup(recv, key core.Handle, strict bool) (core.Handle, error) {
	return e.pinCall(fmt.Sprintf("__bridge.lookup(%d, %d, %t)", recv, key, strict))
}

func (e *Engine) Pin(h core.Handle) (core.Handle, error) {
	return e.pinCall(fmt.Sprintf("__bridge.pin(%d)", h))
}

func (e *Engine) Unpin(h core.Handle) error {
	_, err := e.call(fmt.Sprintf("__bridge.unpin(%d)", h))
	return err
}

// FromGo marshals v to JSON and parses it inside the engine. A nil v
// becomes null; use core.Undefined for undefined.
func (e *Engine) FromGo(v any) (core.Handle, error) {
	if _, ok := v.(core.UndefinedValue); ok {
		return e.pinCall("__bridge.undef()")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshaling %T: %w", v, err)
	}
	return e.pinCall(fmt.Sprintf("__bridge.fromJSON(%s)", jsString(string(data))))
}

func (e *Engine) FromBytes(data []byte) (core.Handle, error) {
	bs, ok := e.rt.(core.ByteStager)
	if !ok {
		return 0, fmt.Errorf("runtime %T cannot transfer binary data", e.rt)
	}
	if e.closed.Load() {
		return 0, core.ErrEngineClosed
	}
	if err := bs.PutBytes(stageGlobal, data); err != nil {
		return 0, fmt.Errorf("writing %d bytes: %w", len(data), err)
	}
	return e.pinCall(fmt.Sprintf("__bridge.adopt(%q)", stageGlobal))
}

func (e *Engine) NewArray(elems []core.Handle) (core.Handle, error) {
	return e.pinCall(fmt.Sprintf("__bridge.array(%s)", handleList(elems)))
}

func (e *Engine) Export(h core.Handle) (string, error) {
	env, err := e.call(fmt.Sprintf("__bridge.exportJSON(%d)", h))
	if err != nil {
		return "", err
	}
	if env.J == nil {
		return "null", nil
	}
	return *env.J, nil
}

func (e *Engine) Describe(h core.Handle) (core.Kind, error) {
	env, err := e.call(fmt.Sprintf("__bridge.describe(%d)", h))
	if err != nil {
		return "", err
	}
	return core.Kind(env.K), nil
}

func (e *Engine) Same(a, b core.Handle) (bool, error) {
	env, err := e.call(fmt.Sprintf("__bridge.same(%d, %d)", a, b))
	if err != nil {
		return false, err
	}
	return env.B, nil
}

func (e *Engine) Global(name string) (core.Handle, error) {
	return e.pinCall(fmt.Sprintf("__bridge.global(%s)", jsString(name)))
}

// Await pumps microtasks and timers until the promise behind h settles.
func (e *Engine) Await(h core.Handle, deadline time.Time) (core.Handle, error) {
	env, err := e.call(fmt.Sprintf("__bridge.watch(%d)", h))
	if err != nil {
		return 0, err
	}
	if env.W == 0 {
		return core.Handle(env.H), nil
	}
	token := env.W
	for {
		// Microtask chains run to completion here, so only a due timer can
		// change the promise's state between polls.
		e.rt.RunMicrotasks()
		e.el.Drain(e.rt, time.Now())

		env, err := e.call(fmt.Sprintf("__bridge.poll(%d)", token))
		if err != nil {
			return 0, err
		}
		if !env.Pending {
			return core.Handle(env.H), nil
		}

		now := time.Now()
		if now.After(deadline) {
			_ = e.rt.Eval(fmt.Sprintf("__bridge.forget(%d)", token))
			e.log.Debug("promise still pending at deadline", zap.Uint64("handle", uint64(h)))
			return 0, core.ErrPromiseTimeout
		}
		wake := deadline
		if due, ok := e.el.NextDue(); ok && due.Before(wake) {
			wake = due
		}
		time.Sleep(wake.Sub(now))
	}
}

func (e *Engine) Bytes(h core.Handle) ([]byte, error) {
	bs, ok := e.rt.(core.ByteStager)
	if !ok {
		return nil, fmt.Errorf("runtime %T cannot transfer binary data", e.rt)
	}
	if _, err := e.call(fmt.Sprintf("__bridge.stage(%d, %q)", h, stageGlobal)); err != nil {
		return nil, err
	}
	data, err := bs.TakeBytes(stageGlobal)
	if err != nil {
		return nil, fmt.Errorf("reading staged buffer: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (e *Engine) LoadModule(name, source string) error {
	if e.closed.Load() {
		return core.ErrEngineClosed
	}
	wrapped, err := WrapESModule(source)
	if err != nil {
		return fmt.Errorf("module %s: %w", name, err)
	}
	if err := e.rt.Eval(wrapped); err != nil {
		return fmt.Errorf("running module %s: %w", name, err)
	}
	if _, err := e.call(fmt.Sprintf("__bridge.register(%s, globalThis.%s)", jsString(name), moduleGlobal)); err != nil {
		return fmt.Errorf("registering module %s: %w", name, err)
	}
	e.rt.RunMicrotasks()
	return e.rt.Eval("delete globalThis." + moduleGlobal)
}

func (e *Engine) Module(name string) (core.Handle, error) {
	return e.pinCall(fmt.Sprintf("__bridge.module(%s)", jsString(name)))
}

func (e *Engine) Live() (int, error) {
	env, err := e.call("__bridge.live()")
	if err != nil {
		return 0, err
	}
	return env.N, nil
}

func (e *Engine) Interrupt() {
	if !e.closed.Load() {
		e.rt.Interrupt()
	}
}

// Close drops every pin at once by disposing the engine.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.el.Reset()
	return e.rt.Close()
}
