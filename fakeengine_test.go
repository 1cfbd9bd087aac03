package bridge

// fakeengine_test.go provides an in-memory ForeignEngine for bridge package
// tests. It records every crossing and flags overlapping calls. No engine
// backend is involved.

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/bridge/internal/core"
)

// fakeMethod implements a method of a fakeObject. A non-nil thrown value
// makes the call throw it.
type fakeMethod func(self *fakeObject, args []any) (result any, thrown any)

type fakeObject struct {
	props   map[string]any
	methods map[string]fakeMethod
}

type fakePromise struct {
	value    any
	rejected bool
}

// fakeThrown is what fake methods throw.
type fakeThrown struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type invokeCall struct {
	Recv Handle
	Name string
	Args []Handle
}

type fakeEngine struct {
	mu      sync.Mutex
	values  map[Handle]any
	next    Handle
	globals map[string]any
	modules map[string]any

	invokes []invokeCall
	applies []invokeCall
	ops     []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	interrupted chan struct{}
	stopOnce    sync.Once
	closed      bool
}

var _ core.ForeignEngine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		values:      make(map[Handle]any),
		globals:     make(map[string]any),
		modules:     make(map[string]any),
		interrupted: make(chan struct{}),
	}
}

// calculator is an object with the methods the tests exercise.
func calculator() *fakeObject {
	return &fakeObject{
		props: map[string]any{"name": "calc"},
		methods: map[string]fakeMethod{
			"add": func(_ *fakeObject, args []any) (any, any) {
				sum := 0.0
				for _, a := range args {
					f, _ := a.(float64)
					sum += f
				}
				return sum, nil
			},
			"self": func(self *fakeObject, _ []any) (any, any) {
				return self, nil
			},
			"pair": func(_ *fakeObject, args []any) (any, any) {
				return []any{"left", map[string]any{"k": "right"}}, nil
			},
			"boom": func(_ *fakeObject, _ []any) (any, any) {
				return nil, &fakeThrown{Name: "RangeError", Message: "too big"}
			},
			"later": func(_ *fakeObject, args []any) (any, any) {
				return &fakePromise{value: args[0]}, nil
			},
			"refuse": func(_ *fakeObject, _ []any) (any, any) {
				return &fakePromise{value: &fakeThrown{Name: "Error", Message: "nope"}, rejected: true}, nil
			},
			"count": func(_ *fakeObject, args []any) (any, any) {
				return float64(len(args)), nil
			},
			"spin": func(_ *fakeObject, _ []any) (any, any) {
				return nil, nil
			},
		},
	}
}

// enter marks a crossing in progress and records its name.
func (f *fakeEngine) enter(op string) func() {
	n := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(50 * time.Microsecond)
	f.mu.Lock()
	f.ops = append(f.ops, op)
	return func() {
		f.mu.Unlock()
		f.inFlight.Add(-1)
	}
}

func (f *fakeEngine) pin(v any) Handle {
	f.next++
	f.values[f.next] = v
	return f.next
}

func (f *fakeEngine) get(h Handle) (any, error) {
	v, ok := f.values[h]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", h, core.ErrInvalidHandle)
	}
	return v, nil
}

func (f *fakeEngine) throw(v any) error {
	fe := &core.ForeignException{Payload: f.pin(v)}
	if t, ok := v.(*fakeThrown); ok {
		fe.Name, fe.Message = t.Name, t.Message
	}
	return fe
}

func (f *fakeEngine) call(recv Handle, name string, argv []any) (Handle, error) {
	target, err := f.get(recv)
	if err != nil {
		return 0, err
	}
	obj, ok := target.(*fakeObject)
	if !ok || obj.methods[name] == nil {
		return 0, fmt.Errorf("method %q: %w", name, core.ErrNoSuchMethod)
	}
	if name == "spin" {
		// spin blocks until the engine is interrupted.
		f.mu.Unlock()
		<-f.interrupted
		f.mu.Lock()
		return 0, f.throw(&fakeThrown{Name: "InternalError", Message: "interrupted"})
	}
	result, thrown := obj.methods[name](obj, argv)
	if thrown != nil {
		return 0, f.throw(thrown)
	}
	return f.pin(result), nil
}

func (f *fakeEngine) Invoke(recv Handle, name string, args []Handle) (Handle, error) {
	defer f.enter("invoke")()
	f.invokes = append(f.invokes, invokeCall{Recv: recv, Name: name, Args: append([]Handle(nil), args...)})
	argv := make([]any, len(args))
	for i, h := range args {
		v, err := f.get(h)
		if err != nil {
			return 0, err
		}
		argv[i] = v
	}
	return f.call(recv, name, argv)
}

func (f *fakeEngine) Apply(recv Handle, name string, args Handle) (Handle, error) {
	defer f.enter("apply")()
	f.applies = append(f.applies, invokeCall{Recv: recv, Name: name, Args: []Handle{args}})
	v, err := f.get(args)
	if err != nil {
		return 0, err
	}
	argv, ok := v.([]any)
	if !ok {
		return 0, fmt.Errorf("argument list %d: %w", args, core.ErrInvalidHandle)
	}
	return f.call(recv, name, argv)
}

func (f *fakeEngine) Lookup(recv, key Handle, strict bool) (Handle, error) {
	defer f.enter("lookup")()
	target, err := f.get(recv)
	if err != nil {
		return 0, err
	}
	k, err := f.get(key)
	if err != nil {
		return 0, err
	}

	var (
		result any
		found  bool
	)
	switch t := target.(type) {
	case *fakeObject:
		if s, ok := k.(string); ok {
			result, found = t.props[s]
		}
	case map[string]any:
		if s, ok := k.(string); ok {
			result, found = t[s]
		}
	case []any:
		switch kk := k.(type) {
		case float64:
			if i := int(kk); i >= 0 && i < len(t) && float64(i) == kk {
				result, found = t[i], true
			}
		case int:
			if kk >= 0 && kk < len(t) {
				result, found = t[kk], true
			}
		case string:
			if kk == "length" {
				result, found = float64(len(t)), true
			}
		}
	case nil, core.UndefinedValue:
		return 0, f.throw(&fakeThrown{Name: "TypeError", Message: "cannot read properties of null"})
	}
	if !found {
		if strict {
			return 0, core.ErrKeyNotFound
		}
		result = core.Undefined
	}
	return f.pin(result), nil
}

func (f *fakeEngine) Pin(h Handle) (Handle, error) {
	defer f.enter("pin")()
	v, err := f.get(h)
	if err != nil {
		return 0, err
	}
	return f.pin(v), nil
}

func (f *fakeEngine) Unpin(h Handle) error {
	defer f.enter("unpin")()
	if _, err := f.get(h); err != nil {
		return err
	}
	delete(f.values, h)
	return nil
}

func (f *fakeEngine) FromGo(v any) (Handle, error) {
	defer f.enter("construct")()
	if _, ok := v.(core.UndefinedValue); ok {
		return f.pin(core.Undefined), nil
	}
	// Normalize through JSON the way a real engine parses it.
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, err
	}
	return f.pin(out), nil
}

func (f *fakeEngine) FromBytes(data []byte) (Handle, error) {
	defer f.enter("construct bytes")()
	return f.pin(append([]byte(nil), data...)), nil
}

func (f *fakeEngine) NewArray(elems []Handle) (Handle, error) {
	defer f.enter("array")()
	out := make([]any, len(elems))
	for i, h := range elems {
		v, err := f.get(h)
		if err != nil {
			return 0, err
		}
		out[i] = v
	}
	return f.pin(out), nil
}

func (f *fakeEngine) Export(h Handle) (string, error) {
	defer f.enter("export")()
	v, err := f.get(h)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case core.UndefinedValue:
		return "null", nil
	case *fakeObject:
		v = t.props
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *fakeEngine) Describe(h Handle) (core.Kind, error) {
	defer f.enter("describe")()
	v, err := f.get(h)
	if err != nil {
		return "", err
	}
	switch v.(type) {
	case core.UndefinedValue:
		return core.KindUndefined, nil
	case nil:
		return core.KindNull, nil
	case bool:
		return core.KindBoolean, nil
	case float64, int:
		return core.KindNumber, nil
	case string:
		return core.KindString, nil
	case []any:
		return core.KindArray, nil
	case []byte:
		return core.KindArrayBuffer, nil
	case *fakePromise:
		return core.KindPromise, nil
	default:
		return core.KindObject, nil
	}
}

func (f *fakeEngine) Same(a, b Handle) (bool, error) {
	defer f.enter("same")()
	va, err := f.get(a)
	if err != nil {
		return false, err
	}
	vb, err := f.get(b)
	if err != nil {
		return false, err
	}
	return sameValue(va, vb), nil
}

func sameValue(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (f *fakeEngine) Global(name string) (Handle, error) {
	defer f.enter("global")()
	v, ok := f.globals[name]
	if !ok {
		return f.pin(core.Undefined), nil
	}
	return f.pin(v), nil
}

func (f *fakeEngine) Await(h Handle, _ time.Time) (Handle, error) {
	defer f.enter("await")()
	v, err := f.get(h)
	if err != nil {
		return 0, err
	}
	p, ok := v.(*fakePromise)
	if !ok {
		return f.pin(v), nil
	}
	if p.rejected {
		return 0, f.throw(p.value)
	}
	return f.pin(p.value), nil
}

func (f *fakeEngine) Bytes(h Handle) ([]byte, error) {
	defer f.enter("bytes")()
	v, err := f.get(h)
	if err != nil {
		return nil, err
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", h, core.ErrNotBinary)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeEngine) LoadModule(name, source string) error {
	defer f.enter("load")()
	if source == "" {
		return errors.New("empty module")
	}
	f.modules[name] = calculator()
	return nil
}

func (f *fakeEngine) Module(name string) (Handle, error) {
	defer f.enter("module")()
	m, ok := f.modules[name]
	if !ok {
		return 0, fmt.Errorf("module %q: %w", name, core.ErrNoModule)
	}
	return f.pin(m), nil
}

func (f *fakeEngine) Live() (int, error) {
	defer f.enter("live")()
	return len(f.values), nil
}

func (f *fakeEngine) Interrupt() {
	f.stopOnce.Do(func() { close(f.interrupted) })
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.values = map[Handle]any{}
	return nil
}

// countOps reports how many crossings of kind op the engine has seen.
func (f *fakeEngine) countOps(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (f *fakeEngine) totalOps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

func (f *fakeEngine) recordedInvokes() []invokeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invokeCall(nil), f.invokes...)
}
