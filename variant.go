package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cryguy/bridge/internal/core"
)

// Variant owns exactly one pin on a foreign value of unknown shape. It must
// be released exactly once; use Clone for a second, independent pin. A
// Variant must not be copied by value (go vet flags it through the atomic).
type Variant struct {
	b        *Bridge
	h        Handle
	released atomic.Bool
}

// Handle returns the handle the Variant owns, unmodified.
func (v *Variant) Handle() Handle { return v.h }

// Bridge returns the Bridge the Variant's value lives behind.
func (v *Variant) Bridge() *Bridge { return v.b }

// Released reports whether Release has been called.
func (v *Variant) Released() bool { return v.released.Load() }

func (v *Variant) usable() error {
	if v == nil {
		return fmt.Errorf("nil variant: %w", ErrInvalidHandle)
	}
	if v.released.Load() {
		return fmt.Errorf("handle %d: %w", v.h, ErrUseAfterRelease)
	}
	return nil
}

// Release drops the pin. A second call fails with ErrDoubleRelease.
func (v *Variant) Release() error {
	if !v.released.CompareAndSwap(false, true) {
		return fmt.Errorf("release %d: %w", v.h, ErrDoubleRelease)
	}
	return v.b.Release(v.h)
}

// Clone pins the same foreign value again and returns a new owner for it.
func (v *Variant) Clone() (*Variant, error) {
	if err := v.usable(); err != nil {
		return nil, err
	}
	h, err := v.b.Duplicate(v.h)
	if err != nil {
		return nil, err
	}
	return v.b.Wrap(h), nil
}

// AsObject narrows v to an Object. The narrowing is not checked; a value of
// the wrong shape fails on first use. v and the result share one pin.
func (v *Variant) AsObject() *Object { return &Object{Variant: v} }

// AsArray narrows v to an Array. The narrowing is not checked. v and the
// result share one pin.
func (v *Variant) AsArray() *Array { return &Array{Variant: v} }

// Kind reports what the engine holds behind v.
func (v *Variant) Kind() (Kind, error) {
	if err := v.usable(); err != nil {
		return "", err
	}
	return v.b.describe(v.h)
}

// IsNull reports whether v holds null.
func (v *Variant) IsNull() (bool, error) {
	k, err := v.Kind()
	return k == KindNull, err
}

// IsUndefined reports whether v holds undefined, as a missing key does
// outside strict mode.
func (v *Variant) IsUndefined() (bool, error) {
	k, err := v.Kind()
	return k == KindUndefined, err
}

// Same reports whether v and other hold the same foreign value.
func (v *Variant) Same(other *Variant) (bool, error) {
	if err := v.usable(); err != nil {
		return false, err
	}
	if err := other.usable(); err != nil {
		return false, err
	}
	return v.b.same(v.h, other.h)
}

// JSON returns the JSON encoding of the foreign value. Values JSON cannot
// represent, such as undefined and functions, encode as null.
func (v *Variant) JSON() (string, error) {
	if err := v.usable(); err != nil {
		return "", err
	}
	return v.b.export(v.h)
}

// Export decodes the foreign value into dst as encoding/json would.
func (v *Variant) Export(dst any) error {
	text, err := v.JSON()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return fmt.Errorf("export %d: %w", v.h, err)
	}
	return nil
}

func (v *Variant) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.released.Load() {
		return fmt.Sprintf("<released %d>", v.h)
	}
	text, err := v.JSON()
	if err != nil {
		return fmt.Sprintf("<handle %d: %v>", v.h, err)
	}
	return text
}

// Bytes copies the contents of a foreign ArrayBuffer or typed array.
func (v *Variant) Bytes() ([]byte, error) {
	if err := v.usable(); err != nil {
		return nil, err
	}
	return v.b.bytes(v.h)
}

// Await is shorthand for v.Bridge().Await(v).
func (v *Variant) Await() (*Variant, error) {
	if err := v.usable(); err != nil {
		return nil, err
	}
	return v.b.Await(v)
}

// Object is a Variant the caller knows to be a foreign instance.
type Object struct {
	*Variant
}

// Invoke calls method name with the values in args and returns the result.
// A nil args calls with no arguments. A failed call leaves o usable.
func (o *Object) Invoke(name string, args *Array) (*Variant, error) {
	if err := o.usable(); err != nil {
		return nil, err
	}
	var (
		h   Handle
		err error
	)
	switch {
	case args == nil:
		h, err = o.b.InvokeMethod(o.h, name, nil)
	case args.elems != nil:
		var hs []Handle
		if hs, err = args.Handles(); err != nil {
			return nil, err
		}
		h, err = o.b.InvokeMethod(o.h, name, hs)
	default:
		if err = args.usable(); err != nil {
			return nil, err
		}
		h, err = o.b.applyMethod(o.h, name, args.h)
	}
	if err != nil {
		return nil, err
	}
	return o.b.Wrap(h), nil
}

// Call invokes method name with args, building the argument list on the fly.
func (o *Object) Call(name string, args ...*Variant) (*Variant, error) {
	if err := o.usable(); err != nil {
		return nil, err
	}
	list, err := o.b.Args(args...)
	if err != nil {
		return nil, err
	}
	defer list.Release()
	return o.Invoke(name, list)
}

// Get resolves key against o.
func (o *Object) Get(key *Variant) (*Variant, error) {
	return get(o.Variant, key)
}

// GetKey resolves a string key against o.
func (o *Object) GetKey(name string) (*Variant, error) {
	return getKey(o.Variant, name)
}

// Array is a Variant the caller knows to be a foreign collection. An Array
// built with Bridge.Args also serves as an argument list.
type Array struct {
	*Variant
	elems []*Variant
}

// Get resolves key against a.
func (a *Array) Get(key *Variant) (*Variant, error) {
	return get(a.Variant, key)
}

// GetKey resolves a string key against a.
func (a *Array) GetKey(name string) (*Variant, error) {
	return getKey(a.Variant, name)
}

// Index returns element i.
func (a *Array) Index(i int) (*Variant, error) {
	if err := a.usable(); err != nil {
		return nil, err
	}
	key, err := a.b.Value(i)
	if err != nil {
		return nil, err
	}
	defer key.Release()
	return get(a.Variant, key)
}

// Len returns the foreign length property.
func (a *Array) Len() (int, error) {
	v, err := getKey(a.Variant, "length")
	if err != nil {
		return 0, err
	}
	defer v.Release()
	var n int
	if err := v.Export(&n); err != nil {
		return 0, fmt.Errorf("length: %w", err)
	}
	return n, nil
}

// Each calls fn with every element in order. The element is released when
// fn returns; Clone it to keep it. Each stops at the first error.
func (a *Array) Each(fn func(i int, v *Variant) error) error {
	n, err := a.Len()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v, err := a.Index(i)
		if err != nil {
			return err
		}
		err = fn(i, v)
		if !v.Released() {
			err = appendErr(err, v.Release())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Handles projects an argument list onto its element handles, in order. It
// does not cross into the engine. Arrays not built with Bridge.Args fail
// with ErrNotArgumentList.
func (a *Array) Handles() ([]Handle, error) {
	if err := a.usable(); err != nil {
		return nil, err
	}
	if a.elems == nil {
		return nil, fmt.Errorf("handle %d: %w", a.h, ErrNotArgumentList)
	}
	hs := make([]Handle, len(a.elems))
	for i, e := range a.elems {
		if err := e.usable(); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		hs[i] = e.h
	}
	return hs, nil
}

func get(recv, key *Variant) (*Variant, error) {
	if err := recv.usable(); err != nil {
		return nil, err
	}
	if err := key.usable(); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	h, err := recv.b.GetProperty(recv.h, key.h)
	if err != nil {
		return nil, err
	}
	return recv.b.Wrap(h), nil
}

func getKey(recv *Variant, name string) (*Variant, error) {
	if err := recv.usable(); err != nil {
		return nil, err
	}
	key, err := recv.b.Value(name)
	if err != nil {
		return nil, err
	}
	defer key.Release()
	return get(recv, key)
}

// The inspection crossings below create no pins.

func (b *Bridge) describe(h Handle) (core.Kind, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(h); err != nil {
		return "", fmt.Errorf("kind: %w", err)
	}
	var k core.Kind
	err := b.cross("describe", b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		var err error
		k, err = e.Describe(h)
		return err
	})
	if err != nil {
		return "", b.failure("kind", err)
	}
	return k, nil
}

func (b *Bridge) same(x, y Handle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(x, y); err != nil {
		return false, fmt.Errorf("same: %w", err)
	}
	var same bool
	err := b.cross("same", b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		var err error
		same, err = e.Same(x, y)
		return err
	})
	if err != nil {
		return false, b.failure("same", err)
	}
	return same, nil
}

func (b *Bridge) export(h Handle) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(h); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	var text string
	err := b.cross("export", b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		var err error
		text, err = e.Export(h)
		return err
	})
	if err != nil {
		return "", b.failure("export", err)
	}
	return text, nil
}

func (b *Bridge) bytes(h Handle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(h); err != nil {
		return nil, fmt.Errorf("bytes: %w", err)
	}
	var data []byte
	err := b.cross("bytes", b.cfg.CallTimeout, func(e core.ForeignEngine) error {
		var err error
		data, err = e.Bytes(h)
		return err
	})
	if err != nil {
		return nil, b.failure("bytes", err)
	}
	return data, nil
}
