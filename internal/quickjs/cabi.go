//go:build !v8

package quickjs

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// cAPI reaches the libquickjs C API behind a *quickjs.VM. The Go wrapper
// keeps its context, runtime and TLS unexported, so they are lifted out once
// with reflect and unsafe.
//
// VM struct layout (modernc.org/quickjs@v0.17.1):
//
//	type VM struct {
//	    cContext uintptr
//	    ...
//	    runtime  *runtime
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
type cAPI struct {
	tls *libc.TLS
	ctx uintptr
	rt  uintptr
}

// liftCAPI returns nil and an error when the layout above no longer holds.
func liftCAPI(vm *quickjs.VM) (c *cAPI, err error) {
	defer func() {
		if p := recover(); p != nil {
			c, err = nil, fmt.Errorf("reading VM internals: %v", p)
		}
	}()

	vmVal := reflect.ValueOf(vm).Elem()
	rtField := vmVal.FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return nil, errors.New("quickjs.VM has no runtime field")
	}
	rtVal := reflect.NewAt(rtField.Type().Elem(), unsafe.Pointer(rtField.Pointer())).Elem()

	cRuntime := rtVal.FieldByName("cRuntime")
	tlsField := rtVal.FieldByName("tls")
	if !cRuntime.IsValid() || !tlsField.IsValid() || tlsField.IsNil() {
		return nil, errors.New("quickjs runtime layout changed")
	}

	c = &cAPI{
		tls: (*libc.TLS)(unsafe.Pointer(tlsField.Pointer())),
		ctx: *(*uintptr)(unsafe.Pointer(vmVal.UnsafeAddr())),
		rt:  uintptr(cRuntime.Uint()),
	}
	if c.ctx == 0 || c.rt == 0 {
		return nil, errors.New("quickjs VM has no live context")
	}

	// A round trip through the global object proves the pointers are sound.
	glob := lib.XJS_GetGlobalObject(c.tls, c.ctx)
	lib.XFreeValue(c.tls, c.ctx, glob)
	return c, nil
}

// pumpJobs runs queued promise jobs until the queue is empty. The Go
// wrapper never calls JS_ExecutePendingJob on its own.
func (c *cAPI) pumpJobs() int {
	n := 0
	for lib.XJS_ExecutePendingJob(c.tls, c.rt, 0) > 0 {
		n++
	}
	return n
}

// setArrayBuffer stores a copy of data at globalThis[slot].
func (c *cAPI) setArrayBuffer(slot string, data []byte) error {
	val := lib.XJS_NewArrayBufferCopy(c.tls, c.ctx, uintptr(unsafe.Pointer(&data[0])), lib.Tsize_t(len(data)))

	name, err := libc.CString(slot)
	if err != nil {
		lib.XFreeValue(c.tls, c.ctx, val)
		return fmt.Errorf("slot name: %w", err)
	}
	defer libc.Xfree(c.tls, name)

	glob := lib.XJS_GetGlobalObject(c.tls, c.ctx)
	defer lib.XFreeValue(c.tls, c.ctx, glob)
	// JS_SetPropertyStr takes ownership of val.
	if lib.XJS_SetPropertyStr(c.tls, c.ctx, glob, name, val) < 0 {
		return fmt.Errorf("setting %s", slot)
	}
	return nil
}

// arrayBuffer copies the bytes of the ArrayBuffer at globalThis[slot]. A
// missing or empty buffer yields nil.
func (c *cAPI) arrayBuffer(slot string) ([]byte, error) {
	name, err := libc.CString(slot)
	if err != nil {
		return nil, fmt.Errorf("slot name: %w", err)
	}
	glob := lib.XJS_GetGlobalObject(c.tls, c.ctx)
	val := lib.XJS_GetPropertyStr(c.tls, c.ctx, glob, name)
	lib.XFreeValue(c.tls, c.ctx, glob)
	libc.Xfree(c.tls, name)
	defer lib.XFreeValue(c.tls, c.ctx, val)

	var size lib.Tsize_t
	ptr := lib.XJS_GetArrayBuffer(c.tls, c.ctx, uintptr(unsafe.Pointer(&size)), val)
	if ptr == 0 || size == 0 {
		return nil, nil
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size))
	return out, nil
}
