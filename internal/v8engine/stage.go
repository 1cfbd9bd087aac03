//go:build v8

package v8engine

import (
	"fmt"
)

// V8 exposes backing stores to Go only for SharedArrayBuffers, so bytes go
// through one in either direction and are copied into a plain ArrayBuffer
// on the JS side.

const sabSlot = "__bridge_sab"

// PutBytes stores a copy of data as an ArrayBuffer at globalThis[slot].
func (r *v8Runtime) PutBytes(slot string, data []byte) error {
	if err := r.Eval(fmt.Sprintf("globalThis.%s = new SharedArrayBuffer(%d);", sabSlot, len(data))); err != nil {
		return fmt.Errorf("allocating %d bytes: %w", len(data), err)
	}
	if len(data) > 0 {
		if err := r.fillShared(data); err != nil {
			_ = r.Eval("delete globalThis." + sabSlot)
			return err
		}
	}
	return r.Eval(fmt.Sprintf(`(function() {
		var sab = globalThis.%[1]s;
		delete globalThis.%[1]s;
		var buf = new ArrayBuffer(sab.byteLength);
		new Uint8Array(buf).set(new Uint8Array(sab));
		globalThis[%[2]q] = buf;
	})()`, sabSlot, slot))
}

func (r *v8Runtime) fillShared(data []byte) error {
	sab, err := r.ctx.Global().Get(sabSlot)
	if err != nil {
		return err
	}
	dst, release, err := sab.SharedArrayBufferGetContents()
	if err != nil {
		return fmt.Errorf("shared buffer contents: %w", err)
	}
	copy(dst, data)
	release()
	return nil
}

// TakeBytes copies the ArrayBuffer at globalThis[slot] into Go memory and
// clears the slot.
func (r *v8Runtime) TakeBytes(slot string) ([]byte, error) {
	n, err := r.EvalString(fmt.Sprintf(`(function() {
		var buf = globalThis[%[1]q];
		delete globalThis[%[1]q];
		var view = new Uint8Array(buf || new ArrayBuffer(0));
		var sab = new SharedArrayBuffer(view.length);
		new Uint8Array(sab).set(view);
		globalThis.%[2]s = sab;
		return String(view.length);
	})()`, slot, sabSlot))
	if err != nil {
		return nil, fmt.Errorf("staging %s: %w", slot, err)
	}
	defer func() { _ = r.Eval("delete globalThis." + sabSlot) }()
	if n == "0" {
		return nil, nil
	}

	sab, err := r.ctx.Global().Get(sabSlot)
	if err != nil {
		return nil, err
	}
	src, release, err := sab.SharedArrayBufferGetContents()
	if err != nil {
		return nil, fmt.Errorf("shared buffer contents: %w", err)
	}
	defer release()
	return append([]byte(nil), src...), nil
}
