//go:build !v8

package quickjs

import (
	"encoding/hex"
	"fmt"
)

// hexChunk is the number of raw bytes moved per call on the fallback path.
const hexChunk = 128 << 10

// PutBytes stores a copy of data as an ArrayBuffer at globalThis[slot].
func (r *qjsRuntime) PutBytes(slot string, data []byte) error {
	if len(data) == 0 {
		return r.Eval(fmt.Sprintf("globalThis[%q] = new ArrayBuffer(0);", slot))
	}
	if r.c != nil {
		return r.c.setArrayBuffer(slot, data)
	}
	return r.putHex(slot, data)
}

// TakeBytes copies the ArrayBuffer at globalThis[slot] into Go memory and
// clears the slot.
func (r *qjsRuntime) TakeBytes(slot string) ([]byte, error) {
	if r.c == nil {
		return r.takeHex(slot)
	}
	data, err := r.c.arrayBuffer(slot)
	if err != nil {
		return nil, err
	}
	return data, r.Eval(fmt.Sprintf("delete globalThis[%q];", slot))
}

// installHexStaging registers the callbacks the fallback path uses when the
// C API is out of reach. Bytes travel as hex strings in fixed-size chunks.
func (r *qjsRuntime) installHexStaging() error {
	if err := r.RegisterFunc("__bridge_hex_out", func(offset int) (string, error) {
		if offset < 0 || offset > len(r.outgoing) {
			return "", fmt.Errorf("offset %d out of range", offset)
		}
		end := min(offset+hexChunk, len(r.outgoing))
		return hex.EncodeToString(r.outgoing[offset:end]), nil
	}); err != nil {
		return err
	}
	return r.RegisterFunc("__bridge_hex_in", func(chunk string) (string, error) {
		b, err := hex.DecodeString(chunk)
		if err != nil {
			return "", err
		}
		r.incoming = append(r.incoming, b...)
		return "", nil
	})
}

func (r *qjsRuntime) putHex(slot string, data []byte) error {
	r.outgoing = data
	defer func() { r.outgoing = nil }()

	return r.Eval(fmt.Sprintf(`(function() {
		var n = %d, buf = new ArrayBuffer(n), view = new Uint8Array(buf);
		for (var off = 0; off < n;) {
			var s = __bridge_hex_out(off);
			for (var i = 0; i < s.length; i += 2) view[off + i / 2] = parseInt(s.substr(i, 2), 16);
			off += s.length / 2;
		}
		globalThis[%q] = buf;
	})()`, len(data), slot))
}

func (r *qjsRuntime) takeHex(slot string) ([]byte, error) {
	r.incoming = []byte{}
	defer func() { r.incoming = nil }()

	err := r.Eval(fmt.Sprintf(`(function() {
		var buf = globalThis[%q];
		delete globalThis[%q];
		var view = new Uint8Array(buf || new ArrayBuffer(0));
		for (var off = 0; off < view.length; off += %d) {
			var end = Math.min(off + %d, view.length), s = '';
			for (var i = off; i < end; i++) s += (view[i] < 16 ? '0' : '') + view[i].toString(16);
			__bridge_hex_in(s);
		}
	})()`, slot, slot, hexChunk, hexChunk))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", slot, err)
	}
	if len(r.incoming) == 0 {
		return nil, nil
	}
	return r.incoming, nil
}
