//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/cryguy/bridge/internal/core"
	"modernc.org/quickjs"
)

// qjsRuntime implements core.Runtime for the QuickJS engine.
type qjsRuntime struct {
	vm *quickjs.VM
	c  *cAPI // nil when the C API could not be reached

	// Fallback staging buffers, see stage.go.
	outgoing []byte
	incoming []byte
}

var (
	_ core.Runtime    = (*qjsRuntime)(nil)
	_ core.ByteStager = (*qjsRuntime)(nil)
)

func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates js and formats the result with fmt. The protocol
// scripts always produce strings, so no conversion happens in practice.
func (r *qjsRuntime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// RegisterFunc exposes fn as a global function. The Go wrapper hands
// (T, error) results to JS as a two-element array, so the installed
// function unwraps it and throws a TypeError when the error is set.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	raw := "__go_" + name
	if err := r.vm.RegisterFunc(raw, fn, false); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	return r.Eval(fmt.Sprintf(`(function() {
		var raw = globalThis[%[1]q];
		delete globalThis[%[1]q];
		globalThis[%[2]q] = function() {
			var r = raw.apply(this, arguments);
			if (!Array.isArray(r)) return r;
			if (r[1] !== null && r[1] !== undefined) throw new TypeError(%[2]q + ": " + r[1]);
			return r[0];
		};
	})()`, raw, name))
}

// RunMicrotasks drains the promise job queue. Without the C API there is no
// way to reach JS_ExecutePendingJob and the call is a no-op.
func (r *qjsRuntime) RunMicrotasks() {
	if r.c != nil {
		r.c.pumpJobs()
	}
}

// Interrupt aborts the script currently running in the VM. Safe to call from
// any goroutine.
func (r *qjsRuntime) Interrupt() {
	r.vm.Interrupt()
}

// Close frees the VM and with it every value the VM still references.
func (r *qjsRuntime) Close() error {
	r.vm.Close()
	r.c = nil
	return nil
}
