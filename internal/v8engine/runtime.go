//go:build v8

package v8engine

import (
	"fmt"
	"reflect"

	"github.com/cryguy/bridge/internal/core"
	v8 "github.com/tommie/v8go"
)

// v8Runtime implements core.Runtime for one V8 isolate with a single
// context.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var (
	_ core.Runtime    = (*v8Runtime)(nil)
	_ core.ByteStager = (*v8Runtime)(nil)
)

func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "bridge.js")
	return err
}

func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "bridge.js")
	if err != nil || val == nil {
		return "", err
	}
	return val.String(), nil
}

// RegisterFunc exposes fn as a global function. Arguments and results may be
// string, int, float64 or bool. A func returning (T, error) throws the error
// into JS instead of returning T.
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return fmt.Errorf("registering %s: %T is not a function", name, fn)
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < ft.NumIn() {
			return r.throw(fmt.Sprintf("%s: want %d argument(s), got %d", name, ft.NumIn(), len(args)))
		}
		in := make([]reflect.Value, ft.NumIn())
		for i := range in {
			in[i] = fromJS(args[i], ft.In(i))
		}

		out := fv.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return r.throw(fmt.Sprintf("%s: %v", name, out[1].Interface()))
		}
		if len(out) == 0 {
			return nil
		}
		return r.toJS(out[0])
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

func (r *v8Runtime) throw(msg string) *v8.Value {
	v, _ := v8.NewValue(r.iso, msg)
	return r.iso.ThrowException(v)
}

func fromJS(v *v8.Value, t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(v.String())
	case reflect.Int:
		return reflect.ValueOf(int(v.Integer()))
	case reflect.Float64:
		return reflect.ValueOf(v.Number())
	case reflect.Bool:
		return reflect.ValueOf(v.Boolean())
	default:
		return reflect.Zero(t)
	}
}

func (r *v8Runtime) toJS(v reflect.Value) *v8.Value {
	var (
		out *v8.Value
		err error
	)
	switch v.Kind() {
	case reflect.String:
		out, err = v8.NewValue(r.iso, v.String())
	case reflect.Int:
		out, err = v8.NewValue(r.iso, int32(v.Int()))
	case reflect.Float64:
		out, err = v8.NewValue(r.iso, v.Float())
	case reflect.Bool:
		out, err = v8.NewValue(r.iso, v.Bool())
	}
	if err != nil {
		return nil
	}
	return out
}

// RunMicrotasks runs a V8 microtask checkpoint.
func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates whatever script the isolate is running. It is safe
// to call from another goroutine.
func (r *v8Runtime) Interrupt() {
	r.iso.TerminateExecution()
}

// Close releases the context and disposes the isolate.
func (r *v8Runtime) Close() error {
	r.ctx.Close()
	r.iso.Dispose()
	return nil
}
