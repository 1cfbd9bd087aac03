package core

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) behind the
// handful of operations the value-table protocol in internal/protocol and
// the timers in internal/eventloop need.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Arguments and results are limited to string, int, float64 and bool.
	// A function returning (T, error) throws a TypeError on error.
	RegisterFunc(name string, fn any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()
}

// Runtime is a JSRuntime that owns its engine instance.
type Runtime interface {
	JSRuntime

	// Interrupt aborts the script currently running, from any goroutine.
	// QuickJS: VM.Interrupt, V8: TerminateExecution.
	Interrupt()

	// Close releases the engine. The runtime must not be used afterwards.
	Close() error
}

// ByteStager moves byte payloads between Go and a named global slot
// holding an ArrayBuffer, without a per-byte round trip through JSON.
type ByteStager interface {
	// PutBytes stores a copy of data as an ArrayBuffer at globalThis[slot].
	PutBytes(slot string, data []byte) error

	// TakeBytes copies the ArrayBuffer at globalThis[slot] out and deletes
	// the slot. An empty or missing buffer yields nil.
	TakeBytes(slot string) ([]byte, error)
}
