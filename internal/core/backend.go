package core

import "time"

// ForeignEngine is the gateway contract a backend provides to the bridge.
// Every method crosses into the engine and blocks until it answers. Every
// Handle returned is a fresh pin that the caller must eventually Unpin.
// Implementations are not safe for concurrent use; callers serialize.
type ForeignEngine interface {
	// Invoke calls method name on the value behind recv with the values
	// behind args, in order and with exactly len(args) arguments.
	Invoke(recv Handle, name string, args []Handle) (Handle, error)

	// Apply is Invoke with the arguments taken from the foreign array
	// behind args instead of from a list of handles.
	Apply(recv Handle, name string, args Handle) (Handle, error)

	// Lookup resolves key against recv. With strict set, a key absent from
	// recv fails with ErrKeyNotFound instead of yielding undefined.
	Lookup(recv, key Handle, strict bool) (Handle, error)

	// Pin pins the value behind h a second time under a new handle.
	Pin(h Handle) (Handle, error)

	// Unpin drops the pin behind h.
	Unpin(h Handle) error

	// FromGo constructs a foreign value from a JSON-encodable Go value.
	FromGo(v any) (Handle, error)

	// FromBytes constructs a foreign ArrayBuffer holding a copy of data.
	FromBytes(data []byte) (Handle, error)

	// NewArray constructs a foreign array holding the values behind elems.
	NewArray(elems []Handle) (Handle, error)

	// Export returns the JSON encoding of the value behind h.
	Export(h Handle) (string, error)

	// Describe reports the kind of the value behind h.
	Describe(h Handle) (Kind, error)

	// Same reports whether a and b pin the same value, compared with
	// Object.is (SameValue).
	Same(a, b Handle) (bool, error)

	// Global looks up a property of the engine's global object.
	Global(name string) (Handle, error)

	// Await settles the promise behind h, pumping the engine's job queue
	// and timers until deadline. A non-promise yields a new pin on itself.
	Await(h Handle, deadline time.Time) (Handle, error)

	// Bytes copies the contents of an ArrayBuffer or typed array.
	Bytes(h Handle) ([]byte, error)

	// LoadModule evaluates ES module source and registers its exports
	// under name. Module returns a pin on a registered module.
	LoadModule(name, source string) error
	Module(name string) (Handle, error)

	// Live reports how many pins the engine currently holds.
	Live() (int, error)

	// Interrupt asks the engine to abort the call in progress. It is the
	// only method that may be called concurrently with another one.
	Interrupt()

	Close() error
}
