package bridge

import (
	"errors"

	"github.com/cryguy/bridge/internal/core"
)

// Errors returned by bridge operations. Match them with errors.Is; the
// returned errors carry the operation and handle as context.
var (
	ErrInvalidHandle    = core.ErrInvalidHandle
	ErrNoSuchMethod     = core.ErrNoSuchMethod
	ErrKeyNotFound      = core.ErrKeyNotFound
	ErrForeignException = core.ErrForeignException
	ErrDoubleRelease    = core.ErrDoubleRelease
	ErrUseAfterRelease  = core.ErrUseAfterRelease

	ErrEngineClosed   = core.ErrEngineClosed
	ErrInterrupted    = core.ErrInterrupted
	ErrPromiseTimeout = core.ErrPromiseTimeout
	ErrNotBinary      = core.ErrNotBinary
	ErrNoModule       = core.ErrNoModule

	// ErrNotArgumentList is returned by Array.Handles for arrays that were
	// not built with Bridge.Args and so have no host-side element list.
	ErrNotArgumentList = errors.New("array is not an argument list")
	ErrPoolClosed      = errors.New("bridge pool is closed")
)

// ForeignException is returned when a foreign call throws. Payload owns a
// pin on the thrown value; release it when done with it. Payload is nil if
// the engine could not pin the thrown value.
type ForeignException struct {
	Name    string
	Message string
	Stack   string
	Payload *Variant
}

func (e *ForeignException) Error() string {
	switch {
	case e.Name != "" && e.Message != "":
		return e.Name + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Name != "":
		return e.Name
	default:
		return ErrForeignException.Error()
	}
}

func (e *ForeignException) Unwrap() error { return ErrForeignException }

// Release drops the pin on the thrown value, if any.
func (e *ForeignException) Release() error {
	if e.Payload == nil || e.Payload.Released() {
		return nil
	}
	return e.Payload.Release()
}
