package core

import "errors"

var (
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrNoSuchMethod     = errors.New("no such method")
	ErrKeyNotFound      = errors.New("key not found")
	ErrForeignException = errors.New("foreign exception")
	ErrDoubleRelease    = errors.New("handle already released")
	ErrUseAfterRelease  = errors.New("use after release")

	ErrEngineClosed   = errors.New("engine closed")
	ErrInterrupted    = errors.New("foreign call interrupted")
	ErrPromiseTimeout = errors.New("promise did not settle before deadline")
	ErrNotBinary      = errors.New("value is not an ArrayBuffer or typed array")
	ErrNoModule       = errors.New("module not loaded")
)

// ForeignException is an error thrown inside the foreign engine. The thrown
// value stays pinned under Payload until the receiver of the error releases it.
type ForeignException struct {
	Name    string
	Message string
	Stack   string
	Payload Handle
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
