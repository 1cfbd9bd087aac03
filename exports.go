package bridge

import "github.com/cryguy/bridge/internal/core"

// Type aliases re-exporting internal/core types so downstream code can use
// bridge.Handle, bridge.ForeignEngine, etc. without importing the internal
// package directly.

type Handle = core.Handle
type Kind = core.Kind
type ForeignEngine = core.ForeignEngine

// Kinds re-exported from core.
const (
	KindUndefined   = core.KindUndefined
	KindNull        = core.KindNull
	KindBoolean     = core.KindBoolean
	KindNumber      = core.KindNumber
	KindString      = core.KindString
	KindBigInt      = core.KindBigInt
	KindSymbol      = core.KindSymbol
	KindFunction    = core.KindFunction
	KindArray       = core.KindArray
	KindMap         = core.KindMap
	KindPromise     = core.KindPromise
	KindArrayBuffer = core.KindArrayBuffer
	KindObject      = core.KindObject
)

// Undefined passed to Bridge.Value constructs the foreign undefined value.
var Undefined = core.Undefined
