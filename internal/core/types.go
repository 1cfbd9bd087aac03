package core

// Handle identifies one pinned value owned by a foreign engine. Handles are
// allocated from a per-engine counter starting at 1 and are never reused
// within an engine session, so the zero Handle never names a value.
type Handle uint64

// Kind classifies a foreign value as the engine sees it.
type Kind string

const (
	KindUndefined   Kind = "undefined"
	KindNull        Kind = "null"
	KindBoolean     Kind = "boolean"
	KindNumber      Kind = "number"
	KindString      Kind = "string"
	KindBigInt      Kind = "bigint"
	KindSymbol      Kind = "symbol"
	KindFunction    Kind = "function"
	KindArray       Kind = "array"
	KindMap         Kind = "map"
	KindPromise     Kind = "promise"
	KindArrayBuffer Kind = "arraybuffer"
	KindObject      Kind = "object"
)

// LogEntry is a single console.* line emitted by foreign code.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// UndefinedValue is the Go stand-in for the engine's undefined when
// constructing foreign values; nil maps to null.
type UndefinedValue struct{}

// Undefined constructs undefined through ForeignEngine.FromGo.
var Undefined = UndefinedValue{}
