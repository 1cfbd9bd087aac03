//go:build v8

package v8engine

import (
	"github.com/cryguy/bridge/internal/core"
	v8 "github.com/tommie/v8go"
)

// New creates a V8 isolate and context ready for the value-table protocol.
func New(cfg core.EngineConfig) (core.Runtime, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	return &v8Runtime{iso: iso, ctx: v8.NewContext(iso)}, nil
}
