//go:build v8

package bridge

import (
	"github.com/cryguy/bridge/internal/core"
	"github.com/cryguy/bridge/internal/v8engine"
)

func newRuntime(cfg core.EngineConfig) (core.Runtime, error) {
	return v8engine.New(cfg)
}
