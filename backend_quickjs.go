//go:build !v8

package bridge

import (
	"github.com/cryguy/bridge/internal/core"
	"github.com/cryguy/bridge/internal/quickjs"
)

func newRuntime(cfg core.EngineConfig) (core.Runtime, error) {
	return quickjs.New(cfg)
}
