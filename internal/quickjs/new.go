//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/cryguy/bridge/internal/core"
	"modernc.org/quickjs"
)

// New creates a QuickJS VM ready for the value-table protocol.
func New(cfg core.EngineConfig) (core.Runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) << 20)
	}

	r := &qjsRuntime{vm: vm}
	if r.c, err = liftCAPI(vm); err != nil {
		// Bytes still cross via hex. Promises will not settle.
		if err := r.installHexStaging(); err != nil {
			vm.Close()
			return nil, fmt.Errorf("hex staging: %w", err)
		}
	}
	return r, nil
}
