package core

// EngineConfig holds runtime configuration for a single foreign engine instance.
type EngineConfig struct {
	MemoryLimitMB int // per-engine heap limit, 0 for none
}
