package bridge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
memory_limit_mb: 64
call_timeout: 2s
await_timeout: 250ms
strict_keys: true
dedicated: true
pool_size: 3
modules:
  calc: lib/calc.js
  abs: /opt/abs.js
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := Config{
		MemoryLimitMB: 64,
		CallTimeout:   2 * time.Second,
		AwaitTimeout:  250 * time.Millisecond,
		StrictKeys:    true,
		Dedicated:     true,
		PoolSize:      3,
		Modules: map[string]string{
			"calc": filepath.Join(filepath.Dir(path), "lib", "calc.js"),
			"abs":  "/opt/abs.js",
		},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreFields(Config{}, "Logger")); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_UnknownField(t *testing.T) {
	path := writeConfig(t, "strict_key: true\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadConfig_Empty(t *testing.T) {
	path := writeConfig(t, "")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("err = %v, want empty-file error", err)
	}
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Config{MemoryLimitMB: -1, CallTimeout: -time.Second, PoolSize: -2}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"memory_limit_mb", "call_timeout", "pool_size"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.AwaitTimeout != DefaultAwaitTimeout {
		t.Errorf("AwaitTimeout = %s", cfg.AwaitTimeout)
	}
	if cfg.PoolSize != 1 {
		t.Errorf("PoolSize = %d", cfg.PoolSize)
	}
	if cfg.Logger == nil {
		t.Error("Logger is nil")
	}
}
