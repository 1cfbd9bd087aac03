package protocol

import (
	"strings"
	"testing"
)

func TestWrapESModule_Default(t *testing.T) {
	out, err := WrapESModule(`export default { ping() { return "pong"; } };`)
	if err != nil {
		t.Fatalf("WrapESModule: %v", err)
	}
	if !strings.Contains(out, moduleGlobal) {
		t.Errorf("output does not assign %s:\n%s", moduleGlobal, out)
	}
	if strings.Contains(out, "export default") {
		t.Errorf("output still has export syntax:\n%s", out)
	}
}

func TestWrapESModule_NamedAndPlain(t *testing.T) {
	for _, src := range []string{
		`export function add(a, b) { return a + b; }`,
		`export const k = 1; export class C {}`,
		`var x = 1;`,
	} {
		if _, err := WrapESModule(src); err != nil {
			t.Errorf("WrapESModule(%q): %v", src, err)
		}
	}
}

func TestWrapESModule_SyntaxError(t *testing.T) {
	_, err := WrapESModule("export function (")
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("err = %v, want error with line number", err)
	}
}
