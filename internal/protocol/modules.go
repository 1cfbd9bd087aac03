package protocol

import (
	"errors"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// moduleGlobal receives a module's exports until the value table takes them.
const moduleGlobal = "__bridge_pending_module"

// WrapESModule transforms an ES module source into a script that assigns
// the module namespace to globalThis.__bridge_pending_module. It uses
// esbuild's Transform API to parse the JS AST and wrap the module as an
// IIFE, so sources with import-free export syntax and plain scripts both load.
func WrapESModule(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatIIFE,
		GlobalName: "globalThis." + moduleGlobal,
		Target:     api.ESNext,
		Loader:     api.LoaderJS,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		if msg.Location != nil {
			return "", fmt.Errorf("line %d: %s", msg.Location.Line, msg.Text)
		}
		return "", errors.New(msg.Text)
	}
	return string(result.Code), nil
}
