package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/bridge/internal/core"
)

// envelope is the JSON reply of every __bridge entry point.
type envelope struct {
	H       uint64  `json:"h"`
	E       string  `json:"e"`
	Name    string  `json:"name"`
	Message string  `json:"message"`
	Stack   string  `json:"stack"`
	X       uint64  `json:"x"`
	K       string  `json:"k"`
	J       *string `json:"j"`
	B       bool    `json:"b"`
	W       uint64  `json:"w"`
	N       int     `json:"n"`
	Pending bool    `json:"pending"`
}

func decodeEnvelope(raw string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decoding protocol reply %q: %w", raw, err)
	}
	return &env, nil
}

// err maps a failure envelope onto the core error taxonomy.
func (env *envelope) err() error {
	switch env.E {
	case "":
		return nil
	case "invalid_handle":
		return fmt.Errorf("handle %d: %w", env.H, core.ErrInvalidHandle)
	case "no_such_method":
		return fmt.Errorf("method %q: %w", env.Name, core.ErrNoSuchMethod)
	case "key_not_found":
		return core.ErrKeyNotFound
	case "exception":
		return &core.ForeignException{
			Name:    env.Name,
			Message: env.Message,
			Stack:   env.Stack,
			Payload: core.Handle(env.X),
		}
	case "not_binary":
		return fmt.Errorf("handle %d: %w", env.H, core.ErrNotBinary)
	case "not_array":
		return fmt.Errorf("argument list handle %d is not an array: %w", env.H, core.ErrInvalidHandle)
	case "no_module":
		return fmt.Errorf("module %q: %w", env.Name, core.ErrNoModule)
	case "no_watch":
		return fmt.Errorf("promise watch %d is gone", env.W)
	default:
		return fmt.Errorf("unknown protocol error %q", env.E)
	}
}
