package protocol

import (
	"errors"
	"testing"

	"github.com/cryguy/bridge/internal/core"
)

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{`{"e":"invalid_handle","h":4}`, core.ErrInvalidHandle},
		{`{"e":"no_such_method","name":"f"}`, core.ErrNoSuchMethod},
		{`{"e":"key_not_found"}`, core.ErrKeyNotFound},
		{`{"e":"exception","name":"Error","message":"m","x":9}`, core.ErrForeignException},
		{`{"e":"not_binary","h":2}`, core.ErrNotBinary},
		{`{"e":"not_array","h":2}`, core.ErrInvalidHandle},
		{`{"e":"no_module","name":"m"}`, core.ErrNoModule},
	}
	for _, tt := range tests {
		env, err := decodeEnvelope(tt.raw)
		if err != nil {
			t.Fatalf("decode %s: %v", tt.raw, err)
		}
		if err := env.err(); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.raw, err, tt.want)
		}
	}
}

func TestEnvelopeException(t *testing.T) {
	env, err := decodeEnvelope(`{"e":"exception","name":"TypeError","message":"x is null","stack":"at f","x":12}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var fe *core.ForeignException
	if !errors.As(env.err(), &fe) {
		t.Fatal("not a ForeignException")
	}
	if fe.Payload != 12 || fe.Error() != "TypeError: x is null" || fe.Stack != "at f" {
		t.Errorf("exception = %+v", fe)
	}
}

func TestEnvelopeSuccess(t *testing.T) {
	env, err := decodeEnvelope(`{"h":7}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.err() != nil || env.H != 7 {
		t.Errorf("env = %+v", env)
	}
	if _, err := decodeEnvelope("not json"); err == nil {
		t.Error("expected decode error")
	}
}
