package bridge

import (
	"sync"

	"go.uber.org/multierr"
)

// Scope releases the Variants it holds when closed. Defer Close right after
// creating a Scope so every exit path releases.
type Scope struct {
	mu sync.Mutex
	vs []*Variant
}

// Add hands v to the scope and returns it.
func (s *Scope) Add(v *Variant) *Variant {
	if v == nil {
		return nil
	}
	s.mu.Lock()
	s.vs = append(s.vs, v)
	s.mu.Unlock()
	return v
}

// Hold adds the result of an operation to the scope, passing err through:
//
//	v, err := s.Hold(obj.Call("next"))
func (s *Scope) Hold(v *Variant, err error) (*Variant, error) {
	if err != nil {
		return nil, err
	}
	return s.Add(v), nil
}

// Object is Hold for operations returning an Object.
func (s *Scope) Object(o *Object, err error) (*Object, error) {
	if err != nil {
		return nil, err
	}
	s.Add(o.Variant)
	return o, nil
}

// Array is Hold for operations returning an Array.
func (s *Scope) Array(a *Array, err error) (*Array, error) {
	if err != nil {
		return nil, err
	}
	s.Add(a.Variant)
	return a, nil
}

// Close releases every held Variant not already released, newest first,
// and returns all release failures combined.
func (s *Scope) Close() error {
	s.mu.Lock()
	vs := s.vs
	s.vs = nil
	s.mu.Unlock()

	var err error
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Released() {
			continue
		}
		err = multierr.Append(err, vs[i].Release())
	}
	return err
}

func appendErr(err, more error) error {
	return multierr.Append(err, more)
}
