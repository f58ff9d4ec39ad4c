// Package types defines the contract between the workflow engine and the
// operation services a step can bind to. An operation service exposes named
// methods with typed input/output; the engine materialises typed values and
// invokes the executable.
package types

import (
	"context"
	"reflect"
)

// Executable is a single operation method. Input and output are pointers to
// the types declared by the method signature.
type Executable func(ctx context.Context, input, output interface{}) error

// Signature describes one operation method.
type Signature struct {
	Name        string
	Description string
	Input       reflect.Type
	Output      reflect.Type
}

// Signatures is a lookup-able list of method signatures.
type Signatures []Signature

// Lookup returns the signature with the given name or nil.
func (s Signatures) Lookup(name string) *Signature {
	for i := range s {
		if s[i].Name == name {
			return &s[i]
		}
	}
	return nil
}

// Service is an operation provider registered with the engine dispatcher.
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}
