// Package extension hosts the operation dispatcher: a registry of operation
// services keyed by name, with method dispatch that materialises typed
// inputs/outputs from plain parameter maps.
package extension

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/stepflow/stepflow/model/types"
	"github.com/viant/structology/conv"
	"github.com/viant/x"
)

var (
	// ErrServiceNotFound indicates the operation id references an unknown service.
	ErrServiceNotFound = errors.New("operation service not found")
	// ErrInvalidOperation indicates the operation id is not of the form service.method.
	ErrInvalidOperation = errors.New("invalid operation id")
)

// DataTypeIniter lets an operation service register its data types on
// registration.
type DataTypeIniter interface {
	InitTypes(types *Types)
}

// Actions is the operation dispatcher. It is safe for concurrent lookup and
// dispatch across distinct invocations.
type Actions struct {
	types     *Types
	services  map[string]types.Service
	converter *conv.Converter
	mux       sync.RWMutex
}

// Types returns the shared data-type registry.
func (a *Actions) Types() *Types {
	return a.types
}

// Lookup returns a service by name.
func (a *Actions) Lookup(name string) types.Service {
	a.mux.RLock()
	defer a.mux.RUnlock()
	return a.services[name]
}

// Register registers an operation service.
func (a *Actions) Register(service types.Service) {
	a.mux.Lock()
	defer a.mux.Unlock()
	if initer, ok := service.(DataTypeIniter); ok {
		initer.InitTypes(a.types)
	}
	a.services[service.Name()] = service
}

// Dispatch resolves the operation id ("service.method"), converts the
// parameter map into the method's typed input and invokes it. It returns the
// populated typed output.
func (a *Actions) Dispatch(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
	idx := strings.LastIndex(operation, ".")
	if idx <= 0 || idx == len(operation)-1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, operation)
	}
	serviceName, methodName := operation[:idx], operation[idx+1:]

	service := a.Lookup(serviceName)
	if service == nil {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, serviceName)
	}
	method, err := service.Method(methodName)
	if err != nil {
		return nil, fmt.Errorf("failed to find method %v for service %v: %w", methodName, serviceName, err)
	}
	signature := service.Methods().Lookup(methodName)
	if signature == nil {
		return nil, types.NewMethodNotFoundError(methodName)
	}

	input := newInstance(signature.Input)
	if len(params) > 0 {
		if err = a.converter.Convert(params, input); err != nil {
			return nil, fmt.Errorf("failed to convert parameters for %v: %w", operation, err)
		}
	}
	output := newInstance(signature.Output)
	if err = method(ctx, input, output); err != nil {
		return nil, err
	}
	return output, nil
}

// newInstance allocates a value of the given type, returning a pointer to the
// underlying struct so that operations can populate it.
func newInstance(aType reflect.Type) interface{} {
	if aType == nil {
		return &struct{}{}
	}
	if aType.Kind() == reflect.Ptr {
		return reflect.New(aType.Elem()).Interface()
	}
	return reflect.New(aType).Interface()
}

// NewActions creates the dispatcher, optionally pre-registering data types.
func NewActions(goTypes ...*x.Type) *Actions {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true
	ret := &Actions{
		types:     NewTypes(),
		services:  make(map[string]types.Service),
		converter: conv.NewConverter(options),
	}
	for _, t := range goTypes {
		if t != nil {
			ret.types.Register(t)
		}
	}
	return ret
}
