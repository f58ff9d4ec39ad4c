package extension

import (
	"github.com/viant/x"
)

// Types registers the Go types operations exchange so that inputs decoded
// from configuration or session state can be materialised into their typed
// form.
type Types struct {
	x.Registry
}

// Register adds a data type to the registry.
func (t *Types) Register(dataType *x.Type) {
	if dataType == nil {
		return
	}
	t.Registry.Register(dataType)
}

// Lookup returns a registered data type or nil.
func (t *Types) Lookup(name string) *x.Type {
	return t.Registry.Lookup(name)
}

// NewTypes creates a type registry.
func NewTypes(options ...x.RegistryOption) *Types {
	return &Types{Registry: *x.NewRegistry(options...)}
}
