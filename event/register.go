package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	regMu    sync.RWMutex
	registry = make(map[string]map[string]reflect.Type)
)

var (
	ErrNotFoundInRegistry = errors.New("event not found in registry")
)

// Register defines the registry service for domain events and snapshot states
type Register interface {
	// Set register the given event in the registry.
	Set(event interface{}) Register
	// Get return an empty instance of the given event type.
	// Note that it always returns a pointer
	Get(name string) (interface{}, error)
	// Type returns the registered type, which is a pointer type if the event was registered as a pointer.
	Type(name string) (reflect.Type, error)
	// clear all namespace registries. Its mainly used in internal tests
	clear()
}

// register implement the Register interface
// it allows to have a registry per namespace, and use the global registery (i.e, empty namespace)
// to handle some fallback logics
type register struct {
	namespace string
}

// NewRegisterFrom context returns a new instance of the register using the namespace found in the context.
// Otherwise, it returns an instance base on the global namespace
func NewRegisterFrom(ctx context.Context) Register {
	if namespace, ok := ctx.Value(ContextNamespaceKey).(string); ok {
		return NewRegister(namespace)
	}
	return NewRegister("")
}

// NewRegister returns a Register instance for the given namespace.
func NewRegister(namespace string) Register {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := registry[namespace]; !ok {
		registry[namespace] = make(map[string]reflect.Type)
	}
	if _, ok := registry[""]; !ok {
		registry[""] = make(map[string]reflect.Type)
	}
	return &register{namespace: namespace}
}

// Set implements Set method of the Register interface.
// It registers the given event in the current namespace registry.
// It uses TypeOfWithNamspace func to solve the event name (aka ID).
// By default the event name is {package name}.{event struct name}
// In case of namespace exists, the event name becomes {namespace}.{evnet struct name}
func (r *register) Set(evt interface{}) Register {
	name := TypeOfWithNamspace(r.namespace, evt)
	regMu.Lock()
	defer regMu.Unlock()
	registry[r.namespace][name] = reflect.TypeOf(evt)
	return r
}

// Type implements Type method of the Register interface.
// It looks for the event in the namespace registry,
// and use the global namespace's one as fallback
func (r *register) Type(name string) (reflect.Type, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	if r.namespace != "" {
		parts := strings.Split(name, ".")
		if eType, ok := registry[r.namespace][r.namespace+"."+parts[len(parts)-1]]; ok {
			return eType, nil
		}
	}
	if eType, ok := registry[r.namespace][name]; ok {
		return eType, nil
	}
	if eType, ok := registry[""][name]; ok {
		return eType, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFoundInRegistry, "event type: "+name)
}

// Get implements Get method of the Register interface.
func (r *register) Get(name string) (interface{}, error) {
	eType, err := r.Type(name)
	if err != nil {
		return nil, err
	}
	if eType.Kind() == reflect.Ptr {
		eType = eType.Elem()
	}
	return reflect.New(eType).Interface(), nil
}

//  clear implements clear method of the Register interface
func (r *register) clear() {
	regMu.Lock()
	defer regMu.Unlock()
	registry = make(map[string]map[string]reflect.Type)
}
