package rl

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Registry maps configuration names to factories.
type Registry[F any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]F
}

func NewRegistry[F any](kind string) *Registry[F] {
	return &Registry[F]{kind: kind, factories: map[string]F{}}
}

// Register installs a factory. Returns an error if the name already exists.
func (r *Registry[F]) Register(name string, factory F) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s: name is required", r.kind)
	}
	if isNil(factory) {
		return fmt.Errorf("%s: %s: factory is required", r.kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%s: %s already registered", r.kind, name)
	}
	r.factories[name] = factory
	return nil
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Interface, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// MustRegister panics if registration fails.
func (r *Registry[F]) MustRegister(name string, factory F) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

func (r *Registry[F]) Lookup(name string) (F, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		var zero F
		if strings.TrimSpace(name) == "" {
			return zero, fmt.Errorf("%s: name is not configured (set args.%s)", r.kind, r.kind)
		}
		return zero, fmt.Errorf("%s: unknown name %q (known: %s)", r.kind, name, strings.Join(r.Names(), ", "))
	}
	return factory, nil
}

// Names returns a sorted list of registered names.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
