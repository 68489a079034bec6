package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/sle/internal/core"
)

// SinkFactory creates a new, uninitialised sink instance.
type SinkFactory func() FrameSink

type registry[F any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]F
}

func newRegistry[F any](kind string) *registry[F] {
	return &registry[F]{kind: kind, factories: make(map[string]F)}
}

func (r *registry[F]) register(name string, f F, isNil bool) {
	if name == "" {
		panic(fmt.Sprintf("plugin: empty %s name", r.kind))
	}
	if isNil {
		panic(fmt.Sprintf("plugin: nil %s factory for %q", r.kind, name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		panic(fmt.Sprintf("plugin: %s %q registered twice", r.kind, name))
	}
	r.factories[name] = f
}

func (r *registry[F]) get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s %q", core.ErrPluginNotFound, r.kind, name)
	}
	return f, nil
}

func (r *registry[F]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reset removes every registration. Tests only.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]F)
}

var sinkReg = newRegistry[SinkFactory]("sink")

// RegisterSink makes a sink type available by name. It panics on an empty
// name, a nil factory or a duplicate registration, so call it from init.
func RegisterSink(name string, f SinkFactory) {
	sinkReg.register(name, f, f == nil)
}

// GetSinkFactory returns the factory registered under name.
func GetSinkFactory(name string) (SinkFactory, error) {
	return sinkReg.get(name)
}

// ListSinks returns the registered sink names in sorted order.
func ListSinks() []string {
	return sinkReg.list()
}
