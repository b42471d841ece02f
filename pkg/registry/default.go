package registry

import "sync"

// The package-level default instance is a convenience for single-registry
// deployments. Multi-registry deployments should construct instances with
// New and inject them explicitly.
var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the lazily constructed process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(Options{Name: "default"})
	})
	return defaultReg
}

// Register registers a handler on the default registry.
func Register(name string, handler any, metadata map[string]any) error {
	return Default().Register(name, handler, metadata)
}

// Deregister removes a handler from the default registry.
func Deregister(name string) error {
	return Default().Deregister(name)
}

// Resolve resolves a handler on the default registry.
func Resolve(name string) (any, error) {
	return Default().Resolve(name)
}

// ResolveStable resolves a handler on the default registry through the
// circuit breaker.
func ResolveStable(name string) (any, error) {
	return Default().ResolveStable(name)
}

// LockCore locks the default registry.
func LockCore() error {
	return Default().LockCore()
}
