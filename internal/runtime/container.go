// Package runtime hosts the process-wide dependency-injection container,
// grounded on models/embedding/embedder.go's
// `runtime.GetContainer().Invoke(func(pooler EmbedderPooler, ...) {...})`
// call sites.
package runtime

import (
	"sync"

	"go.uber.org/dig"
)

var (
	once      sync.Once
	container *dig.Container
)

// GetContainer returns the process-wide dig.Container, constructing it on
// first use. cmd/server populates it via Provide calls during startup.
func GetContainer() *dig.Container {
	once.Do(func() {
		container = dig.New()
	})
	return container
}

// Reset discards the current container. Test-only: lets each test build its
// own isolated set of providers.
func Reset() {
	container = dig.New()
}
