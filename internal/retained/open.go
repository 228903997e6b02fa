package retained

import "fmt"

// Open returns the store for the configured backend: "memory", "file" or
// "sqlite". path is ignored for the memory backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported retained store backend: %s", backend)
	}
}
