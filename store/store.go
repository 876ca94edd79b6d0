// Package store defines the local persistence consumed by the SDK and provides methods
// for registering and opening storage adapters.
package store

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when the object being added already exists.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrNotReady is returned when the adapter is not open or the user is not known yet.
	ErrNotReady = errors.New("store: not ready")
)

// Adapter is a Storage backed by some persistence engine.
type Adapter interface {
	Storage

	// Open initializes the adapter using adapter-specific JSON config.
	Open(config json.RawMessage) error
	// Close releases the resources held by the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string
}

var (
	adaptersLock      sync.RWMutex
	availableAdapters = make(map[string]func() Adapter)
)

// RegisterAdapter makes a storage adapter available by the provided name.
// If Register is called twice with the same name or if the constructor is nil, it panics.
func RegisterAdapter(name string, newAdapter func() Adapter) {
	if newAdapter == nil {
		panic("store: Register adapter is nil")
	}

	adaptersLock.Lock()
	defer adaptersLock.Unlock()

	if _, dup := availableAdapters[name]; dup {
		panic("store: adapter '" + name + "' is already registered")
	}
	availableAdapters[name] = newAdapter
}

// AdapterNames returns sorted names of registered adapters.
func AdapterNames() []string {
	adaptersLock.RLock()
	defer adaptersLock.RUnlock()

	names := make([]string, 0, len(availableAdapters))
	for name := range availableAdapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config selects and configures the storage adapter.
type Config struct {
	// Adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

// Open creates and opens the adapter selected by the config.
func Open(config *Config) (Adapter, error) {
	if config == nil {
		config = &Config{}
	}

	adaptersLock.RLock()
	var newAdapter func() Adapter
	if len(config.UseAdapter) > 0 {
		// Adapter name specified explicitly.
		newAdapter = availableAdapters[config.UseAdapter]
		if newAdapter == nil {
			adaptersLock.RUnlock()
			return nil, errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
		}
	} else if len(availableAdapters) == 1 {
		// Default to the only entry in availableAdapters.
		for _, v := range availableAdapters {
			newAdapter = v
		}
	} else {
		adaptersLock.RUnlock()
		return nil, errors.New("store: adapter is not specified. Please set `store.use_adapter` in config")
	}
	adaptersLock.RUnlock()

	adp := newAdapter()
	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	if err := adp.Open(adapterConfig); err != nil {
		return nil, err
	}
	return adp, nil
}
