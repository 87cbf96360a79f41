package hal

import (
	"sync"
)

// Device name constants.
const (
	// DeviceG2D is the name of the Vivante G2D hardware device.
	DeviceG2D = "g2d"
	// DeviceSoftware is the name of the host-memory reference device.
	DeviceSoftware = "software"
)

// Factory creates and opens a new device instance.
type Factory func() (Device, error)

// registry holds registered device factories.
var (
	registryMu sync.RWMutex
	devices    = make(map[string]Factory)
	// Priority order for device selection (first available wins).
	// Hardware beats the software reference device.
	devicePriority = []string{DeviceG2D, DeviceSoftware}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in device packages.
// If a device with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	devices[name] = factory
}

// Unregister removes a device from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(devices, name)
}

// Available returns a list of registered device names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a device with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := devices[name]
	return ok
}

// Open opens a device by name.
// Returns ErrNotAvailable if no such device is registered.
func Open(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := devices[name]
	registryMu.RUnlock()

	if !ok {
		return nil, ErrNotAvailable
	}
	return factory()
}

// Default opens the best available device based on priority.
// Returns ErrNotAvailable if no registered device opens successfully; the
// caller is expected to fall back to a non-blitter render path.
func Default() (Device, error) {
	registryMu.RLock()
	factories := make([]Factory, 0, len(devices))
	for _, name := range devicePriority {
		if factory, ok := devices[name]; ok {
			factories = append(factories, factory)
		}
	}
	for name, factory := range devices {
		if !inPriority(name) {
			factories = append(factories, factory)
		}
	}
	registryMu.RUnlock()

	for _, factory := range factories {
		if dev, err := factory(); err == nil {
			return dev, nil
		}
	}
	return nil, ErrNotAvailable
}

func inPriority(name string) bool {
	for _, p := range devicePriority {
		if p == name {
			return true
		}
	}
	return false
}
