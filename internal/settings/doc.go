// Package settings persists user preferences between sessions.
//
// Settings live in a single YAML file inside the config directory and are
// read and written through viper:
//
//	store, err := settings.Load(configDir)
//	store.SetLastFolder("/photos/2024")
//	err = store.Save()
//
// The store is passed explicitly to the components that need it rather than
// being reachable as a global.
package settings
