// Package installers provides the engine.Backend and engine.Inventory
// implementations used by the bootstrap command.
//
// Packages are installed either by editing the project's package manifest
// (ManifestBackend) or by running an external package manager per identifier
// (CommandBackend). Assets are copied from the local asset cache (CacheLocator) or
// from a shared cache reached over SFTP (RemoteLocator) into the project's import
// directory by AssetBackend.
//
// Every backend returns an AsyncHandle immediately and does its work in a
// goroutine, so the driver's polling loop observes completion.
package installers
