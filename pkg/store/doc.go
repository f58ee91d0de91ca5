// Package store persists packages on disk.
//
// Each package lives in its own directory under the packages directory:
//
//	<packages dir>/<id>/modpack.toml
//	<packages dir>/<id>/files/...
//
// modpack.yaml and legacy modinfo.xml manifests are read as well; saving a
// package always writes modpack.toml and removes the other manifest.
package store
