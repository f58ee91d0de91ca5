// Package testutil provides fixtures for modkeeper tests.
//
// A Game is a game installation on any afero filesystem together with its
// packages directory. Tests declare packages with PackageConfig and inspect
// the game tree through the Game helpers:
//
//	g := testutil.NewMemoryGame(t)
//	g.AddPackage(t, "hd-textures", testutil.PackageConfig{
//	    LoadOrder: 10,
//	    Files:     map[string]string{"Data/tex.dds": "hd"},
//	})
//
// Package directories are written the way the store reads them (a
// modpack.toml manifest plus a files/ payload), so testutil does not import
// the store and can be used from its tests.
package testutil
