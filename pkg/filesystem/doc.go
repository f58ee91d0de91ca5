// Package filesystem provides the filesystem used by modkeeper.
//
// Every component works against an afero.Fs so tests can run on an
// in-memory tree while the CLI uses the real OS filesystem. The helpers in
// this package cover the few multi-step operations the deployment engine and
// the checkpoint store need: copying files, durable atomic writes, pruning
// directories left empty and content checksums.
package filesystem
