// Package resolve computes the load order of a package set and the file
// conflicts between deployed packages.
//
// Nothing here is stored: every call recomputes the result from the
// packages it is given, so conflict status always reflects the current
// deployment state.
//
// Ordering starts from ascending LoadOrder (ties keep discovery order) and
// then applies dependencies: a package always loads after every dependency,
// even when its LoadOrder says otherwise. When several packages are free to
// load next, the one earliest in the base order wins, so a package declared
// before one of its dependencies lands right after the latest of them.
package resolve
