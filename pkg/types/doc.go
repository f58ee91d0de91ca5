// Package types defines the core data model shared by every modkeeper
// component: packages and their file mappings.
package types
