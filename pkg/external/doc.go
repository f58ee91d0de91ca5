// Package external holds the collaborators the extraction cycle drives but
// does not control: the extractor installer and the game launcher.
package external
