// Package extraction runs the extraction cycle: take every deployed package
// out of the game, let the game's own extractor regenerate its data from a
// vanilla install, then put exactly the same packages back.
//
// A cycle is a small state machine driven by its caller (Confirm, Launch,
// Cancel, RedeployAnyway, Discard) and by a background poll loop that waits
// for the extractor to finish. Every transition is published as a
// progress.KindState event. Before anything is undeployed a recovery
// checkpoint is written, so a crash at any later point leaves enough on disk
// to restore the package set at the next start.
package extraction
