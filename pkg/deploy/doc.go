// Package deploy copies package files into the game directory and removes
// them again.
//
// The engine is the only writer of deployed files. For every destination
// the deployed package loading last owns the file. Files that existed before
// any package touched them are moved aside into the state directory and put
// back when the last package providing that path is undeployed, so deploying
// and undeploying a package leaves the game directory byte-identical.
//
// Nothing is rolled back: when a copy fails, the files already written stay
// and the package stays staged.
package deploy
