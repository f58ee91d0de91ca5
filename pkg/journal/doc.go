// Package journal keeps a history of what modkeeper did to a game
// installation: engine operations and extraction cycle transitions. It is
// informational only; nothing reads it back to make decisions.
package journal
