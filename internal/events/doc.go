// Package events decouples the game engine from background persistence.
//
// The engine emits TaskRequestEvent values describing work it wants done
// off the request path (e.g. appending message-log rows); a handler wired
// in at startup turns those events into background tasks. Neither side
// imports the other, avoiding a dependency cycle between the engine and
// the task runtime.
package events
