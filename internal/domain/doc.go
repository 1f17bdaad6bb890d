// Package domain contains the core entities of the game-chat backend:
// durable jobs and their execution log, game sessions with their scoring
// state machine, the append-only game message log, and subtasks.
//
// Domain types validate themselves and own their state transitions; they
// carry no persistence or transport concerns.
package domain
