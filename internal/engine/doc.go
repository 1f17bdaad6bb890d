// Package engine implements the scoring state machine for game chat
// sessions.
//
// A session moves from in-progress to exactly one terminal state
// (completed, interrupted, or timed out). Each turn obtains an assistant
// reply and a structured judge verdict, applies the score and round
// transition, and persists it under a dual-write discipline: the
// score/round/status write is synchronous and atomic against the
// relational store, while the two message-log rows are deferred to
// background persistence. The session cache is only a fast path; on a
// miss the engine resurrects the conversation by replaying the durable
// message log.
package engine
