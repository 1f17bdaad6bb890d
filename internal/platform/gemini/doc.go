// Package gemini provides the Gemini-backed model collaborators: the
// in-character chat model, the tool-constrained judge, and the subtask
// generator. All three share one client and one retry policy
// (exponential backoff with jitter for transient errors; safety blocks
// and malformed responses fail immediately).
package gemini
