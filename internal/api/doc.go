// Package api contains the HTTP handlers for the game, task, and job
// surfaces. Handlers validate input, call the corresponding service, map
// its errors to sanitized responses, and never leak internal error text
// to clients.
package api
