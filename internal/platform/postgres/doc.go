// Package postgres provides PostgreSQL implementations of the store
// interfaces defined in internal/store. All implementations accept a
// store.DBTX so they work against either a connection pool or a
// transaction, and map driver errors to the shared sentinel taxonomy via
// MapError.
package postgres
