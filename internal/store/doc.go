// Package store defines the persistence interfaces of the application and
// shared database plumbing: the DBTX abstraction over connections and
// transactions, the RunInTransaction helper, and the sentinel error
// taxonomy used by all store implementations.
//
// Concrete implementations live in internal/platform/postgres.
package store
