// Package database is the storage engine side of typedrepo: configuration
// loading, connection management on top of Bun, sessions and transactions,
// table bootstrap, point caches, query hooks and driver error classification.
package database
