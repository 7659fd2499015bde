// Package repository provides a generic repository abstraction built on Bun
// for CRUD operations, predicate queries, pagination, joins, bulk writes and
// change-detecting updates. Repositories are bound to a database.Session and
// resolve the field catalog of their entity type once, at construction.
package repository
