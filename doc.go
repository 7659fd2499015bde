// Package typedrepo exposes typed data access over a relational store.
// Service wraps a repository.Repository and reports every result as a
// types.Outcome, so callers branch on a status instead of inspecting errors.
package typedrepo
