// Package uow implements the unit-of-work layer: per-scope database
// sessions, typed repositories with staged writes, the transaction state
// machine, and retry-wrapped batch persistence. Scopes come from a Manager,
// which resolves configuration, model bindings, and the store-dialect retry
// classifier once at build time.
package uow
