// Package pipeline integrates the unit of work with go-command dispatch: a
// transaction stage that opens and finalizes transactions around mutating
// messages, plus registry and subscription wiring for commands, queries, and
// job-queue mirrors.
package pipeline
