// Package core contains the canonical persistence contracts: the
// specification query descriptor, entity tracking states, configuration, and
// error taxonomy shared by the repository, unit-of-work, retry, and pipeline
// packages. Store-specific adapters must depend on this package; core must
// not depend on any concrete store driver.
package core
