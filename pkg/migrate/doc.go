// Package migrate upgrades sample-record documents from the structural version
// they were written with to the current one.
//
// A Chain is built once per session from a list of Patches. Each Patch moves a
// document from one version to the next by applying an ordered list of
// declarative Operations (rename_key, move, map, remove, set) through the
// path resolver in package document. The version itself lives inside the
// document at a fixed location described by a Tag.
//
// Migration is synchronous, performs no I/O and keeps no reference to the
// document after returning. A Chain is read-only after construction and may be
// shared between goroutines that migrate distinct documents.
//
// Absent data is never an error: every field is optional. The only failures
// are ErrPathConflict (an operation ran into data of the wrong shape),
// ErrNoMigrationPath (the document's version has no patch) and
// ErrMigrationCycle (the patch list loops). None of them is retryable, and on
// failure the document is left partially modified and must be discarded.
package migrate
