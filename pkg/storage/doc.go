/*
Package storage is the per-project State Store (§4.2): a durable,
crash-safe record of the architect singleton, builders, utility terminals,
and annotation viewers living at <project>/.agent-farm/state.db.

It is backed by modernc.org/sqlite (pure Go, no cgo) opened in WAL mode with
a 5 second busy timeout and BEGIN IMMEDIATE transactions, following
aristath/sentinel's internal/database package for the connection-string and
transaction-helper idioms. Every mutating operation is one transaction;
LoadState reads a consistent snapshot inside a single read transaction so
concurrent writers never tear it.
*/
package storage
