// Package cell implements the cell store: the table of device cells the
// rule engine reads and writes.
//
// A cell is addressed by (device, cell) or by a path string of the form
// "device/cell" or "device/cell#meta". Handles are materialized lazily on
// first reference and live for the rest of the process.
//
// Completeness:
// A cell is complete once a value has been written to it. Rule conditions
// run inside a completeness-sensitive region acquired with
// Store.RequireComplete; reads of incomplete cells inside that region return
// *IncompleteError instead of a placeholder value.
//
// The store is not safe for concurrent use. The engine accesses it only from
// its event loop goroutine.
package cell
