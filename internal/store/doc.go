// Package store provides SQLite-backed persistence for rule storages.
//
// Values live in a single table keyed by (store, key), holding the JSON
// encoding produced by the persist package. Store implements
// persist.Backend.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Schema changes are applied as numbered migrations tracked in
// PRAGMA user_version.
package store
