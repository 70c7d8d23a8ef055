// Package engine implements the reactive rule engine.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All cell writes, rule evaluation, timer bookkeeping and callbacks run in
// one goroutine (Run, or ProcessPending in tests). Other goroutines (timer
// scheduler, host transport, spawned commands, cron) only enqueue events.
// At most one dispatch pass is active at any instant.
//
// Event Processing Flow:
//  1. Host values, cell changes, timer fires and callbacks are enqueued FIFO.
//  2. A cell change starts a dispatch pass filtered to rules that depend on
//     the cell; a timer fire or RunRules starts a pass over every rule.
//  3. Each enabled rule is checked in registration order. Its condition is
//     evaluated inside a completeness-sensitive region of the cell store.
//  4. Fired actions may write cells or start timers. Those effects are
//     enqueued and handled as later, independent passes.
//
// Trigger kinds:
//   - When: level-triggered, fires on every pass where the condition holds.
//   - AsSoonAs: edge-triggered, fires on a false to true transition.
//   - WhenChanged / OnCellChange: fires when a watched cell or value
//     function changes.
//   - Cron: fires on a calendar schedule.
//
// A condition that reads an incomplete cell is skipped for the pass and
// leaves all cached trigger state untouched.
//
// Failure isolation: an error or panic raised by one rule's condition or
// action is logged with the rule name and the pass continues.
package engine
