// Package harness runs scenario files against a real engine with a
// manual clock and recording recipients.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: boiler_overheat
//	description: "Out-of-range alarm with capped repeats"
//	definitions: |
//	  device: boiler: cells: temp: {type: "temperature", value: 60}
//	  alarms: boiler: {
//	    deviceName: "boilerAlarms"
//	    recipients: [{type: "email", to: "ops@example.com"}]
//	    alarms: [{name: "overheat", cell: "boiler/temp", maxValue: 90}]
//	  }
//	steps:
//	  - set: boiler/temp
//	    value: 95
//	  - advance: 10s
//	  - expect:
//	      boilerAlarms/alarm_overheat: true
//	  - expect_notifications:
//	      - "email:ops@example.com: boiler/temp is out of bounds, value = 95"
//
// Definitions are CUE, given inline or as a directory relative to the
// scenario file. Every recipient is replaced by a recorder named after
// the recipient, so nothing leaves the process.
//
// # Step Types
//
//   - set: write a cell (value holds the value), then drain the engine
//   - advance: move the manual clock, firing due timers
//   - run_rules: request a full pass
//   - expect: compare cell values
//   - expect_notifications: compare the notifications sent since the
//     previous expect_notifications step, as "recipient: text"
//
// # Trace
//
// Run records a text trace: one header line per step, then the cell
// changes and notifications the step caused, in order. Traces are
// deterministic and are compared against golden files in tests.
package harness
